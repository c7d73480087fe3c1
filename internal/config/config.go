package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const settingsFile = "pulsemon.json"

// LoadSettings loads and validates configuration from the specified JSON
// file. If the file doesn't exist or fails to parse, returns defaults.
func LoadSettings(path string) (*Settings, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultSettings(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettings(), err
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return DefaultSettings(), err
	}

	if err := s.Validate(); err != nil {
		return DefaultSettings(), err
	}
	return &s, nil
}

// LoadDefaultSettings looks for the settings file in the working directory,
// then next to the executable, then falls back to defaults.
func LoadDefaultSettings() (*Settings, error) {
	if _, err := os.Stat(settingsFile); err == nil {
		return LoadSettings(settingsFile)
	}

	if exePath, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(exePath), settingsFile)
		if _, err := os.Stat(path); err == nil {
			return LoadSettings(path)
		}
	}

	return DefaultSettings(), nil
}

// SaveSettings writes configuration to the specified JSON file.
func SaveSettings(s *Settings, path string) error {
	if err := s.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
