package config

import "time"

// UnitMode selects how byte rates are scaled for display. The core always
// produces raw bytes per second; this is purely a presentation transform.
type UnitMode int

const (
	UnitMB  UnitMode = iota // decimal: 1 MB/s = 1,000,000 B/s
	UnitMiB                 // binary: 1 MiB/s = 1,048,576 B/s
)

func (u UnitMode) String() string {
	if u == UnitMiB {
		return "MiB/s"
	}
	return "MB/s"
}

// BytesPerUnit returns the divisor for converting B/s into the unit.
func (u UnitMode) BytesPerUnit() float64 {
	if u == UnitMiB {
		return 1 << 20
	}
	return 1e6
}

// ParseUnitMode maps a settings-file string onto a UnitMode, defaulting
// to decimal megabytes.
func ParseUnitMode(s string) UnitMode {
	if s == "MiB/s" {
		return UnitMiB
	}
	return UnitMB
}

// Settings defines the user-configurable knobs of the monitoring core.
type Settings struct {
	GlobalIntervalMS  int    `json:"global_interval_ms"`
	GPUIntervalMS     int    `json:"gpu_interval_ms"`
	ProcessIntervalMS int    `json:"process_interval_ms"`
	Unit              string `json:"unit_mode"` // "MB/s" | "MiB/s"
	WorkerPoolSize    int    `json:"worker_pool_size"`
	SourceTimeoutMS   int    `json:"source_timeout_ms"`
	ThreadCap         int    `json:"thread_cap"` // max threads materialized per process
}

// DefaultSettings returns the hardcoded default configuration.
func DefaultSettings() *Settings {
	return &Settings{
		GlobalIntervalMS:  100,
		GPUIntervalMS:     1000,
		ProcessIntervalMS: 1000,
		Unit:              UnitMB.String(),
		WorkerPoolSize:    4,
		SourceTimeoutMS:   2000,
		ThreadCap:         64,
	}
}

// Validate normalizes out-of-range values back to defaults. Intervals must
// be positive; zero or negative means the field was absent or nonsense.
func (s *Settings) Validate() error {
	def := DefaultSettings()
	if s.GlobalIntervalMS <= 0 {
		s.GlobalIntervalMS = def.GlobalIntervalMS
	}
	if s.GPUIntervalMS <= 0 {
		s.GPUIntervalMS = def.GPUIntervalMS
	}
	if s.ProcessIntervalMS <= 0 {
		s.ProcessIntervalMS = def.ProcessIntervalMS
	}
	if s.Unit != UnitMB.String() && s.Unit != UnitMiB.String() {
		s.Unit = def.Unit
	}
	if s.WorkerPoolSize <= 0 {
		s.WorkerPoolSize = def.WorkerPoolSize
	}
	if s.SourceTimeoutMS <= 0 {
		s.SourceTimeoutMS = def.SourceTimeoutMS
	}
	if s.ThreadCap <= 0 {
		s.ThreadCap = def.ThreadCap
	}
	return nil
}

func (s *Settings) GlobalInterval() time.Duration {
	return time.Duration(s.GlobalIntervalMS) * time.Millisecond
}

func (s *Settings) GPUInterval() time.Duration {
	return time.Duration(s.GPUIntervalMS) * time.Millisecond
}

func (s *Settings) ProcessInterval() time.Duration {
	return time.Duration(s.ProcessIntervalMS) * time.Millisecond
}

func (s *Settings) SourceTimeout() time.Duration {
	return time.Duration(s.SourceTimeoutMS) * time.Millisecond
}

func (s *Settings) UnitMode() UnitMode {
	return ParseUnitMode(s.Unit)
}
