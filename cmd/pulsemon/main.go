package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/google/pulsemon/internal/cache"
	"github.com/google/pulsemon/internal/config"
	"github.com/google/pulsemon/internal/gpu"
	"github.com/google/pulsemon/internal/metrics"
	"github.com/google/pulsemon/internal/proc"
	"github.com/google/pulsemon/internal/ui"
	"github.com/google/pulsemon/internal/updater"
)

func main() {
	mockMode := flag.Bool("mock", false, "Run in mock mode with simulated data")
	configPath := flag.String("config", "", "Path to settings file (default: per-user config dir)")
	flag.Parse()

	var settings *config.Settings
	var err error
	if *configPath != "" {
		settings, err = config.LoadSettings(*configPath)
	} else {
		settings, err = config.LoadDefaultSettings()
	}
	if err != nil {
		log.Printf("[main] settings: %v, using defaults", err)
		settings = config.DefaultSettings()
	}

	c := cache.New()

	var provider *gpu.Provider
	if *mockMode {
		log.Println("Starting in MOCK mode...")
		provider = gpu.NewMock(c)
	} else {
		log.Println("Starting in REAL mode...")
		provider = gpu.New(c)
	}
	defer provider.Close()

	collectorOpts := []metrics.Option{
		metrics.WithWorkers(settings.WorkerPoolSize),
		metrics.WithSourceTimeout(settings.SourceTimeout()),
	}
	if *mockMode {
		collectorOpts = append(collectorOpts, metrics.WithMockSources())
	}
	collector := metrics.NewCollector(c, provider, collectorOpts...)

	manager := proc.NewManager()
	procOpts := []proc.CollectorOption{
		proc.WithThreadCap(settings.ThreadCap),
	}
	if *mockMode {
		procOpts = append(procOpts, proc.WithMockProcesses())
	}
	procCollector := proc.NewCollector(manager, procOpts...)

	core := updater.New(collector, procCollector, manager, settings)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go procCollector.Run(ctx)
	go core.Run(ctx)

	root := ui.NewRootModel(core)

	p := tea.NewProgram(root, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running pulsemon: %v\n", err)
		os.Exit(1)
	}
}
