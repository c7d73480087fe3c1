package gpu

import (
	"context"
	"fmt"

	"github.com/mindprince/gonvml"

	"github.com/google/pulsemon/internal/cache"
)

// nvmlBackend queries devices through the NVML shared library. Queries are
// in-process and cheap relative to spawning nvidia-smi.
type nvmlBackend struct {
	cache   *cache.Cache
	devices []gonvml.Device
}

func newNVMLBackend(c *cache.Cache) (*nvmlBackend, error) {
	if err := gonvml.Initialize(); err != nil {
		return nil, fmt.Errorf("nvml init: %w", err)
	}
	count, err := gonvml.DeviceCount()
	if err != nil {
		gonvml.Shutdown()
		return nil, fmt.Errorf("nvml device count: %w", err)
	}
	if count == 0 {
		gonvml.Shutdown()
		return nil, ErrUnavailable
	}

	b := &nvmlBackend{cache: c}
	for i := uint(0); i < count; i++ {
		dev, err := gonvml.DeviceHandleByIndex(i)
		if err != nil {
			gonvml.Shutdown()
			return nil, fmt.Errorf("nvml device %d: %w", i, err)
		}
		b.devices = append(b.devices, dev)
	}
	return b, nil
}

func (b *nvmlBackend) label() string { return "nvml" }

func (b *nvmlBackend) sample(ctx context.Context) ([]Sample, error) {
	samples := make([]Sample, 0, len(b.devices))
	for i, dev := range b.devices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s := Sample{Index: i, Status: StatusOK}

		name, err := cache.Value(b.cache, fmt.Sprintf("gpu/%d/name", i), staticTTL, dev.Name)
		if err != nil {
			return nil, fmt.Errorf("nvml name: %w", err)
		}
		s.Name = name

		total, err := cache.Value(b.cache, fmt.Sprintf("gpu/%d/vram_total", i), staticTTL, func() (uint64, error) {
			t, _, err := dev.MemoryInfo()
			return t, err
		})
		if err != nil {
			return nil, fmt.Errorf("nvml memory: %w", err)
		}
		s.MemoryTotal = total

		if util, _, err := dev.UtilizationRates(); err == nil {
			s.Utilization = float64(util)
		}
		if _, used, err := dev.MemoryInfo(); err == nil {
			s.MemoryUsed = used
		}
		if temp, err := dev.Temperature(); err == nil {
			s.Temperature = float64(temp)
		}
		// gonvml does not expose clock queries; ClockMHz stays 0 here.

		samples = append(samples, s)
	}
	rememberNames(b.cache, samples)
	return samples, nil
}

func (b *nvmlBackend) close() {
	gonvml.Shutdown()
}
