package metrics

import (
	"bufio"
	"context"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/google/pulsemon/internal/cache"
)

// Static hardware facts never change while the process runs, but probing
// them involves subprocess calls or hardware table reads, so every query
// below is memoized through the cache.

const dmidecodeTimeout = 2 * time.Second

// SystemInfo is the static identity of the host, shown on the info panel.
type SystemInfo struct {
	Hostname        string
	Platform        string
	CPUModel        string
	LogicalCores    int
	PhysicalCores   int
	TotalMemory     uint64
	MemoryFrequency float64 // MHz, 0 when not readable
	GPUNames        []string
}

// Info resolves the host identity, serving every field from the cache.
func (c *Collector) Info(ctx context.Context) SystemInfo {
	info := SystemInfo{
		CPUModel:        cpuModelName(ctx, c.cache),
		MemoryFrequency: memoryFrequencyMHz(ctx, c.cache),
	}
	if c.provider != nil {
		info.GPUNames = c.provider.Names()
	}

	info.LogicalCores, _ = cache.Value(c.cache, "cpu/logical", 24*time.Hour, func() (int, error) {
		return cpu.CountsWithContext(ctx, true)
	})
	info.PhysicalCores, _ = cache.Value(c.cache, "cpu/physical", 24*time.Hour, func() (int, error) {
		return cpu.CountsWithContext(ctx, false)
	})
	info.TotalMemory, _ = cache.Value(c.cache, "mem/total", 24*time.Hour, func() (uint64, error) {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return 0, err
		}
		return vm.Total, nil
	})
	if hi, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = hi.Hostname
		info.Platform = hi.Platform + " " + hi.PlatformVersion
	}
	return info
}

func cpuModelName(ctx context.Context, c *cache.Cache) string {
	name, err := cache.Value(c, "cpu/model", 24*time.Hour, func() (string, error) {
		infos, err := cpu.InfoWithContext(ctx)
		if err != nil {
			return "", err
		}
		for _, i := range infos {
			if i.ModelName != "" {
				return i.ModelName, nil
			}
		}
		return runtime.GOARCH + " CPU", nil
	})
	if err != nil {
		return "unknown CPU"
	}
	return name
}

func (c *Collector) baseFrequencyMHz(ctx context.Context) (float64, error) {
	return cache.Value(c.cache, "cpu/base_mhz", 24*time.Hour, func() (float64, error) {
		infos, err := cpu.InfoWithContext(ctx)
		if err != nil {
			return 0, err
		}
		for _, i := range infos {
			if i.Mhz > 0 {
				return i.Mhz, nil
			}
		}
		return 0, nil
	})
}

// memoryFrequencyMHz probes the DMI tables via dmidecode. That needs root;
// without it the probe fails once and 0 is cached for the process lifetime.
func memoryFrequencyMHz(ctx context.Context, c *cache.Cache) float64 {
	mhz, _ := cache.Value(c, "mem/freq_mhz", 24*time.Hour, func() (float64, error) {
		ctx, cancel := context.WithTimeout(ctx, dmidecodeTimeout)
		defer cancel()

		out, err := exec.CommandContext(ctx, "dmidecode", "-t", "memory").Output()
		if err != nil {
			return 0, nil // unavailable, not an error worth retrying
		}
		return parseDMISpeed(string(out)), nil
	})
	return mhz
}

// parseDMISpeed extracts the first populated "Speed: N MT/s" (or MHz) line.
func parseDMISpeed(out string) float64 {
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "Speed:") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "Speed:"))
		if len(fields) == 0 {
			continue
		}
		if v, err := strconv.ParseFloat(fields[0], 64); err == nil && v > 0 {
			return v
		}
	}
	return 0
}
