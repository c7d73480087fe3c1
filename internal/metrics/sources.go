package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

func (c *Collector) sampleCPU(ctx context.Context) (CPUStats, error) {
	perCore, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return CPUStats{}, err
	}

	st := CPUStats{PerCoreUsage: perCore}
	for _, p := range perCore {
		st.UsagePercent += p
	}
	if len(perCore) > 0 {
		st.UsagePercent /= float64(len(perCore))
	}

	st.PerCoreMHz = perCoreFrequencies()
	for _, f := range st.PerCoreMHz {
		st.FrequencyMHz += f
	}
	if n := len(st.PerCoreMHz); n > 0 {
		st.FrequencyMHz /= float64(n)
	} else if base, err := c.baseFrequencyMHz(ctx); err == nil {
		st.FrequencyMHz = base
	}
	return st, nil
}

func (c *Collector) sampleMemory(ctx context.Context) (MemoryStats, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryStats{}, err
	}
	return MemoryStats{
		Total:        vm.Total,
		Used:         vm.Used,
		UsedPercent:  vm.UsedPercent,
		FrequencyMHz: memoryFrequencyMHz(ctx, c.cache),
	}, nil
}

func sampleNet(ctx context.Context) (ioCounters, error) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return ioCounters{}, err
	}
	if len(counters) == 0 {
		return ioCounters{}, nil
	}
	return ioCounters{in: counters[0].BytesRecv, out: counters[0].BytesSent}, nil
}

func sampleDisk(ctx context.Context) (ioCounters, error) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return ioCounters{}, err
	}
	var total ioCounters
	for name, st := range counters {
		if strings.HasPrefix(name, "loop") {
			continue
		}
		total.in += st.ReadBytes
		total.out += st.WriteBytes
	}
	return total, nil
}

// perCoreFrequencies reads current per-core clocks from sysfs. Returns nil
// on platforms or kernels that do not expose cpufreq.
func perCoreFrequencies() []float64 {
	paths, err := filepath.Glob("/sys/devices/system/cpu/cpu[0-9]*/cpufreq/scaling_cur_freq")
	if err != nil || len(paths) == 0 {
		return nil
	}
	// Glob orders cpu10 before cpu2; index by core number instead.
	freqs := make([]float64, len(paths))
	for _, p := range paths {
		coreDir := filepath.Base(filepath.Dir(filepath.Dir(p)))
		idx, err := strconv.Atoi(strings.TrimPrefix(coreDir, "cpu"))
		if err != nil || idx < 0 || idx >= len(freqs) {
			continue
		}
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		khz, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
		if err != nil {
			continue
		}
		freqs[idx] = khz / 1000 // kHz to MHz
	}
	return freqs
}
