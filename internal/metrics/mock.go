package metrics

import (
	"context"
	"math/rand"
	"sync/atomic"
)

// Synthetic sources for demos and UI work on machines without the real
// hardware. Counter totals grow monotonically so the rate math sees
// plausible deltas.

type mockCounters struct {
	in, out atomic.Uint64
}

func (m *mockCounters) next() ioCounters {
	m.in.Add(uint64(rand.Intn(4 << 20)))
	m.out.Add(uint64(rand.Intn(1 << 20)))
	return ioCounters{in: m.in.Load(), out: m.out.Load()}
}

func (c *Collector) useMockSources() {
	var netState, diskState mockCounters

	c.cpuFn = func(context.Context) (CPUStats, error) {
		const cores = 8
		st := CPUStats{
			PerCoreUsage: make([]float64, cores),
			PerCoreMHz:   make([]float64, cores),
		}
		for i := 0; i < cores; i++ {
			st.PerCoreUsage[i] = 10 + rand.Float64()*30
			st.PerCoreMHz[i] = 3200 + rand.Float64()*1600
			st.UsagePercent += st.PerCoreUsage[i]
			st.FrequencyMHz += st.PerCoreMHz[i]
		}
		st.UsagePercent /= cores
		st.FrequencyMHz /= cores
		return st, nil
	}
	c.memFn = func(context.Context) (MemoryStats, error) {
		total := uint64(32) << 30
		used := uint64(float64(total) * (0.3 + rand.Float64()*0.2))
		return MemoryStats{
			Total:        total,
			Used:         used,
			UsedPercent:  float64(used) / float64(total) * 100,
			FrequencyMHz: 3200,
		}, nil
	}
	c.netFn = func(context.Context) (ioCounters, error) { return netState.next(), nil }
	c.diskFn = func(context.Context) (ioCounters, error) { return diskState.next(), nil }
}
