package metrics

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/pulsemon/internal/cache"
	"github.com/google/pulsemon/internal/gpu"
)

func testCollector(opts ...Option) *Collector {
	c := NewCollector(cache.New(), nil, opts...)
	c.cpuFn = func(context.Context) (CPUStats, error) {
		return CPUStats{UsagePercent: 25, PerCoreUsage: []float64{25, 25}}, nil
	}
	c.memFn = func(context.Context) (MemoryStats, error) {
		return MemoryStats{Total: 16 << 30, Used: 8 << 30, UsedPercent: 50}, nil
	}
	c.netFn = func(context.Context) (ioCounters, error) { return ioCounters{}, nil }
	c.diskFn = func(context.Context) (ioCounters, error) { return ioCounters{}, nil }
	c.gpuFn = func(context.Context) ([]gpu.Sample, error) {
		return []gpu.Sample{{Name: "FakeGPU", Status: gpu.StatusOK}}, nil
	}
	return c
}

func TestCollectMergesAllSources(t *testing.T) {
	c := testCollector()

	snap := c.Collect(context.Background())
	require.NotNil(t, snap)
	assert.True(t, snap.CPU.Available)
	assert.True(t, snap.Memory.Available)
	assert.True(t, snap.Net.Available)
	assert.True(t, snap.Disk.Available)
	assert.True(t, snap.GPUAvailable())
	assert.False(t, snap.Timestamp.IsZero())
}

func TestCollectPartialFailureKeepsOtherSources(t *testing.T) {
	c := testCollector()
	c.memFn = func(context.Context) (MemoryStats, error) {
		return MemoryStats{}, errors.New("virtual memory: permission denied")
	}

	snap := c.Collect(context.Background())
	assert.False(t, snap.Memory.Available, "failed source is marked unavailable")
	assert.True(t, snap.CPU.Available, "other sources still publish")
	assert.True(t, snap.Net.Available)
}

func TestCollectPanickingSourceIsContained(t *testing.T) {
	c := testCollector()
	c.diskFn = func(context.Context) (ioCounters, error) { panic("iostat exploded") }

	snap := c.Collect(context.Background())
	assert.False(t, snap.Disk.Available)
	assert.True(t, snap.CPU.Available)
}

func TestCollectReturnsDespiteHangingGPU(t *testing.T) {
	c := testCollector(WithSourceTimeout(50 * time.Millisecond))
	c.gpuFn = func(ctx context.Context) ([]gpu.Sample, error) {
		<-ctx.Done() // hang until the per-source deadline
		return nil, ctx.Err()
	}

	start := time.Now()
	snap := c.Collect(context.Background())
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 500*time.Millisecond, "collect must be bounded by the source timeout")
	assert.False(t, snap.GPUAvailable())
	assert.True(t, snap.CPU.Available, "cheap sources are unaffected by the slow one")
}

func TestRateComputation(t *testing.T) {
	c := testCollector()
	readings := []ioCounters{
		{in: 1_000_000, out: 500_000},
		{in: 3_000_000, out: 1_500_000},
	}
	var call int32
	c.netFn = func(context.Context) (ioCounters, error) {
		n := atomic.AddInt32(&call, 1) - 1
		return readings[n], nil
	}

	first := c.Collect(context.Background())
	assert.Zero(t, first.Net.RecvBytesPerSec, "no baseline on the first pass")

	time.Sleep(20 * time.Millisecond)
	second := c.Collect(context.Background())
	assert.Greater(t, second.Net.RecvBytesPerSec, 0.0)
	assert.Greater(t, second.Net.SentBytesPerSec, 0.0)
	assert.Equal(t, uint64(3_000_000), second.Net.BytesRecv)
}

func TestCounterResetEmitsZeroAndReseeds(t *testing.T) {
	c := testCollector()
	readings := []ioCounters{
		{in: 10_000_000, out: 10_000_000},
		{in: 500_000, out: 500_000}, // counter went backwards: reset
		{in: 700_000, out: 700_000},
	}
	var call int32
	c.diskFn = func(context.Context) (ioCounters, error) {
		n := atomic.AddInt32(&call, 1) - 1
		return readings[n], nil
	}

	c.Collect(context.Background())
	time.Sleep(20 * time.Millisecond)

	second := c.Collect(context.Background())
	assert.Zero(t, second.Disk.ReadBytesPerSec, "decreasing counter must emit a zero delta")
	assert.Zero(t, second.Disk.WriteBytesPerSec)

	time.Sleep(20 * time.Millisecond)
	third := c.Collect(context.Background())
	assert.Greater(t, third.Disk.ReadBytesPerSec, 0.0,
		"third reading rates against the reseeded baseline, not the pre-reset one")
	// 200000 bytes over ~20ms ≈ 10MB/s; against the stale baseline it would be 0.
	assert.Less(t, third.Disk.ReadBytesPerSec, 100_000_000.0)
}

func TestFailedTickDoesNotInflateNextRate(t *testing.T) {
	c := testCollector()
	var call int32
	c.netFn = func(context.Context) (ioCounters, error) {
		switch atomic.AddInt32(&call, 1) {
		case 1:
			return ioCounters{}, nil
		case 2:
			return ioCounters{}, errors.New("netlink: device busy")
		default:
			return ioCounters{in: 1_000_000, out: 1_000_000}, nil
		}
	}

	c.Collect(context.Background())
	time.Sleep(50 * time.Millisecond)
	c.Collect(context.Background()) // net failed, baseline untouched
	time.Sleep(50 * time.Millisecond)
	third := c.Collect(context.Background())

	// 1MB accumulated over ~100ms spans two ticks; dividing by a single
	// tick's elapsed would double the rate.
	require.True(t, third.Net.Available)
	assert.Greater(t, third.Net.RecvBytesPerSec, 0.0)
	assert.LessOrEqual(t, third.Net.RecvBytesPerSec, 15_000_000.0,
		"delta must be divided by the span since the last good reading")
}

func TestGPUCadenceSampleIsReusedByCollect(t *testing.T) {
	c := testCollector()
	var gpuCalls int32
	c.gpuFn = func(context.Context) ([]gpu.Sample, error) {
		atomic.AddInt32(&gpuCalls, 1)
		return []gpu.Sample{{Name: "FakeGPU", Status: gpu.StatusOK}}, nil
	}

	c.SampleGPU(context.Background())
	require.EqualValues(t, 1, atomic.LoadInt32(&gpuCalls))

	// A fresh cell result is reused instead of re-querying the device.
	snap := c.Collect(context.Background())
	assert.EqualValues(t, 1, atomic.LoadInt32(&gpuCalls))
	assert.True(t, snap.GPUAvailable())
}

func TestGPUTimeoutThenRecovery(t *testing.T) {
	c := testCollector(WithSourceTimeout(30 * time.Millisecond))
	var call int32
	c.gpuFn = func(ctx context.Context) ([]gpu.Sample, error) {
		if atomic.AddInt32(&call, 1) == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []gpu.Sample{{Name: "FakeGPU", Utilization: 40, Status: gpu.StatusOK}}, nil
	}

	first := c.SampleGPU(context.Background())
	assert.Empty(t, first, "no cached identities yet, so the timeout yields nothing")

	second := c.SampleGPU(context.Background())
	require.Len(t, second, 1)
	assert.Equal(t, gpu.StatusOK, second[0].Status)
	assert.Equal(t, 40.0, second[0].Utilization)
}

func TestMockSourcesProducePlausibleSnapshots(t *testing.T) {
	c := NewCollector(cache.New(), nil, WithMockSources())
	c.gpuFn = func(context.Context) ([]gpu.Sample, error) { return nil, gpu.ErrUnavailable }

	c.Collect(context.Background())
	time.Sleep(10 * time.Millisecond)
	snap := c.Collect(context.Background())

	assert.True(t, snap.CPU.Available)
	assert.InDelta(t, 25, snap.CPU.UsagePercent, 25)
	assert.True(t, snap.Memory.Available)
	assert.Positive(t, snap.Memory.Total)
	assert.True(t, snap.Net.Available)
	assert.GreaterOrEqual(t, snap.Net.RecvBytesPerSec, 0.0)
}
