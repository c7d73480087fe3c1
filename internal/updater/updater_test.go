package updater

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/pulsemon/internal/config"
	"github.com/google/pulsemon/internal/gpu"
	"github.com/google/pulsemon/internal/metrics"
	"github.com/google/pulsemon/internal/proc"
)

type fakeSource struct {
	collects  atomic.Int32
	gpuPasses atomic.Int32
	block     time.Duration
	gpuBlock  time.Duration
}

func (f *fakeSource) Collect(ctx context.Context) *metrics.Snapshot {
	f.collects.Add(1)
	if f.block > 0 {
		select {
		case <-time.After(f.block):
		case <-ctx.Done():
		}
	}
	return &metrics.Snapshot{
		Timestamp: time.Now(),
		Net:       metrics.NetStats{Available: true, RecvBytesPerSec: 1000},
	}
}

func (f *fakeSource) SampleGPU(ctx context.Context) []gpu.Sample {
	f.gpuPasses.Add(1)
	if f.gpuBlock > 0 {
		select {
		case <-time.After(f.gpuBlock):
		case <-ctx.Done():
		}
	}
	return nil
}

func (f *fakeSource) Info(context.Context) metrics.SystemInfo {
	return metrics.SystemInfo{CPUModel: "fake"}
}

type fakeTrigger struct {
	count atomic.Int32
}

func (f *fakeTrigger) Trigger() { f.count.Add(1) }

func fastSettings() *config.Settings {
	s := config.DefaultSettings()
	s.GlobalIntervalMS = 10
	s.GPUIntervalMS = 10
	s.ProcessIntervalMS = 10
	return s
}

func startUpdater(t *testing.T, src metricsSource, pt processTrigger, s *config.Settings) *Updater {
	t.Helper()
	u := newWithSources(src, pt, proc.NewManager(), s)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go u.Run(ctx)
	return u
}

func TestCadencesDriveAllThreeProducers(t *testing.T) {
	src := &fakeSource{}
	pt := &fakeTrigger{}
	u := startUpdater(t, src, pt, fastSettings())

	require.Eventually(t, func() bool {
		return src.collects.Load() >= 2 && src.gpuPasses.Load() >= 2 && pt.count.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return u.LatestMetrics() != nil }, time.Second, 5*time.Millisecond)
	assert.True(t, u.LatestMetrics().Net.Available)
}

func TestPauseSuppressesTicksAndKeepsLastSnapshot(t *testing.T) {
	src := &fakeSource{}
	pt := &fakeTrigger{}
	u := startUpdater(t, src, pt, fastSettings())

	require.Eventually(t, func() bool { return u.LatestMetrics() != nil }, time.Second, 5*time.Millisecond)

	u.SetPaused(true)
	require.True(t, u.Paused())
	time.Sleep(30 * time.Millisecond) // drain passes started just before the pause

	frozen := u.LatestMetrics()
	collects := src.collects.Load()
	gpuPasses := src.gpuPasses.Load()
	triggers := pt.count.Load()

	time.Sleep(100 * time.Millisecond) // many cadence intervals

	assert.Equal(t, collects, src.collects.Load(), "no sampling while paused")
	assert.Equal(t, gpuPasses, src.gpuPasses.Load())
	assert.Equal(t, triggers, pt.count.Load())
	assert.Same(t, frozen, u.LatestMetrics(), "pre-pause snapshot stays readable")

	u.SetPaused(false)
	require.Eventually(t, func() bool {
		return src.collects.Load() > collects
	}, time.Second, 5*time.Millisecond, "resume restarts the cadences")
}

func TestOverrunningCollectIsSkippedNotQueued(t *testing.T) {
	src := &fakeSource{block: 200 * time.Millisecond}
	u := startUpdater(t, src, &fakeTrigger{}, fastSettings())

	time.Sleep(120 * time.Millisecond)
	u.SetPaused(true)
	time.Sleep(250 * time.Millisecond)

	// With a 10ms cadence and a 200ms pass, most ticks must have been
	// skipped by the in-flight guard.
	assert.LessOrEqual(t, src.collects.Load(), int32(3))
}

func TestSlowGPUSampleIsNotStacked(t *testing.T) {
	src := &fakeSource{gpuBlock: 200 * time.Millisecond}
	u := startUpdater(t, src, &fakeTrigger{}, fastSettings())

	time.Sleep(120 * time.Millisecond)
	u.SetPaused(true)
	time.Sleep(250 * time.Millisecond)

	// A 10ms cadence over a 200ms device query must skip, not pile up
	// concurrent passes.
	assert.LessOrEqual(t, src.gpuPasses.Load(), int32(3))
}

func TestSetIntervalsTakesEffectOnNextBoundary(t *testing.T) {
	src := &fakeSource{}
	s := fastSettings()
	s.GlobalIntervalMS = 20
	u := startUpdater(t, src, &fakeTrigger{}, s)

	require.Eventually(t, func() bool { return src.collects.Load() >= 1 }, time.Second, time.Millisecond)

	u.SetIntervals(time.Hour, 0, 0)
	time.Sleep(60 * time.Millisecond) // let the pending boundary pass
	after := src.collects.Load()
	time.Sleep(100 * time.Millisecond)

	assert.LessOrEqual(t, src.collects.Load(), after+1,
		"after the boundary the hour-long interval is in force")

	// Zero values leave cadences unchanged rather than disabling them.
	u.SetIntervals(0, 0, 0)
	assert.Equal(t, time.Hour, u.interval(&u.global))
}

func TestUnitModeTransform(t *testing.T) {
	u := newWithSources(&fakeSource{}, &fakeTrigger{}, proc.NewManager(), nil)

	assert.Equal(t, config.UnitMB, u.UnitMode())
	assert.InDelta(t, 2.0, u.DisplayRate(2_000_000), 1e-9)

	u.SetUnitMode(config.UnitMiB)
	assert.InDelta(t, 2.0, u.DisplayRate(2*1048576), 1e-9)
}

func TestRateRefsDecayTowardCurrentRates(t *testing.T) {
	u := newWithSources(&fakeSource{}, &fakeTrigger{}, proc.NewManager(), nil)

	now := time.Now()
	u.decayRefs(&metrics.Snapshot{
		Timestamp: now,
		Net:       metrics.NetStats{RecvBytesPerSec: 5000},
	})
	assert.Equal(t, 5000.0, u.RateRefs().NetRecv)

	// A quieter snapshot much later: the reference has decayed well below
	// the old peak but never below the current rate.
	u.decayRefs(&metrics.Snapshot{
		Timestamp: now.Add(30 * time.Second),
		Net:       metrics.NetStats{RecvBytesPerSec: 100},
	})
	refs := u.RateRefs()
	assert.Less(t, refs.NetRecv, 5000.0)
	assert.GreaterOrEqual(t, refs.NetRecv, 100.0)
}

func TestExpandRequestFlowsToManager(t *testing.T) {
	m := proc.NewManager()
	u := newWithSources(&fakeSource{}, &fakeTrigger{}, m, nil)

	u.RequestExpand(4242)
	assert.True(t, m.IsExpanded(4242))
}

func TestSystemInfoDelegates(t *testing.T) {
	u := newWithSources(&fakeSource{}, &fakeTrigger{}, proc.NewManager(), nil)
	assert.Equal(t, "fake", u.SystemInfo(context.Background()).CPUModel)
}
