// Package updater orchestrates the sampling producers. It owns the three
// cadences (global, GPU, process), the pause state, and the latest-snapshot
// cells the UI reads from. Producers run on background goroutines; every
// public operation is non-blocking and returns already-computed state.
package updater

import (
	"context"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/pulsemon/internal/config"
	"github.com/google/pulsemon/internal/gpu"
	"github.com/google/pulsemon/internal/metrics"
	"github.com/google/pulsemon/internal/proc"
)

// refDecayTau is the time constant for the decaying rate reference maxima.
const refDecayTau = 10 * time.Second

// metricsSource is the collector surface the updater drives.
type metricsSource interface {
	Collect(context.Context) *metrics.Snapshot
	SampleGPU(context.Context) []gpu.Sample
	Info(context.Context) metrics.SystemInfo
}

// processTrigger requests one background enumeration cycle.
type processTrigger interface {
	Trigger()
}

// RateRefs carries decaying reference maxima for the four rate metrics, so
// a view can scale bars without a fixed full-scale constant.
type RateRefs struct {
	NetRecv, NetSent    float64
	DiskRead, DiskWrite float64
}

// Updater is the only component the UI layer talks to.
type Updater struct {
	source  metricsSource
	procs   processTrigger
	manager *proc.Manager

	mu         sync.Mutex // guards intervals and unit mode
	global     time.Duration
	gpuEvery   time.Duration
	procsEvery time.Duration
	unit       config.UnitMode

	paused      atomic.Bool
	collecting  atomic.Bool
	gpuSampling atomic.Bool
	latest      atomic.Pointer[metrics.Snapshot]

	refMu     sync.Mutex
	refs      RateRefs
	lastDecay time.Time
}

// New wires the updater over the real collector stack.
func New(c *metrics.Collector, pc *proc.Collector, m *proc.Manager, s *config.Settings) *Updater {
	return newWithSources(c, pc, m, s)
}

func newWithSources(src metricsSource, pt processTrigger, m *proc.Manager, s *config.Settings) *Updater {
	if s == nil {
		s = config.DefaultSettings()
	}
	return &Updater{
		source:     src,
		procs:      pt,
		manager:    m,
		global:     s.GlobalInterval(),
		gpuEvery:   s.GPUInterval(),
		procsEvery: s.ProcessInterval(),
		unit:       s.UnitMode(),
	}
}

// Run drives the three cadences until ctx is done. Each timer re-arms with
// the interval current at that moment, so setter changes take effect on
// the next cadence boundary, never retroactively. While paused, timers
// keep running but fire no work; in-flight passes are not cancelled.
func (u *Updater) Run(ctx context.Context) {
	globalT := time.NewTimer(u.interval(&u.global))
	gpuT := time.NewTimer(u.interval(&u.gpuEvery))
	procT := time.NewTimer(u.interval(&u.procsEvery))
	defer globalT.Stop()
	defer gpuT.Stop()
	defer procT.Stop()

	log.Printf("[updater] running (global=%s gpu=%s process=%s)",
		u.interval(&u.global), u.interval(&u.gpuEvery), u.interval(&u.procsEvery))

	for {
		select {
		case <-ctx.Done():
			return
		case <-globalT.C:
			if !u.paused.Load() {
				go u.collectOnce(ctx)
			}
			globalT.Reset(u.interval(&u.global))
		case <-gpuT.C:
			if !u.paused.Load() {
				go u.sampleGPUOnce(ctx)
			}
			gpuT.Reset(u.interval(&u.gpuEvery))
		case <-procT.C:
			if !u.paused.Load() {
				u.procs.Trigger()
			}
			procT.Reset(u.interval(&u.procsEvery))
		}
	}
}

// collectOnce runs one full sampling pass unless one is already in flight;
// an overrunning pass is skipped, not queued, and readers keep the last
// published snapshot in the meantime.
func (u *Updater) collectOnce(ctx context.Context) {
	if !u.collecting.CompareAndSwap(false, true) {
		return
	}
	defer u.collecting.Store(false)

	snap := u.source.Collect(ctx)
	if snap == nil {
		return
	}
	u.decayRefs(snap)
	u.latest.Store(snap)
}

// sampleGPUOnce drives one GPU-cadence pass with the same skip-if-in-flight
// policy as collectOnce: a slow device must not stack goroutines (and, on
// the subprocess backend, nvidia-smi processes) tick after tick.
func (u *Updater) sampleGPUOnce(ctx context.Context) {
	if !u.gpuSampling.CompareAndSwap(false, true) {
		return
	}
	defer u.gpuSampling.Store(false)

	u.source.SampleGPU(ctx)
}

// decayRefs updates the rate reference maxima with exponential decay.
func (u *Updater) decayRefs(snap *metrics.Snapshot) {
	u.refMu.Lock()
	defer u.refMu.Unlock()

	alpha := 0.0
	if !u.lastDecay.IsZero() {
		dt := snap.Timestamp.Sub(u.lastDecay).Seconds()
		alpha = math.Exp(-dt / refDecayTau.Seconds())
	}
	u.lastDecay = snap.Timestamp

	u.refs.NetRecv = math.Max(snap.Net.RecvBytesPerSec, u.refs.NetRecv*alpha)
	u.refs.NetSent = math.Max(snap.Net.SentBytesPerSec, u.refs.NetSent*alpha)
	u.refs.DiskRead = math.Max(snap.Disk.ReadBytesPerSec, u.refs.DiskRead*alpha)
	u.refs.DiskWrite = math.Max(snap.Disk.WriteBytesPerSec, u.refs.DiskWrite*alpha)
}

func (u *Updater) interval(field *time.Duration) time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()
	return *field
}

// LatestMetrics returns the most recent snapshot, or nil before the first
// completed pass. Pausing freezes, but does not clear, this value.
func (u *Updater) LatestMetrics() *metrics.Snapshot {
	return u.latest.Load()
}

// ProcessHierarchy returns the latest published process tree.
func (u *Updater) ProcessHierarchy() *proc.Hierarchy {
	return u.manager.Current()
}

// ProcessDiff reports changes between the two latest hierarchy snapshots.
func (u *Updater) ProcessDiff() proc.Diff {
	return u.manager.Diff()
}

// FilterProcesses queries the current hierarchy by name or PID.
func (u *Updater) FilterProcesses(query string) []*proc.ProcessNode {
	return u.manager.Filter(query)
}

// RequestExpand registers thread-list interest for pid; the list appears
// within one process-cadence cycle.
func (u *Updater) RequestExpand(pid int32) {
	u.manager.RequestExpand(pid)
}

// SetPaused toggles the cadence state machine. Entering paused suppresses
// future ticks only; it neither cancels in-flight sampling nor discards
// the last snapshot.
func (u *Updater) SetPaused(paused bool) {
	if u.paused.Swap(paused) != paused {
		log.Printf("[updater] paused=%v", paused)
	}
}

// Paused reports the cadence state.
func (u *Updater) Paused() bool {
	return u.paused.Load()
}

// SetIntervals reconfigures the cadences. Non-positive values leave the
// corresponding cadence unchanged.
func (u *Updater) SetIntervals(global, gpuEvery, procsEvery time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if global > 0 {
		u.global = global
	}
	if gpuEvery > 0 {
		u.gpuEvery = gpuEvery
	}
	if procsEvery > 0 {
		u.procsEvery = procsEvery
	}
}

// SetUnitMode switches the display unit for byte rates.
func (u *Updater) SetUnitMode(mode config.UnitMode) {
	u.mu.Lock()
	u.unit = mode
	u.mu.Unlock()
}

// UnitMode returns the current display unit.
func (u *Updater) UnitMode() config.UnitMode {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.unit
}

// DisplayRate converts a raw byte rate into the configured display unit.
func (u *Updater) DisplayRate(bytesPerSec float64) float64 {
	return bytesPerSec / u.UnitMode().BytesPerUnit()
}

// RateRefs returns the decaying reference maxima in raw bytes per second.
func (u *Updater) RateRefs() RateRefs {
	u.refMu.Lock()
	defer u.refMu.Unlock()
	return u.refs
}

// SystemInfo resolves the host's static identity through the cache.
func (u *Updater) SystemInfo(ctx context.Context) metrics.SystemInfo {
	return u.source.Info(ctx)
}
