// Package metrics samples CPU, memory, network, disk, and GPU state and
// merges the results into immutable snapshots. Sub-samples run on a bounded
// worker pool with individual timeouts so one slow source (typically the
// GPU) cannot stall the pass; a source that fails contributes an
// unavailable placeholder instead of failing the whole collection.
package metrics

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/google/pulsemon/internal/cache"
	"github.com/google/pulsemon/internal/gpu"
)

const (
	defaultWorkers       = 4
	defaultSourceTimeout = 2 * time.Second
	defaultGPUMaxAge     = 5 * time.Second
)

// ioCounters are cumulative byte totals read from the OS.
type ioCounters struct {
	in  uint64 // recv / read
	out uint64 // sent / write
}

// ioBaseline pairs a counter reading with its sampling instant. Each rate
// source keeps its own baseline: a pass where that source failed leaves the
// baseline alone, so the next successful delta divides by the real elapsed
// span instead of a single tick's.
type ioBaseline struct {
	counters ioCounters
	at       time.Time
}

type gpuResult struct {
	samples []gpu.Sample
	at      time.Time
}

// Collector performs one sampling pass per Collect call. It is stateless
// with respect to timing (the updater owns all cadences) but keeps counter
// baselines between passes to turn cumulative totals into rates.
type Collector struct {
	cache    *cache.Cache
	provider *gpu.Provider

	workers       int
	sourceTimeout time.Duration
	gpuMaxAge     time.Duration

	cpuFn  func(context.Context) (CPUStats, error)
	memFn  func(context.Context) (MemoryStats, error)
	netFn  func(context.Context) (ioCounters, error)
	diskFn func(context.Context) (ioCounters, error)
	gpuFn  func(context.Context) ([]gpu.Sample, error)

	// Baselines are only touched by Collect, which the updater serializes.
	lastTime time.Time
	lastNet  *ioBaseline
	lastDisk *ioBaseline

	gpuCell atomic.Pointer[gpuResult]
}

// Option configures a Collector.
type Option func(*Collector)

// WithWorkers bounds the sampling pool size.
func WithWorkers(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithSourceTimeout sets the per-source timeout.
func WithSourceTimeout(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.sourceTimeout = d
		}
	}
}

// WithMockSources replaces the OS samplers with synthetic ones.
func WithMockSources() Option {
	return func(c *Collector) { c.useMockSources() }
}

// NewCollector builds a collector over the OS samplers and the given GPU
// provider. Static facts (memory frequency, CPU identity) go through cch.
func NewCollector(cch *cache.Cache, provider *gpu.Provider, opts ...Option) *Collector {
	c := &Collector{
		cache:         cch,
		provider:      provider,
		workers:       defaultWorkers,
		sourceTimeout: defaultSourceTimeout,
		gpuMaxAge:     defaultGPUMaxAge,
	}
	c.cpuFn = c.sampleCPU
	c.memFn = c.sampleMemory
	c.netFn = sampleNet
	c.diskFn = sampleDisk
	if provider != nil {
		c.gpuFn = provider.Sample
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect runs one full sampling pass and returns the merged snapshot. It
// waits for every sub-sample (success or timeout) before returning, so the
// snapshot is never partial; it returns within the per-source timeout plus
// scheduling slack even if a source hangs.
func (c *Collector) Collect(ctx context.Context) *Snapshot {
	now := time.Now()
	snap := &Snapshot{Timestamp: now}
	if !c.lastTime.IsZero() {
		snap.Elapsed = now.Sub(c.lastTime)
	}

	var (
		netCur, diskCur ioCounters
		netErr, diskErr error
		cpuErr, memErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	g.Go(func() error {
		var st CPUStats
		st, cpuErr = runSource(gctx, c.sourceTimeout, "cpu", c.cpuFn)
		if cpuErr == nil {
			st.Available = true
			snap.CPU = st
		}
		return nil
	})
	g.Go(func() error {
		var st MemoryStats
		st, memErr = runSource(gctx, c.sourceTimeout, "memory", c.memFn)
		if memErr == nil {
			st.Available = true
			snap.Memory = st
		}
		return nil
	})
	g.Go(func() error {
		netCur, netErr = runSource(gctx, c.sourceTimeout, "network", c.netFn)
		return nil
	})
	g.Go(func() error {
		diskCur, diskErr = runSource(gctx, c.sourceTimeout, "disk", c.diskFn)
		return nil
	})
	g.Go(func() error {
		snap.GPU = c.gpuSamples(gctx)
		return nil
	})
	_ = g.Wait()

	if netErr == nil {
		snap.Net.Available = true
		snap.Net.BytesRecv = netCur.in
		snap.Net.BytesSent = netCur.out
		in, out := rate(c.lastNet, netCur, now)
		snap.Net.RecvBytesPerSec = in
		snap.Net.SentBytesPerSec = out
		c.lastNet = &ioBaseline{counters: netCur, at: now}
	}
	if diskErr == nil {
		snap.Disk.Available = true
		snap.Disk.ReadBytes = diskCur.in
		snap.Disk.WriteBytes = diskCur.out
		in, out := rate(c.lastDisk, diskCur, now)
		snap.Disk.ReadBytesPerSec = in
		snap.Disk.WriteBytesPerSec = out
		c.lastDisk = &ioBaseline{counters: diskCur, at: now}
	}
	c.lastTime = now
	return snap
}

// SampleGPU forces a fresh GPU query, independent of the global cadence.
// The result feeds later Collect passes through the provider cell.
func (c *Collector) SampleGPU(ctx context.Context) []gpu.Sample {
	if c.gpuFn == nil {
		return nil
	}
	samples, err := runSource(ctx, c.sourceTimeout, "gpu", c.gpuFn)
	if err != nil {
		samples = c.unavailableGPU()
	}
	c.gpuCell.Store(&gpuResult{samples: samples, at: time.Now()})
	return samples
}

// LatestGPU returns the most recently stored GPU samples, if any.
func (c *Collector) LatestGPU() []gpu.Sample {
	if r := c.gpuCell.Load(); r != nil {
		return r.samples
	}
	return nil
}

// gpuSamples serves the GPU sub-sample for a full pass: a recent result
// from the GPU cadence is reused as-is, otherwise the device is queried
// under the source timeout.
func (c *Collector) gpuSamples(ctx context.Context) []gpu.Sample {
	if r := c.gpuCell.Load(); r != nil && time.Since(r.at) <= c.gpuMaxAge {
		return r.samples
	}
	return c.SampleGPU(ctx)
}

func (c *Collector) unavailableGPU() []gpu.Sample {
	if c.provider == nil {
		return nil
	}
	names := c.provider.Names()
	if len(names) == 0 {
		return nil
	}
	samples := make([]gpu.Sample, len(names))
	for i, n := range names {
		samples[i] = gpu.Sample{Index: i, Name: n, Status: gpu.StatusUnavailable}
	}
	return samples
}

// rate converts two cumulative readings into a per-second rate over the
// span since the source's own baseline. A counter that went backwards
// means the kernel reset it: emit zero and reseed the baseline from the
// current reading.
func rate(prev *ioBaseline, cur ioCounters, now time.Time) (in, out float64) {
	if prev == nil {
		return 0, 0
	}
	elapsedSec := now.Sub(prev.at).Seconds()
	if elapsedSec <= 0 {
		return 0, 0
	}
	if cur.in >= prev.counters.in {
		in = float64(cur.in-prev.counters.in) / elapsedSec
	}
	if cur.out >= prev.counters.out {
		out = float64(cur.out-prev.counters.out) / elapsedSec
	}
	return in, out
}

// runSource executes one sampler with a hard deadline, converting panics
// and timeouts into errors so a misbehaving source degrades to an
// unavailable field for this tick only.
func runSource[T any](ctx context.Context, timeout time.Duration, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				ch <- result{zero, fmt.Errorf("%s source panicked: %v", name, r)}
			}
		}()
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			log.Printf("[metrics] %s sample failed: %v", name, r.err)
		}
		return r.v, r.err
	case <-ctx.Done():
		log.Printf("[metrics] %s sample timed out after %s", name, timeout)
		var zero T
		return zero, ctx.Err()
	}
}
