package proc

import (
	"context"
	"log"
	"runtime"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const defaultThreadCap = 64

// procEntry is one enumerated process before grouping.
type procEntry struct {
	pid        int32
	name       string
	core       int
	cpuPercent float64
	memPercent float64
	rss        uint64
	numThreads int32
}

// threadStat is one thread reading with its cumulative CPU time, from
// which the collector derives a percentage against the previous cycle.
type threadStat struct {
	tid     int32
	name    string
	cpuTime float64 // seconds, cumulative
}

// Collector is the background producer of hierarchy snapshots. It owns no
// timer: each enumeration cycle is requested through Trigger, normally by
// the updater's process cadence. At most one cycle runs at a time; extra
// triggers during a running cycle collapse into one.
type Collector struct {
	manager   *Manager
	cores     int
	threadCap int

	listFn    func(ctx context.Context) ([]procEntry, error)
	threadsFn func(pid int32) ([]threadStat, error)

	// Cycle-local state, touched only by the Run goroutine.
	procs       map[int32]*process.Process
	prevThreads map[int32]map[int32]float64 // pid → tid → cpu seconds
	lastCycle   time.Time

	trigger chan struct{}
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithThreadCap bounds how many threads are materialized per process.
func WithThreadCap(n int) CollectorOption {
	return func(c *Collector) {
		if n > 0 {
			c.threadCap = n
		}
	}
}

// WithMockProcesses replaces OS enumeration with a synthetic process set.
func WithMockProcesses() CollectorOption {
	return func(c *Collector) { c.useMockProcesses() }
}

func NewCollector(m *Manager, opts ...CollectorOption) *Collector {
	c := &Collector{
		manager:     m,
		cores:       runtime.NumCPU(),
		threadCap:   defaultThreadCap,
		procs:       make(map[int32]*process.Process),
		prevThreads: make(map[int32]map[int32]float64),
		trigger:     make(chan struct{}, 1),
	}
	c.listFn = c.listProcesses
	c.threadsFn = listThreads
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Trigger requests one enumeration cycle. Never blocks; a trigger arriving
// while one is already pending is coalesced.
func (c *Collector) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Run processes triggers until ctx is done. It is the only goroutine that
// touches the collector's cycle state.
func (c *Collector) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.trigger:
			c.cycle(ctx)
		}
	}
}

// cycle enumerates processes, groups them under their last-observed core,
// refreshes thread lists for expanded PIDs, and publishes the result.
func (c *Collector) cycle(ctx context.Context) {
	now := time.Now()
	entries, err := c.listFn(ctx)
	if err != nil {
		log.Printf("[proc] enumeration failed: %v", err)
		return
	}

	elapsed := 0.0
	if !c.lastCycle.IsZero() {
		elapsed = now.Sub(c.lastCycle).Seconds()
	}
	c.lastCycle = now

	expanded := c.manager.expandedSet()
	h := &Hierarchy{
		Timestamp: now,
		Cores:     make(map[int][]*ProcessNode, c.cores),
		byPID:     make(map[int32]*ProcessNode, len(entries)),
	}

	live := make(map[int32]struct{}, len(entries))
	for _, e := range entries {
		live[e.pid] = struct{}{}
		node := &ProcessNode{
			PID:           e.pid,
			Name:          e.name,
			Core:          e.core,
			CPUPercent:    e.cpuPercent,
			MemoryPercent: e.memPercent,
			RSS:           e.rss,
			NumThreads:    e.numThreads,
		}
		if _, ok := expanded[e.pid]; ok {
			node.ThreadsFetched = true
			node.Threads = c.collectThreads(e.pid, elapsed)
		}
		h.Cores[node.Core] = append(h.Cores[node.Core], node)
		h.byPID[node.PID] = node
		h.TotalProcesses++
		h.TotalThreads += int(e.numThreads)
	}

	for core := range h.Cores {
		ps := h.Cores[core]
		sort.Slice(ps, func(i, j int) bool { return ps[i].CPUPercent > ps[j].CPUPercent })
	}

	// Drop per-thread baselines for exited or collapsed processes.
	for pid := range c.prevThreads {
		_, isLive := live[pid]
		_, isExpanded := expanded[pid]
		if !isLive || !isExpanded {
			delete(c.prevThreads, pid)
		}
	}

	c.manager.Publish(h)
}

// collectThreads materializes the thread list for one expanded process.
// The process may have exited between enumeration and now; that yields an
// empty (but fetched) list.
func (c *Collector) collectThreads(pid int32, elapsed float64) []ThreadNode {
	stats, err := c.threadsFn(pid)
	if err != nil {
		return []ThreadNode{}
	}
	if len(stats) > c.threadCap {
		stats = stats[:c.threadCap]
	}

	prev := c.prevThreads[pid]
	cur := make(map[int32]float64, len(stats))
	nodes := make([]ThreadNode, 0, len(stats))
	for _, st := range stats {
		cur[st.tid] = st.cpuTime
		node := ThreadNode{TID: st.tid, Name: st.name}
		if prevTime, ok := prev[st.tid]; ok && elapsed > 0 && st.cpuTime >= prevTime {
			node.CPUPercent = (st.cpuTime - prevTime) / elapsed * 100
		}
		nodes = append(nodes, node)
	}
	c.prevThreads[pid] = cur

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].TID < nodes[j].TID })
	return nodes
}

// listProcesses enumerates live processes with gopsutil, reusing process
// handles across cycles so CPU percentages are deltas since the previous
// cycle rather than since process start.
func (c *Collector) listProcesses(ctx context.Context) ([]procEntry, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	next := make(map[int32]*process.Process, len(procs))
	entries := make([]procEntry, 0, len(procs))
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		handle, ok := c.procs[p.Pid]
		if !ok {
			handle = p
		}
		next[p.Pid] = handle

		name, err := handle.NameWithContext(ctx)
		if err != nil || name == "" {
			continue // exited mid-cycle or a nameless kernel thread
		}

		e := procEntry{pid: p.Pid, name: name, core: lastRunCore(p.Pid, c.cores)}
		e.cpuPercent, _ = handle.PercentWithContext(ctx, 0)
		if memPct, err := handle.MemoryPercentWithContext(ctx); err == nil {
			e.memPercent = float64(memPct)
		}
		if mi, err := handle.MemoryInfoWithContext(ctx); err == nil && mi != nil {
			e.rss = mi.RSS
		}
		e.numThreads, _ = handle.NumThreadsWithContext(ctx)

		entries = append(entries, e)
	}
	c.procs = next
	return entries, nil
}
