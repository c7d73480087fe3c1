// Package proc builds a hierarchical core→process→thread view of the
// system. A background collector continuously enumerates processes and tags
// each with the CPU core it was last observed running on; thread lists are
// materialized lazily, only for processes a consumer has expanded. The
// manager publishes immutable hierarchy snapshots through an atomic cell
// and answers search and diff queries against the latest one.
package proc

import "time"

// ThreadNode is one thread of a process, materialized on demand.
type ThreadNode struct {
	TID        int32
	Name       string
	CPUPercent float64
}

// ProcessNode is one process pinned under the core it last ran on. Nodes
// are owned by the collector until published, then shared read-only.
type ProcessNode struct {
	PID           int32
	Name          string
	Core          int // last-observed core, not a pinning guarantee
	CPUPercent    float64
	MemoryPercent float64
	RSS           uint64
	NumThreads    int32

	// ThreadsFetched distinguishes "not requested" from "requested but the
	// process has no threads we could read".
	ThreadsFetched bool
	Threads        []ThreadNode
}

// Hierarchy is one published snapshot of the process tree. Cores maps a
// core index to its processes ordered by descending CPU; every process
// appears under exactly one core.
type Hierarchy struct {
	Timestamp      time.Time
	Cores          map[int][]*ProcessNode
	TotalProcesses int
	TotalThreads   int

	byPID map[int32]*ProcessNode
}

// Lookup returns the node for pid, or nil.
func (h *Hierarchy) Lookup(pid int32) *ProcessNode {
	if h == nil {
		return nil
	}
	return h.byPID[pid]
}

// Processes returns every node in the hierarchy, core by core.
func (h *Hierarchy) Processes() []*ProcessNode {
	if h == nil {
		return nil
	}
	nodes := make([]*ProcessNode, 0, len(h.byPID))
	for _, ps := range h.Cores {
		nodes = append(nodes, ps...)
	}
	return nodes
}

// Diff lists the node-level changes between two hierarchy snapshots, so a
// view can apply incremental updates instead of a full rebuild.
type Diff struct {
	Added   []*ProcessNode // present now, absent before
	Removed []*ProcessNode // present before, absent now
	Updated []*ProcessNode // present in both with changed fields (core moves included)
}

// Empty reports whether the diff carries no changes.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Updated) == 0
}
