package proc

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Manager holds the latest published hierarchy and the expansion interest
// set. All read operations are non-blocking and reflect the most recent
// snapshot; the expanded-PID set is consulted by the collector on its next
// cycle, so an expansion becomes visible with at most one cycle of latency.
type Manager struct {
	current  atomic.Pointer[Hierarchy]
	previous atomic.Pointer[Hierarchy]

	mu       sync.Mutex
	expanded map[int32]struct{}
}

func NewManager() *Manager {
	return &Manager{expanded: make(map[int32]struct{})}
}

// Current returns the most recently published hierarchy, or nil before the
// first collector cycle.
func (m *Manager) Current() *Hierarchy {
	return m.current.Load()
}

// Previous returns the snapshot published before the current one.
func (m *Manager) Previous() *Hierarchy {
	return m.previous.Load()
}

// Publish atomically swaps in a new hierarchy. Consumers holding the old
// pointer keep a consistent view until they re-read.
func (m *Manager) Publish(h *Hierarchy) {
	old := m.current.Swap(h)
	m.previous.Store(old)
}

// RequestExpand registers interest in pid's threads. Idempotent.
func (m *Manager) RequestExpand(pid int32) {
	m.mu.Lock()
	m.expanded[pid] = struct{}{}
	m.mu.Unlock()
}

// Collapse withdraws interest so the collector stops refreshing the
// thread list for pid.
func (m *Manager) Collapse(pid int32) {
	m.mu.Lock()
	delete(m.expanded, pid)
	m.mu.Unlock()
}

// IsExpanded reports whether pid's threads have been requested.
func (m *Manager) IsExpanded(pid int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.expanded[pid]
	return ok
}

// expandedSet copies the interest set for one collector cycle.
func (m *Manager) expandedSet() map[int32]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[int32]struct{}, len(m.expanded))
	for pid := range m.expanded {
		set[pid] = struct{}{}
	}
	return set
}

// Filter returns the current hierarchy's nodes matching query: a
// case-insensitive name substring, or a PID prefix when the query is
// numeric. Results are always ordered by descending CPU, the empty query
// included: Processes walks the core map, whose iteration order varies
// between calls. Recomputed against the latest snapshot on every call.
func (m *Manager) Filter(query string) []*ProcessNode {
	h := m.Current()
	if h == nil {
		return nil
	}
	query = strings.ToLower(strings.TrimSpace(query))

	var out []*ProcessNode
	if query == "" {
		out = h.Processes()
	} else {
		isPID := true
		for _, r := range query {
			if r < '0' || r > '9' {
				isPID = false
				break
			}
		}
		for _, n := range h.Processes() {
			if isPID {
				if strings.HasPrefix(strconv.Itoa(int(n.PID)), query) {
					out = append(out, n)
				}
				continue
			}
			if strings.Contains(strings.ToLower(n.Name), query) {
				out = append(out, n)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CPUPercent > out[j].CPUPercent })
	return out
}

// DiffHierarchies compares two snapshots by PID. A node counts as updated
// when its core, usage, or thread shape changed.
func DiffHierarchies(prev, cur *Hierarchy) Diff {
	var d Diff
	if cur == nil {
		if prev != nil {
			d.Removed = prev.Processes()
		}
		return d
	}
	if prev == nil {
		d.Added = cur.Processes()
		return d
	}

	for pid, node := range cur.byPID {
		old, ok := prev.byPID[pid]
		switch {
		case !ok:
			d.Added = append(d.Added, node)
		case nodeChanged(old, node):
			d.Updated = append(d.Updated, node)
		}
	}
	for pid, node := range prev.byPID {
		if _, ok := cur.byPID[pid]; !ok {
			d.Removed = append(d.Removed, node)
		}
	}
	return d
}

// Diff reports the changes between the previous and current snapshots.
func (m *Manager) Diff() Diff {
	return DiffHierarchies(m.Previous(), m.Current())
}

func nodeChanged(a, b *ProcessNode) bool {
	return a.Core != b.Core ||
		a.CPUPercent != b.CPUPercent ||
		a.MemoryPercent != b.MemoryPercent ||
		a.RSS != b.RSS ||
		a.NumThreads != b.NumThreads ||
		a.ThreadsFetched != b.ThreadsFetched ||
		len(a.Threads) != len(b.Threads)
}
