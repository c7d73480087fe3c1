package proc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildHierarchy(nodes ...*ProcessNode) *Hierarchy {
	h := &Hierarchy{
		Timestamp: time.Now(),
		Cores:     make(map[int][]*ProcessNode),
		byPID:     make(map[int32]*ProcessNode),
	}
	for _, n := range nodes {
		h.Cores[n.Core] = append(h.Cores[n.Core], n)
		h.byPID[n.PID] = n
		h.TotalProcesses++
	}
	return h
}

func TestCurrentBeforeFirstPublish(t *testing.T) {
	m := NewManager()
	assert.Nil(t, m.Current())
	assert.Empty(t, m.Filter("anything"))
}

func TestPublishSwapsAtomically(t *testing.T) {
	m := NewManager()
	h1 := buildHierarchy(&ProcessNode{PID: 1, Name: "systemd"})
	h2 := buildHierarchy(&ProcessNode{PID: 1, Name: "systemd"}, &ProcessNode{PID: 2, Name: "kthreadd"})

	m.Publish(h1)
	assert.Same(t, h1, m.Current())

	m.Publish(h2)
	assert.Same(t, h2, m.Current())
	assert.Same(t, h1, m.Previous(), "consumers can still diff against the prior snapshot")
}

func TestFilterByNameIsCaseInsensitive(t *testing.T) {
	m := NewManager()
	m.Publish(buildHierarchy(
		&ProcessNode{PID: 100, Name: "Chrome", CPUPercent: 12},
		&ProcessNode{PID: 101, Name: "chrome-sandbox", CPUPercent: 30},
		&ProcessNode{PID: 200, Name: "postgres"},
	))

	matches := m.Filter("chrome")
	require.Len(t, matches, 2)
	assert.Equal(t, "chrome-sandbox", matches[0].Name, "results ordered by CPU")
	assert.Equal(t, "Chrome", matches[1].Name)

	assert.Empty(t, m.Filter("firefox"))
}

func TestFilterByPID(t *testing.T) {
	m := NewManager()
	m.Publish(buildHierarchy(
		&ProcessNode{PID: 1234, Name: "code"},
		&ProcessNode{PID: 12345, Name: "code-helper"},
		&ProcessNode{PID: 999, Name: "bash"},
	))

	exact := m.Filter("1234")
	require.Len(t, exact, 2, "PID queries match by prefix")

	one := m.Filter("999")
	require.Len(t, one, 1)
	assert.Equal(t, int32(999), one[0].PID)

	assert.Empty(t, m.Filter("777"))
}

func TestFilterEmptyQueryReturnsEverything(t *testing.T) {
	m := NewManager()
	m.Publish(buildHierarchy(
		&ProcessNode{PID: 1, Name: "a"},
		&ProcessNode{PID: 2, Name: "b"},
	))
	assert.Len(t, m.Filter(""), 2)
	assert.Len(t, m.Filter("  "), 2)
}

func TestFilterEmptyQueryIsCPUDescendingAcrossCores(t *testing.T) {
	m := NewManager()
	m.Publish(buildHierarchy(
		&ProcessNode{PID: 1, Name: "a", Core: 0, CPUPercent: 5},
		&ProcessNode{PID: 2, Name: "b", Core: 1, CPUPercent: 50},
		&ProcessNode{PID: 3, Name: "c", Core: 2, CPUPercent: 20},
		&ProcessNode{PID: 4, Name: "d", Core: 3, CPUPercent: 90},
	))

	// Core map iteration order varies, so repeat to catch a reshuffle.
	for i := 0; i < 20; i++ {
		out := m.Filter("")
		require.Len(t, out, 4)
		for j := 1; j < len(out); j++ {
			require.GreaterOrEqual(t, out[j-1].CPUPercent, out[j].CPUPercent,
				"empty-query results must stay CPU-descending")
		}
	}
}

func TestRequestExpandIsTrackedUntilCollapse(t *testing.T) {
	m := NewManager()
	assert.False(t, m.IsExpanded(42))

	m.RequestExpand(42)
	m.RequestExpand(42) // idempotent
	assert.True(t, m.IsExpanded(42))

	set := m.expandedSet()
	assert.Len(t, set, 1)

	m.Collapse(42)
	assert.False(t, m.IsExpanded(42))
}

func TestDiffHierarchies(t *testing.T) {
	prev := buildHierarchy(
		&ProcessNode{PID: 1, Name: "systemd", Core: 0, CPUPercent: 1},
		&ProcessNode{PID: 2, Name: "chrome", Core: 0, CPUPercent: 20},
		&ProcessNode{PID: 3, Name: "gone", Core: 1},
	)
	cur := buildHierarchy(
		&ProcessNode{PID: 1, Name: "systemd", Core: 0, CPUPercent: 1},
		&ProcessNode{PID: 2, Name: "chrome", Core: 1, CPUPercent: 25}, // moved core, new usage
		&ProcessNode{PID: 4, Name: "new", Core: 0},
	)

	d := DiffHierarchies(prev, cur)
	require.Len(t, d.Added, 1)
	assert.Equal(t, int32(4), d.Added[0].PID)
	require.Len(t, d.Removed, 1)
	assert.Equal(t, int32(3), d.Removed[0].PID)
	require.Len(t, d.Updated, 1)
	assert.Equal(t, int32(2), d.Updated[0].PID)
}

func TestDiffAgainstNil(t *testing.T) {
	h := buildHierarchy(&ProcessNode{PID: 1, Name: "init"})

	d := DiffHierarchies(nil, h)
	assert.Len(t, d.Added, 1)
	assert.Empty(t, d.Removed)

	d = DiffHierarchies(h, nil)
	assert.Len(t, d.Removed, 1)
	assert.True(t, DiffHierarchies(nil, nil).Empty())
}

func TestDiffUnchangedIsEmpty(t *testing.T) {
	a := &ProcessNode{PID: 1, Name: "systemd", CPUPercent: 2}
	b := &ProcessNode{PID: 1, Name: "systemd", CPUPercent: 2}
	d := DiffHierarchies(buildHierarchy(a), buildHierarchy(b))
	assert.True(t, d.Empty())
}
