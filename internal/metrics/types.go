package metrics

import (
	"time"

	"github.com/google/pulsemon/internal/gpu"
)

// Snapshot is an immutable aggregate of one sampling pass. It is built once
// per Collect call and never mutated afterwards; consumers receive the
// pointer through an atomic cell and may read it without locking.
type Snapshot struct {
	Timestamp time.Time
	Elapsed   time.Duration // wall time since the previous snapshot

	CPU    CPUStats
	Memory MemoryStats
	Net    NetStats
	Disk   DiskStats
	GPU    []gpu.Sample
}

// CPUStats holds aggregate and per-core CPU state.
type CPUStats struct {
	Available    bool
	UsagePercent float64   // aggregate, 0-100
	PerCoreUsage []float64 // percent per logical core
	PerCoreMHz   []float64 // current frequency per logical core, if exposed
	FrequencyMHz float64   // aggregate current frequency
}

// MemoryStats holds physical memory state. FrequencyMHz requires privileged
// hardware table access and is 0 when that access is denied.
type MemoryStats struct {
	Available    bool
	Total        uint64
	Used         uint64
	UsedPercent  float64
	FrequencyMHz float64
}

// NetStats holds cumulative network counters plus the rate computed against
// the previous snapshot's counters.
type NetStats struct {
	Available       bool
	BytesRecv       uint64 // cumulative
	BytesSent       uint64 // cumulative
	RecvBytesPerSec float64
	SentBytesPerSec float64
}

// DiskStats holds cumulative disk I/O counters plus per-second rates.
type DiskStats struct {
	Available        bool
	ReadBytes        uint64 // cumulative
	WriteBytes       uint64 // cumulative
	ReadBytesPerSec  float64
	WriteBytesPerSec float64
}

// GPUAvailable reports whether any device produced a valid reading.
func (s *Snapshot) GPUAvailable() bool {
	for _, g := range s.GPU {
		if g.Status == gpu.StatusOK {
			return true
		}
	}
	return false
}
