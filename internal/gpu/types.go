// Package gpu samples NVIDIA GPU state through the NVML library binding,
// falling back to the nvidia-smi command-line tool when the binding is
// unavailable. Backend selection is sticky: once the native path fails it is
// not retried for the lifetime of the process.
package gpu

import "errors"

// ErrUnavailable indicates that no GPU backend could produce data.
var ErrUnavailable = errors.New("gpu: no backend available")

// errParse marks backend output that could not be understood. Parse
// failures are per-tick conditions: the backend is retried on the next
// sample rather than demoted.
var errParse = errors.New("gpu: unparseable backend output")

// Status describes the validity of a Sample.
type Status int

const (
	StatusOK Status = iota
	StatusUnavailable
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnavailable:
		return "unavailable"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Sample holds one device's state at a point in time. Name and MemoryTotal
// are static facts resolved once per device and served from the cache; the
// remaining fields are re-queried on every call.
type Sample struct {
	Index       int
	Name        string
	Utilization float64 // percent
	MemoryUsed  uint64  // bytes
	MemoryTotal uint64  // bytes
	Temperature float64 // celsius
	ClockMHz    float64 // graphics clock; 0 when the backend does not expose it
	Status      Status
}
