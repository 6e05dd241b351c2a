package cache

import (
	"math"
	"runtime"
	"runtime/debug"
)

// MemoryProbe reports process memory usage. ok is false when no reading is
// available, which disables pressure eviction for that check.
type MemoryProbe interface {
	MemoryUsage() (used, total uint64, ok bool)
}

// RuntimeProbe compares memory obtained from the OS, less what the heap has
// released back, against the runtime soft memory limit (GOMEMLIMIT or
// debug.SetMemoryLimit). Without a limit it reports no reading.
type RuntimeProbe struct{}

func (RuntimeProbe) MemoryUsage() (used, total uint64, ok bool) {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return 0, 0, false
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Sys - m.HeapReleased, uint64(limit), true
}

// ProbeFunc adapts a function to MemoryProbe.
type ProbeFunc func() (used, total uint64, ok bool)

func (f ProbeFunc) MemoryUsage() (used, total uint64, ok bool) {
	return f()
}
