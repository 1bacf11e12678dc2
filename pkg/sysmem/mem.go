// Package sysmem detects total system RAM and guards in-memory structures
// against growing past a share of it.
package sysmem

import "sync/atomic"

// DefaultMemoryBytes (4 GiB) is assumed when detection is unsupported or fails.
const DefaultMemoryBytes uint64 = 4 << 30

// Result holds the detected memory size.
type Result struct {
	TotalBytes uint64

	// Reliable is false when TotalBytes is DefaultMemoryBytes because the
	// platform probe was unavailable.
	Reliable bool
}

// Total returns the total system memory.
func Total() Result {
	if n, ok := probe(); ok && n > 0 {
		return Result{TotalBytes: n, Reliable: true}
	}
	return Result{TotalBytes: DefaultMemoryBytes}
}

// Guard trips once when reported usage first exceeds its limit.
// It is safe for concurrent use.
type Guard struct {
	limit   uint64
	tripped atomic.Bool
}

// NewGuard returns a guard whose limit is fraction of total. A fraction
// outside (0, 1] returns nil, and a nil Guard never trips.
func NewGuard(total Result, fraction float64) *Guard {
	if fraction <= 0 || fraction > 1 {
		return nil
	}
	return &Guard{limit: uint64(float64(total.TotalBytes) * fraction)}
}

// Limit returns the guard's threshold in bytes.
func (g *Guard) Limit() uint64 {
	if g == nil {
		return 0
	}
	return g.limit
}

// Check reports true exactly once: the first time used exceeds the limit.
func (g *Guard) Check(used int64) bool {
	if g == nil || used < 0 || uint64(used) <= g.limit {
		return false
	}
	return g.tripped.CompareAndSwap(false, true)
}
