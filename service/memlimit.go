package service

import "sync/atomic"

// MemLimiter is the per-service memory counter: Alloc accounts bytes against
// the configured limit and refuses an allocation that would exceed it (the
// service implementation surfaces that as a soft failure). The runtime does
// not route a service's allocations through it: nothing outside the service
// calls Alloc or Free, so only bytes the handler accounts explicitly are
// counted. A doubling report threshold fires OnReport each time the counted
// usage crosses the next watermark (starting at limit/8).
type MemLimiter struct {
	limit    int64
	used     atomic.Int64
	reportAt atomic.Int64
	onReport func(used, threshold int64)
}

// NewMemLimiter constructs a limiter with the given hard cap in bytes.
func NewMemLimiter(limit int64) *MemLimiter {
	m := &MemLimiter{limit: limit}
	m.reportAt.Store(limit / 8)
	if m.reportAt.Load() <= 0 {
		m.reportAt.Store(1)
	}
	return m
}

// OnReport registers a callback invoked (synchronously, from Alloc) each
// time the usage crosses the next doubling watermark. Typically wired to the
// runtime's log sink by the owning service's worker.
func (m *MemLimiter) OnReport(fn func(used, threshold int64)) {
	m.onReport = fn
}

// Alloc attempts to account n additional bytes against the limit. Returns
// false (refusing the allocation) if doing so would exceed the cap.
func (m *MemLimiter) Alloc(n int64) bool {
	if n <= 0 {
		return true
	}
	next := m.used.Add(n)
	if next > m.limit {
		m.used.Add(-n)
		return false
	}
	for {
		threshold := m.reportAt.Load()
		if next < threshold {
			break
		}
		if m.reportAt.CompareAndSwap(threshold, threshold*2) {
			if m.onReport != nil {
				m.onReport(next, threshold)
			}
			break
		}
	}
	return true
}

// Free releases n previously accounted bytes.
func (m *MemLimiter) Free(n int64) {
	if n <= 0 {
		return
	}
	m.used.Add(-n)
}

// Used returns bytes currently attributed to the service.
func (m *MemLimiter) Used() int64 { return m.used.Load() }

// Limit returns the hard cap in bytes.
func (m *MemLimiter) Limit() int64 { return m.limit }
