package tracker

import (
	"sync/atomic"
	"time"
)

// durationStats accumulates a running total/min/max of observed durations
// using only atomic operations. Min and max use compare-and-retry loops; a
// zero min word means "no sample yet" (a genuine zero-length span still
// updates it to 1ns, below any clock's resolution of interest).
type durationStats struct {
	totalNanos atomic.Int64
	minNanos   atomic.Int64
	maxNanos   atomic.Int64
	samples    atomic.Int64
}

func (d *durationStats) Observe(elapsed time.Duration) {
	ns := elapsed.Nanoseconds()
	if ns <= 0 {
		ns = 1
	}
	d.totalNanos.Add(ns)
	d.samples.Add(1)

	for {
		cur := d.minNanos.Load()
		if cur != 0 && cur <= ns {
			break
		}
		if d.minNanos.CompareAndSwap(cur, ns) {
			break
		}
	}
	for {
		cur := d.maxNanos.Load()
		if cur >= ns {
			break
		}
		if d.maxNanos.CompareAndSwap(cur, ns) {
			break
		}
	}
}

func (d *durationStats) snapshot() DurationSnapshot {
	return DurationSnapshot{
		Total:   time.Duration(d.totalNanos.Load()),
		Min:     time.Duration(d.minNanos.Load()),
		Max:     time.Duration(d.maxNanos.Load()),
		Samples: d.samples.Load(),
	}
}

// PooledMetrics is the mutable per-type counter state for one pooled
// resource type. One instance exists per distinct type name and lives for
// the process lifetime once first observed. Every counter is monotonically
// non-decreasing and mutated only by lock-free atomic operations.
type PooledMetrics struct {
	typeName string
	maxSize  int64

	creations         atomic.Int64
	disposals         atomic.Int64
	rents             atomic.Int64
	returns           atomic.Int64
	overflowDisposals atomic.Int64
	overflowCreations atomic.Int64
	leaked            atomic.Int64
	ignoredEvents     atomic.Int64

	rental durationStats

	lastUpdated atomic.Int64 // unix nanos
}

func newPooledMetrics(typeName string, maxSize int64) *PooledMetrics {
	return &PooledMetrics{typeName: typeName, maxSize: maxSize}
}

// TypeName returns the resource type this state belongs to.
func (m *PooledMetrics) TypeName() string { return m.typeName }

// MaxPoolSize returns the configured capacity for the type.
func (m *PooledMetrics) MaxPoolSize() int64 { return m.maxSize }

func (m *PooledMetrics) touch(now time.Time) {
	m.lastUpdated.Store(now.UnixNano())
}

// recordCreation increments the physical creation counter and returns the
// new count so the caller can decide overflow at creation time.
func (m *PooledMetrics) recordCreation(now time.Time) int64 {
	n := m.creations.Add(1)
	m.touch(now)
	return n
}

func (m *PooledMetrics) recordOverflowCreation() {
	m.overflowCreations.Add(1)
}

func (m *PooledMetrics) recordRent(now time.Time) {
	m.rents.Add(1)
	m.touch(now)
}

func (m *PooledMetrics) recordReturn(now time.Time) {
	m.returns.Add(1)
	m.touch(now)
}

func (m *PooledMetrics) recordRentalDuration(elapsed time.Duration) {
	m.rental.Observe(elapsed)
}

// recordDisposal classifies the disposal from the instance's state and the
// counters as they stood at the moment of disposal, then folds the result
// in. The disposal counter is incremented after classification so the
// capacity check sees the pre-disposal live count.
func (m *PooledMetrics) recordDisposal(st *InstanceState, now time.Time) DisposalCategory {
	category := ClassifyDisposal(
		st.WasReturnedToPool(),
		st.IsOverflow(),
		m.creations.Load(),
		m.disposals.Load(),
		m.maxSize,
	)
	m.disposals.Add(1)
	if category.IsOverflow() {
		m.overflowDisposals.Add(1)
	} else {
		m.leaked.Add(1)
	}
	m.touch(now)
	return category
}

func (m *PooledMetrics) recordIgnoredEvent() {
	m.ignoredEvents.Add(1)
}

// Snapshot assembles an immutable point-in-time copy of the counters.
// Each counter is read atomically and independently; the combination may
// be momentarily inconsistent across a concurrent write, which the derived
// fields tolerate by clamping at zero.
func (m *PooledMetrics) Snapshot() PooledSnapshot {
	return PooledSnapshot{
		TypeName:          m.typeName,
		MaxPoolSize:       m.maxSize,
		Creations:         m.creations.Load(),
		Disposals:         m.disposals.Load(),
		Rents:             m.rents.Load(),
		Returns:           m.returns.Load(),
		OverflowDisposals: m.overflowDisposals.Load(),
		OverflowCreations: m.overflowCreations.Load(),
		Leaked:            m.leaked.Load(),
		IgnoredEvents:     m.ignoredEvents.Load(),
		RentalDuration:    m.rental.snapshot(),
		LastUpdated:       nanoTime(m.lastUpdated.Load()),
	}
}

// StandardMetrics is the mutable per-type counter state for one
// non-pooled resource type. Standard instances are created and destroyed
// once per logical use, so there is no rent/return bookkeeping; the whole
// lifetime is the unit of accounting.
type StandardMetrics struct {
	typeName string

	creations     atomic.Int64
	disposals     atomic.Int64
	ignoredEvents atomic.Int64

	lifetime durationStats

	lastUpdated atomic.Int64
}

func newStandardMetrics(typeName string) *StandardMetrics {
	return &StandardMetrics{typeName: typeName}
}

// TypeName returns the resource type this state belongs to.
func (m *StandardMetrics) TypeName() string { return m.typeName }

func (m *StandardMetrics) touch(now time.Time) {
	m.lastUpdated.Store(now.UnixNano())
}

func (m *StandardMetrics) recordCreation(now time.Time) {
	m.creations.Add(1)
	m.touch(now)
}

func (m *StandardMetrics) recordDisposal(now time.Time) {
	m.disposals.Add(1)
	m.touch(now)
}

func (m *StandardMetrics) recordLifetime(elapsed time.Duration) {
	m.lifetime.Observe(elapsed)
}

func (m *StandardMetrics) recordIgnoredEvent() {
	m.ignoredEvents.Add(1)
}

// Snapshot assembles an immutable point-in-time copy of the counters.
func (m *StandardMetrics) Snapshot() StandardSnapshot {
	return StandardSnapshot{
		TypeName:      m.typeName,
		Creations:     m.creations.Load(),
		Disposals:     m.disposals.Load(),
		IgnoredEvents: m.ignoredEvents.Load(),
		Lifetime:      m.lifetime.snapshot(),
		LastUpdated:   nanoTime(m.lastUpdated.Load()),
	}
}
