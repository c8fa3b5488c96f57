package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationStatsObserve(t *testing.T) {
	var d durationStats

	d.Observe(30 * time.Millisecond)
	d.Observe(10 * time.Millisecond)
	d.Observe(50 * time.Millisecond)

	snap := d.snapshot()
	assert.Equal(t, int64(3), snap.Samples)
	assert.Equal(t, 10*time.Millisecond, snap.Min)
	assert.Equal(t, 50*time.Millisecond, snap.Max)
	assert.Equal(t, 90*time.Millisecond, snap.Total)
	assert.Equal(t, 30*time.Millisecond, snap.Avg())
}

func TestDurationStatsZeroSpan(t *testing.T) {
	var d durationStats

	// A zero-length span still registers as a sample; the min word stays
	// distinguishable from "never observed".
	d.Observe(0)
	snap := d.snapshot()
	assert.Equal(t, int64(1), snap.Samples)
	assert.NotZero(t, snap.Min)
}

func TestDurationStatsEmpty(t *testing.T) {
	var d durationStats
	snap := d.snapshot()
	assert.Zero(t, snap.Samples)
	assert.Zero(t, snap.Min)
	assert.Zero(t, snap.Max)
	assert.Zero(t, snap.Avg())
}

func TestDurationStatsConcurrent(t *testing.T) {
	var d durationStats

	var wg sync.WaitGroup
	for g := 1; g <= 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 1; i <= 100; i++ {
				d.Observe(time.Duration(g*i) * time.Microsecond)
			}
		}(g)
	}
	wg.Wait()

	snap := d.snapshot()
	assert.Equal(t, int64(800), snap.Samples)
	assert.Equal(t, 1*time.Microsecond, snap.Min)
	assert.Equal(t, 800*time.Microsecond, snap.Max)
}

func TestPooledMetricsConservation(t *testing.T) {
	m := newPooledMetrics("orders.Context", 4)
	now := time.Now()

	for i := 0; i < 10; i++ {
		m.recordCreation(now)
	}
	for i := 0; i < 50; i++ {
		m.recordRent(now)
	}
	for i := 0; i < 47; i++ {
		m.recordReturn(now)
	}

	s := m.Snapshot()
	require.GreaterOrEqual(t, s.Creations, s.Disposals)
	require.GreaterOrEqual(t, s.Rents, s.Returns+s.OverflowDisposals+s.Leaked)
}

func TestPooledMetricsDisposalRouting(t *testing.T) {
	m := newPooledMetrics("orders.Context", 8)
	now := time.Now()
	m.recordCreation(now)

	st := newInstanceState("orders.Context", testID(1), 0, true, now)
	st.markRented(0, now)
	st.markReturned(now)

	category := m.recordDisposal(st, now)
	assert.Equal(t, DisposalOverflowAfterReturn, category)

	s := m.Snapshot()
	assert.Equal(t, int64(1), s.Disposals)
	assert.Equal(t, int64(1), s.OverflowDisposals)
	assert.Zero(t, s.Leaked)
}

func TestPooledMetricsLeakRouting(t *testing.T) {
	m := newPooledMetrics("orders.Context", 8)
	now := time.Now()
	m.recordCreation(now)

	st := newInstanceState("orders.Context", testID(2), 0, true, now)
	st.markRented(0, now)

	category := m.recordDisposal(st, now)
	assert.Equal(t, DisposalLeaked, category)

	s := m.Snapshot()
	assert.Equal(t, int64(1), s.Leaked)
	assert.Zero(t, s.OverflowDisposals)
}

func TestStandardMetricsSnapshot(t *testing.T) {
	m := newStandardMetrics("reports.Context")
	now := time.Now()

	m.recordCreation(now)
	m.recordCreation(now)
	m.recordDisposal(now)
	m.recordLifetime(20 * time.Millisecond)

	s := m.Snapshot()
	assert.Equal(t, "reports.Context", s.TypeName)
	assert.Equal(t, int64(2), s.Creations)
	assert.Equal(t, int64(1), s.Disposals)
	assert.Equal(t, int64(1), s.PotentialLeaks())
	assert.Equal(t, 20*time.Millisecond, s.Lifetime.Avg())
	assert.False(t, s.LastUpdated.IsZero())
}
