package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/poolsight/poolsight/pkg/identity"
)

// testID builds a deterministic instance identity for tests.
func testID(n byte) identity.InstanceID {
	var b [16]byte
	b[0] = 0x42
	b[15] = n
	id, err := uuid.FromBytes(b[:])
	if err != nil {
		panic(err)
	}
	return id
}

func newTestTracker(t *testing.T, mutate func(*Options)) (*Tracker, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))

	opts := DefaultOptions()
	opts.Clock = mock
	opts.Logger = zaptest.NewLogger(t)
	if mutate != nil {
		mutate(&opts)
	}

	trk, err := New(opts)
	require.NoError(t, err)
	return trk, mock
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	base := DefaultOptions()

	opts := base
	opts.ActivityLogCapacity = -1
	_, err := New(opts)
	assert.Error(t, err)

	opts = base
	opts.RentalKeyCacheSize = 0
	_, err = New(opts)
	assert.Error(t, err)

	opts = base
	opts.LeakThreshold = -time.Second
	_, err = New(opts)
	assert.Error(t, err)

	opts = base
	opts.DefaultMaxPoolSize = 0
	_, err = New(opts)
	assert.Error(t, err)
}

func TestPooledCreationDedup(t *testing.T) {
	trk, _ := newTestTracker(t, nil)
	id := testID(1)

	// N initialization events for the same pooled identity count as
	// exactly one physical creation.
	for lease := int64(0); lease < 20; lease++ {
		trk.OnInstanceInitialized("orders.Context", id, lease, true)
	}

	s, ok := trk.PooledSnapshot("orders.Context")
	require.True(t, ok)
	assert.Equal(t, int64(1), s.Creations)
	assert.Equal(t, 1, trk.LiveInstances())
}

func TestStandardCreationNotDeduped(t *testing.T) {
	trk, _ := newTestTracker(t, nil)

	// Standard instances are constructed once per logical use with fresh
	// identities; every init counts.
	for i := byte(1); i <= 5; i++ {
		trk.OnInstanceInitialized("reports.Context", testID(i), 0, false)
	}

	s, ok := trk.StandardSnapshot("reports.Context")
	require.True(t, ok)
	assert.Equal(t, int64(5), s.Creations)
}

func TestOverflowCreationFlaggedOnce(t *testing.T) {
	trk, _ := newTestTracker(t, func(o *Options) {
		o.MaxPoolSizes = map[string]int{"orders.Context": 2}
	})

	trk.OnInstanceInitialized("orders.Context", testID(1), 0, true)
	trk.OnInstanceInitialized("orders.Context", testID(2), 0, true)
	trk.OnInstanceInitialized("orders.Context", testID(3), 0, true)

	s, _ := trk.PooledSnapshot("orders.Context")
	assert.Equal(t, int64(3), s.Creations)
	assert.Equal(t, int64(1), s.OverflowCreations)
}

func TestEndToEndLeakScenario(t *testing.T) {
	// One pooled type with max size 2:
	// create(A,0) -> rent(A,0) -> return(A,0) -> rent(A,1) ->
	// dispose(A,1) must classify as Leaked: not returned, not overflow,
	// and creations-disposals=1 <= maxSize.
	trk, _ := newTestTracker(t, func(o *Options) {
		o.MaxPoolSizes = map[string]int{"orders.Context": 2}
	})
	a := testID(0xA)

	trk.OnInstanceInitialized("orders.Context", a, 0, true)
	trk.OnInstanceRented("orders.Context", a, 0)
	trk.OnInstanceReturnedToPool("orders.Context", a, 0)
	trk.OnInstanceRented("orders.Context", a, 1)
	trk.OnPooledInstanceDisposed("orders.Context", a, 1)

	s, ok := trk.PooledSnapshot("orders.Context")
	require.True(t, ok)
	assert.Equal(t, int64(1), s.Leaked)
	assert.Zero(t, s.OverflowDisposals)
	assert.Equal(t, HealthWarning, s.Health())
	assert.Zero(t, trk.LiveInstances())
}

func TestEndToEndOverflowScenario(t *testing.T) {
	// Same setup but a third instance created when the pool already holds
	// 2, then disposed without return: OverflowCreation, not a leak.
	trk, _ := newTestTracker(t, func(o *Options) {
		o.MaxPoolSizes = map[string]int{"orders.Context": 2}
	})

	trk.OnInstanceInitialized("orders.Context", testID(1), 0, true)
	trk.OnInstanceInitialized("orders.Context", testID(2), 0, true)
	trk.OnInstanceInitialized("orders.Context", testID(3), 0, true)
	trk.OnInstanceRented("orders.Context", testID(3), 0)
	trk.OnPooledInstanceDisposed("orders.Context", testID(3), 0)

	s, _ := trk.PooledSnapshot("orders.Context")
	assert.Zero(t, s.Leaked)
	assert.Equal(t, int64(1), s.OverflowDisposals)
	assert.Equal(t, HealthHealthy, s.Health())
}

func TestReturnAfterOverflowClassification(t *testing.T) {
	// A cleanly returned instance disposed later is overflow-after-return
	// even when nothing else is unusual.
	trk, _ := newTestTracker(t, nil)
	id := testID(7)

	trk.OnInstanceInitialized("orders.Context", id, 0, true)
	trk.OnInstanceRented("orders.Context", id, 0)
	trk.OnInstanceReturnedToPool("orders.Context", id, 0)
	trk.OnPooledInstanceDisposed("orders.Context", id, 0)

	s, _ := trk.PooledSnapshot("orders.Context")
	assert.Zero(t, s.Leaked)
	assert.Equal(t, int64(1), s.OverflowDisposals)
}

func TestUnknownInstanceEventsAreCountedNoOps(t *testing.T) {
	trk, _ := newTestTracker(t, nil)

	ghost := testID(0xEE)
	trk.OnInstanceRented("orders.Context", ghost, 0)
	trk.OnInstanceReturnedToPool("orders.Context", ghost, 0)
	trk.OnPooledInstanceDisposed("orders.Context", ghost, 0)
	trk.OnStandardInstanceDisposed("reports.Context", ghost)

	s, ok := trk.PooledSnapshot("orders.Context")
	require.True(t, ok)
	assert.Zero(t, s.Rents)
	assert.Zero(t, s.Returns)
	assert.Zero(t, s.Disposals)
	assert.Equal(t, int64(3), s.IgnoredEvents)

	std, ok := trk.StandardSnapshot("reports.Context")
	require.True(t, ok)
	assert.Zero(t, std.Disposals)
	assert.Equal(t, int64(1), std.IgnoredEvents)
}

func TestDuplicateDisposalIsIdempotent(t *testing.T) {
	trk, _ := newTestTracker(t, nil)
	id := testID(3)

	trk.OnInstanceInitialized("orders.Context", id, 0, true)
	trk.OnPooledInstanceDisposed("orders.Context", id, 0)
	trk.OnPooledInstanceDisposed("orders.Context", id, 0)

	s, _ := trk.PooledSnapshot("orders.Context")
	assert.Equal(t, int64(1), s.Disposals)
	assert.Equal(t, int64(1), s.IgnoredEvents)
}

func TestRentalDurationTracking(t *testing.T) {
	trk, mock := newTestTracker(t, nil)
	id := testID(4)

	trk.OnInstanceInitialized("orders.Context", id, 0, true)
	trk.OnInstanceRented("orders.Context", id, 0)
	mock.Add(30 * time.Millisecond)
	trk.OnInstanceReturnedToPool("orders.Context", id, 0)

	trk.OnInstanceRented("orders.Context", id, 1)
	mock.Add(70 * time.Millisecond)
	trk.OnInstanceReturnedToPool("orders.Context", id, 1)

	s, _ := trk.PooledSnapshot("orders.Context")
	assert.Equal(t, int64(2), s.RentalDuration.Samples)
	assert.Equal(t, 30*time.Millisecond, s.RentalDuration.Min)
	assert.Equal(t, 70*time.Millisecond, s.RentalDuration.Max)
	assert.Equal(t, 50*time.Millisecond, s.RentalDuration.Avg())

	activity := trk.AllActivity("orders.Context")
	require.Len(t, activity, 2)
	assert.Equal(t, ActivityRental, activity[0].Kind)
	assert.Equal(t, 30*time.Millisecond, activity[0].Duration)
	assert.Equal(t, int64(1), activity[1].Lease)
}

func TestDurationTrackingDisabled(t *testing.T) {
	trk, mock := newTestTracker(t, func(o *Options) {
		o.EnableDurationTracking = false
	})
	id := testID(5)

	trk.OnInstanceInitialized("orders.Context", id, 0, true)
	trk.OnInstanceRented("orders.Context", id, 0)
	mock.Add(10 * time.Millisecond)
	trk.OnInstanceReturnedToPool("orders.Context", id, 0)
	trk.OnPooledInstanceDisposed("orders.Context", id, 0)

	s, _ := trk.PooledSnapshot("orders.Context")
	assert.Equal(t, int64(1), s.Returns)
	assert.Zero(t, s.RentalDuration.Samples)
	assert.Empty(t, trk.AllActivity("orders.Context"))
}

func TestStandardLifetimeTracking(t *testing.T) {
	trk, mock := newTestTracker(t, nil)
	id := testID(6)

	trk.OnInstanceInitialized("reports.Context", id, 0, false)
	mock.Add(250 * time.Millisecond)
	trk.OnStandardInstanceDisposed("reports.Context", id)

	s, ok := trk.StandardSnapshot("reports.Context")
	require.True(t, ok)
	assert.Equal(t, int64(1), s.Creations)
	assert.Equal(t, int64(1), s.Disposals)
	assert.Zero(t, s.PotentialLeaks())
	assert.Equal(t, 250*time.Millisecond, s.Lifetime.Avg())

	activity := trk.AllActivity("reports.Context")
	require.Len(t, activity, 1)
	assert.Equal(t, ActivityLifetime, activity[0].Kind)
	assert.Equal(t, 250*time.Millisecond, activity[0].Duration)
}

func TestSnapshotAbsentType(t *testing.T) {
	trk, _ := newTestTracker(t, nil)

	_, ok := trk.PooledSnapshot("never.Seen")
	assert.False(t, ok)
	_, ok = trk.StandardSnapshot("never.Seen")
	assert.False(t, ok)
	assert.Nil(t, trk.RecentActivity("never.Seen", 10))
	assert.Nil(t, trk.AllActivity("never.Seen"))
}

func TestSnapshotsAndTrackedTypes(t *testing.T) {
	trk, _ := newTestTracker(t, nil)

	trk.OnInstanceInitialized("orders.Context", testID(1), 0, true)
	trk.OnInstanceInitialized("billing.Context", testID(2), 0, true)
	trk.OnInstanceInitialized("reports.Context", testID(3), 0, false)

	set := trk.Snapshots()
	assert.Len(t, set.Pooled, 2)
	assert.Len(t, set.Standard, 1)

	assert.Equal(t, []string{"billing.Context", "orders.Context", "reports.Context"}, trk.TrackedTypes())
}

func TestConservationUnderConcurrency(t *testing.T) {
	trk, _ := newTestTracker(t, func(o *Options) {
		o.MaxPoolSizes = map[string]int{"orders.Context": 4}
	})

	const workers = 8
	const cycles = 200

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Reader repeatedly snapshots while writers mutate; derived values
	// must never surface negative.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if s, ok := trk.PooledSnapshot("orders.Context"); ok {
				if s.InPool() < 0 || s.ActiveRentals() < 0 {
					t.Error("negative derived value observed")
					return
				}
			}
		}
	}()

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := testID(byte(0x10 + w))
			for lease := int64(0); lease < cycles; lease++ {
				trk.OnInstanceInitialized("orders.Context", id, lease, true)
				trk.OnInstanceRented("orders.Context", id, lease)
				trk.OnInstanceReturnedToPool("orders.Context", id, lease)
			}
			// Final rental never returns: the disposal closes it as a leak.
			trk.OnInstanceRented("orders.Context", id, cycles)
			trk.OnPooledInstanceDisposed("orders.Context", id, cycles)
		}(w)
	}
	wg.Wait()
	close(stop)
	<-readerDone

	s, ok := trk.PooledSnapshot("orders.Context")
	require.True(t, ok)
	assert.Equal(t, int64(workers), s.Creations)
	assert.Equal(t, int64(workers), s.Disposals)
	assert.Equal(t, int64(workers*(cycles+1)), s.Rents)
	assert.Equal(t, int64(workers*cycles), s.Returns)
	assert.Equal(t, int64(workers), s.Leaked)
	assert.GreaterOrEqual(t, s.Creations, s.Disposals)
	assert.GreaterOrEqual(t, s.Rents, s.Returns+s.OverflowDisposals+s.Leaked)
	assert.Zero(t, s.ActiveRentals())
}

func TestCorrelatorIntegration(t *testing.T) {
	trk, _ := newTestTracker(t, nil)
	id := testID(9)

	trk.OnInstanceInitialized("orders.Context", id, 0, true)
	c := trk.Correlator()
	for i := 0; i < 10; i++ {
		c.OnOperationExecuting("orders.Context", id, 0)
	}

	s, _ := trk.PooledSnapshot("orders.Context")
	assert.Equal(t, int64(1), s.Rents)
}

func TestReturnHookRebinding(t *testing.T) {
	trk, mock := newTestTracker(t, nil)
	id := testID(0xB)

	trk.OnInstanceInitialized("orders.Context", id, 0, true)
	hook := trk.NewReturnHook("orders.Context", id, 0)

	trk.OnInstanceRented("orders.Context", id, 0)
	mock.Add(5 * time.Millisecond)
	hook.Returned()

	// Reuse: rebind to the next lease, the same zero-argument callback
	// now reports against lease 1.
	hook.Rebind("orders.Context", id, 1)
	trk.OnInstanceRented("orders.Context", id, 1)
	mock.Add(5 * time.Millisecond)
	hook.Returned()

	s, _ := trk.PooledSnapshot("orders.Context")
	assert.Equal(t, int64(2), s.Returns)

	activity := trk.AllActivity("orders.Context")
	require.Len(t, activity, 2)
	assert.Equal(t, int64(1), activity[1].Lease)
}

func TestStandardInstanceExemptFromRentalAccounting(t *testing.T) {
	trk, _ := newTestTracker(t, nil)
	id := testID(0xD)

	trk.OnInstanceInitialized("reports.Context", id, 0, false)

	// Operation events for a live standard instance flow through the
	// correlator like any other, but must never surface as a rent or
	// fabricate a pooled bucket for the type.
	c := trk.Correlator()
	for i := 0; i < 5; i++ {
		c.OnOperationExecuting("reports.Context", id, 0)
	}
	trk.OnInstanceReturnedToPool("reports.Context", id, 0)

	_, ok := trk.PooledSnapshot("reports.Context")
	assert.False(t, ok)

	s, ok := trk.StandardSnapshot("reports.Context")
	require.True(t, ok)
	assert.Equal(t, int64(1), s.Creations)
	// One from the correlator's single notification, one from the return.
	assert.Equal(t, int64(2), s.IgnoredEvents)
}

func TestOverflowFlagSafeUnderConcurrentLoad(t *testing.T) {
	trk, _ := newTestTracker(t, func(o *Options) {
		o.MaxPoolSizes = map[string]int{"orders.Context": 1}
	})
	trk.OnInstanceInitialized("orders.Context", testID(1), 0, true)

	// A reader can obtain the state from the store the instant it is
	// published, before the creating goroutine marks it overflow. The flag
	// must be safe to read at that point; its value settles to true once
	// the initialization returns.
	id := testID(2)
	observed := make(chan bool, 1)
	go func() {
		for {
			st, ok := trk.instances.Load(id)
			if ok {
				observed <- st.IsOverflow()
				return
			}
		}
	}()

	trk.OnInstanceInitialized("orders.Context", id, 0, true)
	<-observed

	st, ok := trk.instances.Load(id)
	require.True(t, ok)
	assert.True(t, st.IsOverflow())

	trk.OnPooledInstanceDisposed("orders.Context", id, 0)
	s, _ := trk.PooledSnapshot("orders.Context")
	assert.Equal(t, int64(1), s.OverflowCreations)
	assert.Equal(t, int64(1), s.OverflowDisposals)
	assert.Equal(t, int64(0), s.Leaked)
}

func TestActivityRingCapacityViaTracker(t *testing.T) {
	const capacity = 5
	trk, mock := newTestTracker(t, func(o *Options) {
		o.ActivityLogCapacity = capacity
	})
	id := testID(0xC)

	trk.OnInstanceInitialized("orders.Context", id, 0, true)
	for lease := int64(0); lease < 20; lease++ {
		trk.OnInstanceRented("orders.Context", id, lease)
		mock.Add(time.Millisecond)
		trk.OnInstanceReturnedToPool("orders.Context", id, lease)
	}

	all := trk.AllActivity("orders.Context")
	require.Len(t, all, capacity)
	assert.Equal(t, int64(19), all[capacity-1].Lease)
	assert.Equal(t, int64(15), all[0].Lease)

	recent := trk.RecentActivity("orders.Context", 2)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(18), recent[0].Lease)
	assert.Equal(t, int64(19), recent[1].Lease)
}
