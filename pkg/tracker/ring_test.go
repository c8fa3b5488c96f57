package tracker

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(i int) ActivityRecord {
	return ActivityRecord{
		Instance: fmt.Sprintf("inst-%04d", i),
		Lease:    int64(i),
		Kind:     ActivityRental,
		Duration: time.Duration(i) * time.Millisecond,
	}
}

func TestActivityRingBound(t *testing.T) {
	const capacity = 8
	r := newActivityRing(capacity)

	// Append well past capacity; only the most recent `capacity` survive,
	// in original order.
	const total = 3*capacity + 5
	for i := 0; i < total; i++ {
		r.Append(rec(i))
	}

	all := r.All()
	require.Len(t, all, capacity)
	for i, got := range all {
		assert.Equal(t, rec(total-capacity+i), got)
	}
}

func TestActivityRingPartialFill(t *testing.T) {
	r := newActivityRing(10)
	for i := 0; i < 3; i++ {
		r.Append(rec(i))
	}

	assert.Equal(t, 3, r.Len())
	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, rec(0), all[0])
	assert.Equal(t, rec(2), all[2])
}

func TestActivityRingRecent(t *testing.T) {
	r := newActivityRing(5)
	for i := 0; i < 12; i++ {
		r.Append(rec(i))
	}

	recent := r.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, rec(9), recent[0])
	assert.Equal(t, rec(10), recent[1])
	assert.Equal(t, rec(11), recent[2])

	// Asking for more than held returns what is held.
	assert.Len(t, r.Recent(100), 5)
	assert.Nil(t, r.Recent(0))
	assert.Nil(t, r.Recent(-1))
}

func TestActivityRingZeroCapacity(t *testing.T) {
	r := newActivityRing(0)
	for i := 0; i < 10; i++ {
		r.Append(rec(i))
	}
	assert.Zero(t, r.Len())
	assert.Nil(t, r.All())
	assert.Nil(t, r.Recent(5))
}

func TestActivityRingConcurrentAppend(t *testing.T) {
	const capacity = 64
	r := newActivityRing(capacity)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				r.Append(rec(g*1000 + i))
			}
		}(g)
	}
	wg.Wait()

	// The bound holds under concurrent writers.
	assert.Equal(t, capacity, r.Len())
	assert.Len(t, r.All(), capacity)
}
