package tracker

import (
	"sync"
	"time"
)

// ActivityKind distinguishes the two span types an activity record can
// describe.
type ActivityKind string

const (
	// ActivityRental records one completed borrow-use-return span.
	ActivityRental ActivityKind = "rental"
	// ActivityLifetime records one completed construction-to-destruction
	// span.
	ActivityLifetime ActivityKind = "lifetime"
)

// ActivityRecord is an immutable record of one completed rental or
// lifetime span. Instance carries the truncated display form of the
// identifier.
type ActivityRecord struct {
	Instance  string        `json:"instance"`
	Lease     int64         `json:"lease"`
	Kind      ActivityKind  `json:"kind"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Duration  time.Duration `json:"duration"`
}

// activityRing is a fixed-capacity FIFO log of completed spans for one
// resource type. Appends overwrite the oldest record once full. The
// critical section around the buffer is the only lock the engine takes
// on its write path, and it covers a handful of index updates.
type activityRing struct {
	mu   sync.Mutex
	buf  []ActivityRecord
	head int // index of the oldest record
	size int
}

// newActivityRing creates a ring with the given capacity. Capacity 0
// produces a ring that silently drops every append.
func newActivityRing(capacity int) *activityRing {
	r := &activityRing{}
	if capacity > 0 {
		r.buf = make([]ActivityRecord, capacity)
	}
	return r
}

// Append adds a record, discarding the oldest first when at capacity.
func (r *activityRing) Append(rec ActivityRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buf) == 0 {
		return
	}
	if r.size == len(r.buf) {
		// Overwrite the oldest slot and advance.
		r.buf[r.head] = rec
		r.head = (r.head + 1) % len(r.buf)
		return
	}
	r.buf[(r.head+r.size)%len(r.buf)] = rec
	r.size++
}

// Recent returns the last n records in insertion order, fewer if the ring
// holds less. n <= 0 returns nil.
func (r *activityRing) Recent(n int) []ActivityRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || r.size == 0 {
		return nil
	}
	if n > r.size {
		n = r.size
	}
	out := make([]ActivityRecord, n)
	start := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.head+start+i)%len(r.buf)]
	}
	return out
}

// All returns the full buffer contents in insertion order.
func (r *activityRing) All() []ActivityRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return nil
	}
	out := make([]ActivityRecord, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of records currently held.
func (r *activityRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
