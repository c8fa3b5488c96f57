package tracker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/poolsight/poolsight/pkg/identity"
)

// InstanceState is the mutable per-instance scratch state owned by the
// tracker while a physical instance is alive. Its store entry is created
// on the first-seen construction event and removed on the matching
// disposal, so entry existence means "instance currently alive".
//
// Scalar fields use atomics so that a snapshot reader racing a writer
// never observes a torn timestamp; concurrent writers for the same
// instance settle on last-write-wins, which is acceptable because the
// host serializes rent/return for a single physical instance.
type InstanceState struct {
	// TypeName and ID are fixed at creation.
	TypeName string
	ID       identity.InstanceID
	// Pooled is fixed at creation; standard instances are constructed
	// exactly once per logical use.
	Pooled bool

	// overflow is set at most once, when the instance was born beyond
	// pool capacity, and never cleared. The write happens after the state
	// is published to the store, so it is atomic.
	overflow atomic.Bool

	createdAt      int64        // unix nanos, fixed at creation
	currentLease   atomic.Int64 // refreshed on every re-initialization
	lastRentedAt   atomic.Int64 // unix nanos, 0 until first rental
	lastReturnedAt atomic.Int64 // unix nanos, 0 until first return
	returned       atomic.Bool  // cleared on each new rental, set on return
}

func newInstanceState(typeName string, id identity.InstanceID, lease int64, pooled bool, now time.Time) *InstanceState {
	st := &InstanceState{
		TypeName:  typeName,
		ID:        id,
		Pooled:    pooled,
		createdAt: now.UnixNano(),
	}
	st.currentLease.Store(lease)
	return st
}

// CreatedAt returns the instance's construction time.
func (s *InstanceState) CreatedAt() time.Time {
	return time.Unix(0, s.createdAt)
}

// CurrentLease returns the lease number of the instance's latest rental
// cycle.
func (s *InstanceState) CurrentLease() int64 {
	return s.currentLease.Load()
}

// LastRentedAt returns the start of the latest rental, or the zero time
// if the instance was never rented.
func (s *InstanceState) LastRentedAt() time.Time {
	return nanoTime(s.lastRentedAt.Load())
}

// LastReturnedAt returns the latest pool return time, or the zero time if
// the instance was never returned.
func (s *InstanceState) LastReturnedAt() time.Time {
	return nanoTime(s.lastReturnedAt.Load())
}

// WasReturnedToPool reports whether the instance's latest rental completed
// a clean return.
func (s *InstanceState) WasReturnedToPool() bool {
	return s.returned.Load()
}

// IsOverflow reports whether the instance was created beyond pool
// capacity.
func (s *InstanceState) IsOverflow() bool {
	return s.overflow.Load()
}

func (s *InstanceState) markOverflow() {
	s.overflow.Store(true)
}

func (s *InstanceState) markRented(lease int64, now time.Time) {
	s.currentLease.Store(lease)
	s.returned.Store(false)
	s.lastRentedAt.Store(now.UnixNano())
}

func (s *InstanceState) markReturned(now time.Time) {
	s.returned.Store(true)
	s.lastReturnedAt.Store(now.UnixNano())
}

func nanoTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// instanceStore is the arena of live instance states, keyed by instance
// identity. Atomic map operations enforce exclusive entry ownership; the
// store never holds a lock across caller code.
type instanceStore struct {
	m     sync.Map // identity.InstanceID -> *InstanceState
	count atomic.Int64
}

// LoadOrStore registers a state for the identity if absent. It returns
// the resident state and whether it was already present, giving callers
// the first-seen dedup primitive.
func (s *instanceStore) LoadOrStore(id identity.InstanceID, st *InstanceState) (*InstanceState, bool) {
	actual, loaded := s.m.LoadOrStore(id, st)
	if !loaded {
		s.count.Add(1)
	}
	return actual.(*InstanceState), loaded
}

// Load returns the live state for an identity, if any.
func (s *instanceStore) Load(id identity.InstanceID) (*InstanceState, bool) {
	v, ok := s.m.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*InstanceState), true
}

// Remove deletes and returns the state for an identity. A second Remove
// for the same identity reports false, which makes duplicate disposal
// events naturally idempotent.
func (s *instanceStore) Remove(id identity.InstanceID) (*InstanceState, bool) {
	v, ok := s.m.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	s.count.Add(-1)
	return v.(*InstanceState), true
}

// Len returns the number of live instances across all types.
func (s *instanceStore) Len() int {
	return int(s.count.Load())
}
