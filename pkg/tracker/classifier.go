package tracker

// DisposalCategory is the outcome of classifying one pooled instance
// disposal. Exactly one category applies to every disposal.
type DisposalCategory int

const (
	// DisposalOverflowAfterReturn means the instance completed a clean
	// return, but the pool was already at capacity when it tried to retain
	// it, so the physical instance was destroyed. Normal under load.
	DisposalOverflowAfterReturn DisposalCategory = iota
	// DisposalOverflowCreation means the instance was created beyond pool
	// capacity and was never going to be retained.
	DisposalOverflowCreation
	// DisposalOverflowCapacity means concurrent creations transiently
	// pushed the live count over capacity at the moment of disposal.
	DisposalOverflowCapacity
	// DisposalLeaked means the instance was rented and destroyed without
	// ever completing a recognized return path. A genuine resource leak.
	DisposalLeaked
)

// String returns the category name for logs and metrics labels.
func (c DisposalCategory) String() string {
	switch c {
	case DisposalOverflowAfterReturn:
		return "overflow_after_return"
	case DisposalOverflowCreation:
		return "overflow_creation"
	case DisposalOverflowCapacity:
		return "overflow_capacity"
	case DisposalLeaked:
		return "leaked"
	default:
		return "unknown"
	}
}

// IsOverflow reports whether the category represents expected
// overflow behavior rather than a leak.
func (c DisposalCategory) IsOverflow() bool {
	return c != DisposalLeaked
}

// ClassifyDisposal decides why a pooled physical instance was destroyed.
// It is a pure function of the instance's state at disposal time and the
// type's creation/disposal counts, evaluated in order, first match wins:
//
//  1. the instance was returned to the pool -> OverflowAfterReturn
//  2. the instance was flagged overflow at creation -> OverflowCreation
//  3. live instances exceed capacity right now -> OverflowCapacity
//  4. otherwise -> Leaked
//
// Categories 1-3 are all expected under healthy operation; only the
// exhaustive fallthrough is an anomaly, which keeps false leak alarms to
// a minimum.
func ClassifyDisposal(returnedToPool, overflowAtCreation bool, creations, disposals, maxPoolSize int64) DisposalCategory {
	switch {
	case returnedToPool:
		return DisposalOverflowAfterReturn
	case overflowAtCreation:
		return DisposalOverflowCreation
	case creations-disposals > maxPoolSize:
		return DisposalOverflowCapacity
	default:
		return DisposalLeaked
	}
}
