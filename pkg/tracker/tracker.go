package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/poolsight/poolsight/pkg/identity"
	"github.com/poolsight/poolsight/pkg/pperrors"
)

// Options configures a Tracker. The zero value is not usable; start from
// DefaultOptions.
type Options struct {
	// ActivityLogCapacity is the per-type activity ring size; 0 disables
	// activity logging.
	ActivityLogCapacity int
	// EnableDurationTracking folds rental/lifetime durations into running
	// min/avg/max accounting and activity records.
	EnableDurationTracking bool
	// RentalKeyCacheSize bounds the rental correlator's dedup cache.
	RentalKeyCacheSize int
	// LeakThreshold is accepted and surfaced but reserved; it is not
	// evaluated against elapsed rental time.
	LeakThreshold time.Duration
	// DefaultMaxPoolSize applies to pooled types absent from MaxPoolSizes.
	DefaultMaxPoolSize int
	// MaxPoolSizes maps resource type names to configured pool capacity.
	MaxPoolSizes map[string]int
	// Clock supplies time; defaults to the wall clock. Tests inject a mock.
	Clock clock.Clock
	// Logger receives diagnostic output; defaults to a no-op logger.
	Logger *zap.Logger
}

// DefaultOptions returns production defaults matching the config package.
func DefaultOptions() Options {
	return Options{
		ActivityLogCapacity:    500,
		EnableDurationTracking: true,
		RentalKeyCacheSize:     4096,
		LeakThreshold:          5 * time.Minute,
		DefaultMaxPoolSize:     1024,
	}
}

// Tracker is the lifecycle coordinator. It owns the per-type metrics
// states, the live instance store, and the per-type activity rings, and it
// exposes the event-ingestion write API and the snapshot read API.
//
// Every write operation completes synchronously without blocking: counter
// mutations are atomic, the instance store uses atomic map operations, and
// only the activity ring takes a narrow mutex. Events referencing unknown
// or already-removed instances mutate nothing except the per-type
// ignored-event counter; the write API never fails on malformed-but-
// plausible input.
type Tracker struct {
	opts       Options
	clock      clock.Clock
	logger     *zap.Logger
	instances  instanceStore
	pooled     sync.Map // string -> *PooledMetrics
	standard   sync.Map // string -> *StandardMetrics
	rings      sync.Map // string -> *activityRing
	correlator *RentalCorrelator
}

// New creates a Tracker. Invalid options are the only failure mode; once
// constructed, no tracker operation returns an error.
func New(opts Options) (*Tracker, error) {
	if opts.ActivityLogCapacity < 0 {
		return nil, pperrors.New(pperrors.ErrorTypeConfig, "activity log capacity cannot be negative").
			WithDetail("activity_log_capacity", opts.ActivityLogCapacity)
	}
	if opts.RentalKeyCacheSize <= 0 {
		return nil, pperrors.New(pperrors.ErrorTypeConfig, "rental key cache size must be positive").
			WithDetail("rental_key_cache_size", opts.RentalKeyCacheSize)
	}
	if opts.LeakThreshold < 0 {
		return nil, pperrors.New(pperrors.ErrorTypeConfig, "leak threshold cannot be negative")
	}
	if opts.DefaultMaxPoolSize <= 0 {
		return nil, pperrors.New(pperrors.ErrorTypeConfig, "default max pool size must be positive").
			WithDetail("default_max_pool_size", opts.DefaultMaxPoolSize)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	t := &Tracker{
		opts:   opts,
		clock:  opts.Clock,
		logger: opts.Logger,
	}
	correlator, err := NewRentalCorrelator(opts.RentalKeyCacheSize, t)
	if err != nil {
		return nil, err
	}
	t.correlator = correlator
	return t, nil
}

// Correlator returns the tracker's rental correlator. The host feeds
// "operation executing" events for pooled resources to it.
func (t *Tracker) Correlator() *RentalCorrelator {
	return t.correlator
}

// LiveInstances returns the number of instances currently alive across
// all types.
func (t *Tracker) LiveInstances() int {
	return t.instances.Len()
}

func (t *Tracker) maxPoolSize(typeName string) int64 {
	if size, ok := t.opts.MaxPoolSizes[typeName]; ok {
		return int64(size)
	}
	return int64(t.opts.DefaultMaxPoolSize)
}

func (t *Tracker) pooledMetrics(typeName string) *PooledMetrics {
	if v, ok := t.pooled.Load(typeName); ok {
		return v.(*PooledMetrics)
	}
	v, _ := t.pooled.LoadOrStore(typeName, newPooledMetrics(typeName, t.maxPoolSize(typeName)))
	return v.(*PooledMetrics)
}

func (t *Tracker) standardMetrics(typeName string) *StandardMetrics {
	if v, ok := t.standard.Load(typeName); ok {
		return v.(*StandardMetrics)
	}
	v, _ := t.standard.LoadOrStore(typeName, newStandardMetrics(typeName))
	return v.(*StandardMetrics)
}

func (t *Tracker) ring(typeName string) *activityRing {
	if v, ok := t.rings.Load(typeName); ok {
		return v.(*activityRing)
	}
	v, _ := t.rings.LoadOrStore(typeName, newActivityRing(t.opts.ActivityLogCapacity))
	return v.(*activityRing)
}

// OnInstanceInitialized handles an instance-initialized event.
//
// Standard instances are constructed exactly once per logical use, so the
// creation counter is incremented unconditionally. Pooled construction
// events fire on every reuse, so they are deduplicated against the live
// instance store: only a first sighting of the identity counts as a
// physical creation, and it is classified as overflow, once and
// permanently, when the running creation count exceeds the type's
// configured capacity. Re-sightings only refresh the instance's lease.
func (t *Tracker) OnInstanceInitialized(typeName string, id identity.InstanceID, lease int64, pooled bool) {
	now := t.clock.Now()

	if !pooled {
		st := newInstanceState(typeName, id, lease, false, now)
		if _, loaded := t.instances.LoadOrStore(id, st); loaded {
			// Standard identities are never reused; a duplicate init is an
			// upstream double-delivery.
			return
		}
		t.standardMetrics(typeName).recordCreation(now)
		return
	}

	st := newInstanceState(typeName, id, lease, true, now)
	actual, loaded := t.instances.LoadOrStore(id, st)
	if loaded {
		// Pool reuse: not a physical creation. The rental itself is
		// recorded separately via the correlator.
		actual.currentLease.Store(lease)
		return
	}

	pm := t.pooledMetrics(typeName)
	if created := pm.recordCreation(now); created > pm.MaxPoolSize() {
		st.markOverflow()
		pm.recordOverflowCreation()
		t.logger.Debug("overflow instance created",
			zap.String("type", typeName),
			zap.String("instance", identity.Short(id)),
			zap.Int64("creations", created),
			zap.Int64("max_pool_size", pm.MaxPoolSize()))
	}
}

// OnInstanceRented handles the start of one rental cycle. The rental
// correlator guarantees at most one call per (instance, lease) pairing.
// Unknown instances bump the ignored-event counter and mutate nothing
// else. Standard instances are exempt from rental accounting; a rent
// event naming one is an anomaly recorded against the standard type.
func (t *Tracker) OnInstanceRented(typeName string, id identity.InstanceID, lease int64) {
	now := t.clock.Now()
	st, ok := t.instances.Load(id)
	if !ok {
		t.ignorePooledEvent(typeName, id, "rented")
		return
	}
	if !st.Pooled {
		t.ignoreStandardEvent(typeName, id, "rented")
		return
	}
	t.pooledMetrics(typeName).recordRent(now)
	st.markRented(lease, now)
}

// OnInstanceReturnedToPool handles a clean return of a rented instance.
// When duration tracking is enabled the elapsed rental span is folded
// into the type's running total/min/max and logged as an activity record.
func (t *Tracker) OnInstanceReturnedToPool(typeName string, id identity.InstanceID, lease int64) {
	now := t.clock.Now()
	st, ok := t.instances.Load(id)
	if !ok {
		t.ignorePooledEvent(typeName, id, "returned")
		return
	}
	if !st.Pooled {
		t.ignoreStandardEvent(typeName, id, "returned")
		return
	}

	pm := t.pooledMetrics(typeName)
	pm.recordReturn(now)
	rentedAt := st.LastRentedAt()
	st.markReturned(now)

	if t.opts.EnableDurationTracking && !rentedAt.IsZero() {
		elapsed := now.Sub(rentedAt)
		pm.recordRentalDuration(elapsed)
		t.ring(typeName).Append(ActivityRecord{
			Instance:  identity.Short(id),
			Lease:     lease,
			Kind:      ActivityRental,
			StartedAt: rentedAt,
			EndedAt:   now,
			Duration:  elapsed,
		})
	}
}

// OnPooledInstanceDisposed handles the destruction of a pooled physical
// instance. The disposal is classified from the instance's state and the
// type's counters as they stood at that moment; overflow categories feed
// the overflow-disposal counter, the Leaked fallthrough feeds the leak
// counter. The instance's store entry is removed, which also makes
// duplicate disposal events idempotent.
func (t *Tracker) OnPooledInstanceDisposed(typeName string, id identity.InstanceID, lease int64) {
	now := t.clock.Now()
	st, ok := t.instances.Remove(id)
	if !ok {
		t.ignorePooledEvent(typeName, id, "disposed")
		return
	}

	pm := t.pooledMetrics(typeName)
	category := pm.recordDisposal(st, now)

	if category == DisposalLeaked {
		t.logger.Warn("pooled instance leaked",
			zap.String("type", typeName),
			zap.String("instance", identity.Short(id)),
			zap.Int64("lease", lease),
			zap.Time("created_at", st.CreatedAt()),
			zap.Time("last_rented_at", st.LastRentedAt()))
	} else {
		t.logger.Debug("pooled instance disposed",
			zap.String("type", typeName),
			zap.String("instance", identity.Short(id)),
			zap.String("category", category.String()))
	}

	if t.opts.EnableDurationTracking {
		t.ring(typeName).Append(ActivityRecord{
			Instance:  identity.Short(id),
			Lease:     lease,
			Kind:      ActivityLifetime,
			StartedAt: st.CreatedAt(),
			EndedAt:   now,
			Duration:  now.Sub(st.CreatedAt()),
		})
	}
}

// OnStandardInstanceDisposed handles the destruction of a non-pooled
// instance. The whole construction-to-destruction span is the unit of
// accounting.
func (t *Tracker) OnStandardInstanceDisposed(typeName string, id identity.InstanceID) {
	now := t.clock.Now()
	st, ok := t.instances.Remove(id)
	if !ok {
		t.ignoreStandardEvent(typeName, id, "disposed")
		return
	}

	sm := t.standardMetrics(typeName)
	sm.recordDisposal(now)

	lifetime := now.Sub(st.CreatedAt())
	if t.opts.EnableDurationTracking {
		sm.recordLifetime(lifetime)
		t.ring(typeName).Append(ActivityRecord{
			Instance:  identity.Short(id),
			Lease:     st.CurrentLease(),
			Kind:      ActivityLifetime,
			StartedAt: st.CreatedAt(),
			EndedAt:   now,
			Duration:  lifetime,
		})
	}
}

func (t *Tracker) ignorePooledEvent(typeName string, id identity.InstanceID, event string) {
	t.pooledMetrics(typeName).recordIgnoredEvent()
	t.logger.Debug("event for unknown instance ignored",
		zap.String("type", typeName),
		zap.String("instance", identity.Short(id)),
		zap.String("event", event))
}

// ignoreStandardEvent records an anomalous event against the standard
// type's counters without fabricating a pooled bucket for it: rental
// events naming a standard instance, or disposals of unknown standard
// instances.
func (t *Tracker) ignoreStandardEvent(typeName string, id identity.InstanceID, event string) {
	t.standardMetrics(typeName).recordIgnoredEvent()
	t.logger.Debug("event for standard instance ignored",
		zap.String("type", typeName),
		zap.String("instance", identity.Short(id)),
		zap.String("event", event))
}

// PooledSnapshot returns an immutable snapshot for a pooled type, or
// false if the type was never observed.
func (t *Tracker) PooledSnapshot(typeName string) (PooledSnapshot, bool) {
	v, ok := t.pooled.Load(typeName)
	if !ok {
		return PooledSnapshot{}, false
	}
	return v.(*PooledMetrics).Snapshot(), true
}

// StandardSnapshot returns an immutable snapshot for a standard type, or
// false if the type was never observed.
func (t *Tracker) StandardSnapshot(typeName string) (StandardSnapshot, bool) {
	v, ok := t.standard.Load(typeName)
	if !ok {
		return StandardSnapshot{}, false
	}
	return v.(*StandardMetrics).Snapshot(), true
}

// Snapshots returns snapshots of every tracked type. The maps are fresh
// copies owned by the caller.
func (t *Tracker) Snapshots() SnapshotSet {
	set := SnapshotSet{
		Pooled:   map[string]PooledSnapshot{},
		Standard: map[string]StandardSnapshot{},
	}
	t.pooled.Range(func(key, value any) bool {
		set.Pooled[key.(string)] = value.(*PooledMetrics).Snapshot()
		return true
	})
	t.standard.Range(func(key, value any) bool {
		set.Standard[key.(string)] = value.(*StandardMetrics).Snapshot()
		return true
	})
	return set
}

// TrackedTypes returns the sorted names of all tracked types, pooled and
// standard.
func (t *Tracker) TrackedTypes() []string {
	var names []string
	seen := map[string]bool{}
	t.pooled.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		seen[key.(string)] = true
		return true
	})
	t.standard.Range(func(key, _ any) bool {
		if !seen[key.(string)] {
			names = append(names, key.(string))
		}
		return true
	})
	sort.Strings(names)
	return names
}

// RecentActivity returns the last n completed spans for a type in
// insertion order.
func (t *Tracker) RecentActivity(typeName string, n int) []ActivityRecord {
	v, ok := t.rings.Load(typeName)
	if !ok {
		return nil
	}
	return v.(*activityRing).Recent(n)
}

// AllActivity returns every retained span for a type in insertion order.
func (t *Tracker) AllActivity(typeName string) []ActivityRecord {
	v, ok := t.rings.Load(typeName)
	if !ok {
		return nil
	}
	return v.(*activityRing).All()
}
