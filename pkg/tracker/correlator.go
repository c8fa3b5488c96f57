package tracker

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/poolsight/poolsight/pkg/identity"
	"github.com/poolsight/poolsight/pkg/pperrors"
)

// RentalSink receives exactly one notification per rental cycle from the
// correlator. The Tracker is the production sink.
type RentalSink interface {
	OnInstanceRented(typeName string, id identity.InstanceID, lease int64)
}

// RentalCorrelator collapses the host's many "operation executing" events
// for one rental cycle into a single rented notification. The first
// operation observed for a given (instance, lease) pairing wins; all later
// operations in the same rental are no-ops.
//
// The seen-key set is a bounded LRU cache. Eviction of old keys is safe:
// lease numbers are monotonic per instance, so an evicted key can never
// recur and be falsely treated as unseen.
//
// Only pooled resources flow through the correlator; standard resources
// are exempt because their full lifetime is already captured by the
// init/dispose events.
type RentalCorrelator struct {
	seen *lru.Cache[identity.RentalKey, struct{}]
	sink RentalSink
}

// NewRentalCorrelator creates a correlator with a dedup cache bounded to
// cacheSize keys, forwarding first sightings to sink.
func NewRentalCorrelator(cacheSize int, sink RentalSink) (*RentalCorrelator, error) {
	if sink == nil {
		return nil, pperrors.New(pperrors.ErrorTypeValidation, "rental sink cannot be nil")
	}
	cache, err := lru.New[identity.RentalKey, struct{}](cacheSize)
	if err != nil {
		return nil, pperrors.Wrap(err, pperrors.ErrorTypeConfig, "invalid rental key cache size").
			WithDetail("cache_size", cacheSize)
	}
	return &RentalCorrelator{seen: cache, sink: sink}, nil
}

// OnOperationExecuting handles one framework-level "about to perform an
// operation" event. The insert-if-absent into the key cache is atomic
// under the cache's lock, so concurrent duplicate events still produce
// exactly one downstream notification.
func (c *RentalCorrelator) OnOperationExecuting(typeName string, id identity.InstanceID, lease int64) {
	key := identity.NewRentalKey(id, lease)
	if present, _ := c.seen.ContainsOrAdd(key, struct{}{}); present {
		return
	}
	c.sink.OnInstanceRented(typeName, id, lease)
}

// PendingKeys returns the number of rental keys currently cached, for
// introspection and tests.
func (c *RentalCorrelator) PendingKeys() int {
	return c.seen.Len()
}
