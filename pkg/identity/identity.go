// Package identity defines the identity primitives the lifecycle tracker
// keys its state on: the physical instance identifier, the per-instance
// lease number, and the (instance, lease) rental key.
//
// An InstanceID is assigned once at physical construction and is stable for
// the instance's entire life; it is never reused even when the pool recycles
// the instance across many logical rentals. The lease number is incremented
// by the host once per rental cycle, so a RentalKey uniquely names one
// rental cycle for the whole process lifetime.
package identity

import (
	"github.com/google/uuid"
)

// InstanceID uniquely identifies one physical pooled or standard resource
// instance. It is a 128-bit globally unique value assigned at construction.
type InstanceID = uuid.UUID

// NilInstance is the zero InstanceID. No live instance ever carries it.
var NilInstance = uuid.Nil

// NewInstanceID returns a fresh random InstanceID.
func NewInstanceID() InstanceID {
	return uuid.New()
}

// ParseInstanceID parses the canonical string form of an InstanceID.
func ParseInstanceID(s string) (InstanceID, error) {
	return uuid.Parse(s)
}

// Short returns a truncated display form of an instance identifier,
// the first 8 hex characters of its canonical encoding. Activity records
// carry this form rather than the full identifier.
func Short(id InstanceID) string {
	return id.String()[:8]
}

// RentalKey names exactly one rental cycle: a physical instance paired with
// the lease number active during that rental. Lease numbers are monotonic
// per instance, so a key never recurs across the process lifetime.
type RentalKey struct {
	Instance InstanceID
	Lease    int64
}

// NewRentalKey builds the rental key for an instance and lease pairing.
func NewRentalKey(id InstanceID, lease int64) RentalKey {
	return RentalKey{Instance: id, Lease: lease}
}
