// Package ingest adapts the host framework's event stream onto the
// lifecycle tracker's write API. The host emits three event kinds at
// framework level; the dispatcher routes them, feeds operation-executing
// events through the rental correlator, and maintains the per-instance
// return hooks that translate the pool's zero-argument return callback
// into keyed tracker calls.
package ingest

import (
	"github.com/poolsight/poolsight/pkg/identity"
)

// EventKind names one of the three host event kinds.
type EventKind int

const (
	// InstanceInitialized fires when the host constructs or re-initializes
	// an instance. For pooled resources it fires on every reuse, not just
	// first creation.
	InstanceInitialized EventKind = iota
	// InstanceDisposed fires when the host destroys a physical instance.
	InstanceDisposed
	// OperationExecuting fires before every operation an instance
	// performs; the first one of a rental cycle marks the rent.
	OperationExecuting
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case InstanceInitialized:
		return "instance_initialized"
	case InstanceDisposed:
		return "instance_disposed"
	case OperationExecuting:
		return "operation_executing"
	default:
		return "unknown"
	}
}

// Event is one host framework event. Pooled is meaningful for
// InstanceInitialized and InstanceDisposed; OperationExecuting events
// carry no pooled flag, so the tracker resolves pooled-ness from the
// instance's recorded state and ignores rental events that land on a
// standard instance.
type Event struct {
	Kind     EventKind
	TypeName string
	Instance identity.InstanceID
	Lease    int64
	Pooled   bool
}
