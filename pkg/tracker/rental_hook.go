package tracker

import (
	"sync/atomic"

	"github.com/poolsight/poolsight/pkg/identity"
)

// hookBinding is the latest (type, id, lease) triple a return hook will
// report under. Rebinding swaps the whole triple atomically so a return
// firing concurrently with a re-initialization sees either the old or the
// new rental, never a mix.
type hookBinding struct {
	typeName string
	id       identity.InstanceID
	lease    int64
}

// ReturnHook adapts the host pool's zero-argument per-instance return
// callback onto the tracker's keyed write API. The host creates one hook
// per physical instance at construction and rebinds it on every
// re-initialization; the pool invokes Returned with no arguments at the
// moment the instance goes back into the pool.
type ReturnHook struct {
	tracker *Tracker
	binding atomic.Pointer[hookBinding]
}

// NewReturnHook creates a hook bound to the given rental triple.
func (t *Tracker) NewReturnHook(typeName string, id identity.InstanceID, lease int64) *ReturnHook {
	h := &ReturnHook{tracker: t}
	h.Rebind(typeName, id, lease)
	return h
}

// Rebind points the hook at the instance's latest rental triple. Called
// once per re-initialization.
func (h *ReturnHook) Rebind(typeName string, id identity.InstanceID, lease int64) {
	h.binding.Store(&hookBinding{typeName: typeName, id: id, lease: lease})
}

// Returned is the zero-argument callback handed to the host pool. It
// reports a return-to-pool for the hook's current binding.
func (h *ReturnHook) Returned() {
	b := h.binding.Load()
	h.tracker.OnInstanceReturnedToPool(b.typeName, b.id, b.lease)
}
