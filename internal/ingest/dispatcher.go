package ingest

import (
	"sync"

	"go.uber.org/zap"

	"github.com/poolsight/poolsight/pkg/identity"
	"github.com/poolsight/poolsight/pkg/pperrors"
	"github.com/poolsight/poolsight/pkg/tracker"
)

// Dispatcher routes host events into the tracker and correlator. It is
// safe for concurrent use; routing itself holds no locks beyond the hook
// registry's atomic map operations, so event delivery never blocks the
// host.
type Dispatcher struct {
	tracker *tracker.Tracker
	logger  *zap.Logger
	hooks   sync.Map // identity.InstanceID -> *tracker.ReturnHook
}

// NewDispatcher creates a dispatcher feeding the given tracker.
func NewDispatcher(t *tracker.Tracker, logger *zap.Logger) (*Dispatcher, error) {
	if t == nil {
		return nil, pperrors.New(pperrors.ErrorTypeValidation, "tracker cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{tracker: t, logger: logger}, nil
}

// Handle routes one host event. It never fails: malformed-but-plausible
// events degrade to tracker-level no-ops.
func (d *Dispatcher) Handle(ev Event) {
	switch ev.Kind {
	case InstanceInitialized:
		d.handleInitialized(ev)
	case InstanceDisposed:
		d.handleDisposed(ev)
	case OperationExecuting:
		// Standard resources are exempt from rental correlation; the
		// tracker recognizes them from the instance state and records an
		// ignored event instead of a rent.
		d.tracker.Correlator().OnOperationExecuting(ev.TypeName, ev.Instance, ev.Lease)
	default:
		d.logger.Debug("unrecognized event kind dropped",
			zap.Int("kind", int(ev.Kind)),
			zap.String("type", ev.TypeName))
	}
}

func (d *Dispatcher) handleInitialized(ev Event) {
	d.tracker.OnInstanceInitialized(ev.TypeName, ev.Instance, ev.Lease, ev.Pooled)
	if !ev.Pooled {
		return
	}

	// Bind or rebind the instance's return hook to the latest rental
	// triple so the pool's zero-argument return callback reports against
	// the right lease.
	if v, ok := d.hooks.Load(ev.Instance); ok {
		v.(*tracker.ReturnHook).Rebind(ev.TypeName, ev.Instance, ev.Lease)
		return
	}
	hook := d.tracker.NewReturnHook(ev.TypeName, ev.Instance, ev.Lease)
	if existing, loaded := d.hooks.LoadOrStore(ev.Instance, hook); loaded {
		existing.(*tracker.ReturnHook).Rebind(ev.TypeName, ev.Instance, ev.Lease)
	}
}

func (d *Dispatcher) handleDisposed(ev Event) {
	if ev.Pooled {
		d.hooks.Delete(ev.Instance)
		d.tracker.OnPooledInstanceDisposed(ev.TypeName, ev.Instance, ev.Lease)
		return
	}
	d.tracker.OnStandardInstanceDisposed(ev.TypeName, ev.Instance)
}

// ReturnCallback returns the zero-argument callback the host pool invokes
// when the given instance goes back into the pool, or nil if the instance
// is unknown. The callback stays valid across re-initializations; the
// dispatcher rebinds it to the latest lease.
func (d *Dispatcher) ReturnCallback(id identity.InstanceID) func() {
	v, ok := d.hooks.Load(id)
	if !ok {
		return nil
	}
	return v.(*tracker.ReturnHook).Returned
}
