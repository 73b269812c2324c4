// Package registry maps beacon radio addresses to a fixed table of slots.
//
// The authoritative existence and expiry of a beacon lives in an external
// identity store; the registry only keeps the per-slot reconciliation state
// (last admitted event, product family) indexed by the store's object index.
// All methods except TableFull must be called from a single goroutine.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"cloudpico-sensorbridge/internal/sensor"
)

// IdentityStore is the external object store the registry resolves against.
// Create must return errors matching ErrCapacityExhausted when it has no free
// object and ErrBlockedIdentity for blocked addresses. Generation identifies
// the object currently holding an index.
type IdentityStore interface {
	Lookup(addr string) (int, bool)
	Create(addr string) (int, error)
	SetLifetime(idx int, ttl time.Duration) error
	Generation(idx int) (uint64, bool)
}

// Slot is the reconciliation state of one beacon.
type Slot struct {
	LastKind sensor.Kind
	LastSeq  uint16
	Product  sensor.Product
}

func (s *Slot) reset() {
	s.LastKind = sensor.KindNone
	s.LastSeq = 0
	s.Product = sensor.ProductUnknown
}

// Registry owns the slot table.
type Registry struct {
	store     IdentityStore
	slots     []Slot
	// tableFull is written only by the owning goroutine; it is atomic so
	// exporters can read it.
	tableFull atomic.Bool

	logger        *slog.Logger
	verboseCreate bool
}

// Options configures a Registry.
type Options struct {
	// Capacity is the number of slots. It must match the identity store capacity.
	Capacity int
	Logger   *slog.Logger
	// VerboseCreate logs create attempts for blocked addresses too.
	VerboseCreate bool
}

// New preallocates the slot table.
func New(store IdentityStore, opts Options) (*Registry, error) {
	if store == nil {
		return nil, errors.New("registry: identity store required")
	}
	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("registry: capacity must be > 0, got %d", opts.Capacity)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		store:         store,
		slots:         make([]Slot, opts.Capacity),
		logger:        logger,
		verboseCreate: opts.VerboseCreate,
	}
	for i := range r.slots {
		r.slots[i].reset()
	}
	return r, nil
}

// Capacity returns the number of slots.
func (r *Registry) Capacity() int { return len(r.slots) }

// TableFull reports whether the capacity latch is set.
func (r *Registry) TableFull() bool { return r.tableFull.Load() }

// Slot returns the slot at idx, or nil when idx is out of range.
func (r *Registry) Slot(idx int) *Slot {
	if !r.valid(idx) {
		return nil
	}
	return &r.slots[idx]
}

// Resolve looks the address up without allocating.
func (r *Registry) Resolve(addr string) (int, error) {
	idx, ok := r.store.Lookup(addr)
	if !ok {
		return -1, ErrUnresolvedSlot
	}
	if !r.valid(idx) {
		r.logger.Error("registry: invalid index", "addr", addr, "idx", idx)
		return -1, fmt.Errorf("%w: index %d out of range", ErrPermission, idx)
	}
	return idx, nil
}

// ResolveOrCreate looks the address up and, when it is unknown and the table
// is not latched full, asks the identity store to create an object for it.
func (r *Registry) ResolveOrCreate(addr string) (int, error) {
	idx, err := r.Resolve(addr)
	if !errors.Is(err, ErrUnresolvedSlot) {
		return idx, err
	}
	if r.tableFull.Load() {
		return -1, ErrCapacityExhausted
	}

	idx, err = r.store.Create(addr)
	switch {
	case err == nil:
	case errors.Is(err, ErrCapacityExhausted):
		r.tableFull.Store(true)
		r.logger.Debug("registry: table full", "addr", addr)
		return -1, ErrCapacityExhausted
	case errors.Is(err, ErrBlockedIdentity):
		if r.verboseCreate {
			r.logger.Debug("registry: create request for blocked address", "addr", addr)
		}
		return -1, ErrBlockedIdentity
	default:
		r.logger.Debug("registry: create request failed", "addr", addr, "error", err)
		return -1, fmt.Errorf("%w: create %s: %w", ErrPermission, addr, errors.Join(ErrStoreWrite, err))
	}

	if !r.valid(idx) {
		r.logger.Error("registry: invalid index", "addr", addr, "idx", idx)
		return -1, fmt.Errorf("%w: index %d out of range", ErrPermission, idx)
	}
	r.slots[idx].reset()
	r.logger.Debug("registry: slot created", "addr", addr, "idx", idx)
	return idx, nil
}

// OnExternalRemoval is delivered when the identity store deleted the object at
// idx. It is idempotent and accepts indices that were never populated.
func (r *Registry) OnExternalRemoval(idx int) {
	if !r.valid(idx) {
		return
	}
	r.tableFull.Store(false)
	r.slots[idx].Product = sensor.ProductUnknown
}

// OnRemovalNotice applies a removal of the object generation gen at idx. The
// store frees an index before the notice reaches the registry, so a newer
// object may already hold it; such a notice is stale and dropped. It reports
// whether the notice was applied.
func (r *Registry) OnRemovalNotice(idx int, gen uint64) bool {
	if cur, ok := r.store.Generation(idx); ok && cur != gen {
		r.logger.Debug("registry: stale removal dropped", "idx", idx, "gen", gen, "current_gen", cur)
		return false
	}
	r.OnExternalRemoval(idx)
	return true
}

// RefreshLiveness extends the expiry of the object at idx. Failures are
// logged and returned for accounting; they are never fatal.
func (r *Registry) RefreshLiveness(idx int, ttl time.Duration) error {
	if err := r.store.SetLifetime(idx, ttl); err != nil {
		r.logger.Error("registry: unable to set lifetime", "idx", idx, "error", err)
		return fmt.Errorf("%w: set lifetime: %w", ErrStoreWrite, err)
	}
	return nil
}

func (r *Registry) valid(idx int) bool {
	return idx >= 0 && idx < len(r.slots)
}
