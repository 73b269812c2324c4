package ble

import (
	"errors"
	"log/slog"
	"time"

	"cloudpico-sensorbridge/internal/registry"
	"cloudpico-sensorbridge/internal/sensor"
	"cloudpico-sensorbridge/internal/utils"
)

// MeasurementStore receives converted measurements keyed by beacon index and
// channel offset.
type MeasurementStore interface {
	Set(m sensor.Measurement) error
}

// NameStore binds a discovered name to a beacon until it has an upstream
// identity.
type NameStore interface {
	InstanceCreated(idx int) bool
	SetEndpointName(idx int, name []byte) error
}

type HandlerOptions struct {
	Capabilities sensor.Capabilities
	// Lifetime is the liveness extension granted per admitted event.
	Lifetime        time.Duration
	EventLogVerbose bool
	// Activity is called once per admitted event.
	Activity func(idx int)
	Logger   *slog.Logger
}

// Handler applies classified advertisements to the registry. It is not safe
// for concurrent use; the Engine serializes all calls.
type Handler struct {
	registry     *registry.Registry
	measurements MeasurementStore
	names        NameStore
	stats        *Stats

	caps     sensor.Capabilities
	lifetime time.Duration
	verbose  bool
	activity func(idx int)
	logger   *slog.Logger
}

// NewHandler creates the reconciliation handler.
func NewHandler(reg *registry.Registry, measurements MeasurementStore, names NameStore, opts HandlerOptions) (*Handler, error) {
	if reg == nil || measurements == nil || names == nil {
		return nil, errors.New("ble: registry, measurement store and name store are required")
	}
	if opts.Lifetime <= 0 {
		return nil, errors.New("ble: lifetime must be > 0")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry:     reg,
		measurements: measurements,
		names:        names,
		stats:        &Stats{},
		caps:         opts.Capabilities,
		lifetime:     opts.Lifetime,
		verbose:      opts.EventLogVerbose,
		activity:     opts.Activity,
		logger:       logger,
	}, nil
}

func (h *Handler) Stats() *Stats { return h.stats }

// HandlePacket classifies one packet and routes it.
func (h *Handler) HandlePacket(p Packet) {
	h.stats.Ads.Add(1)
	adv := Parse(p)

	switch adv.Variant {
	case VariantPrimary:
		h.stats.PrimaryAds.Add(1)
		h.admit(p, adv.Event, nil)

	case VariantCombined:
		// The coded PHY ad carries both the event and the scan response. An
		// admitted event gets its response applied before dispatch, so the
		// product and name are in place when the measurement store first
		// sees the beacon.
		h.stats.CombinedAds.Add(1)
		responded := false
		h.admit(p, adv.Event, func() {
			h.respond(p.Address, adv)
			responded = true
		})
		if !responded {
			h.respond(p.Address, adv)
		}

	case VariantResponse:
		h.stats.RspAds.Add(1)
		h.respond(p.Address, adv)

	case VariantUnrecognized:
	}
}

// HandleRemoval applies an identity store deletion of object generation gen
// to the registry. Notices for an index that was reused since are ignored.
func (h *Handler) HandleRemoval(idx int, gen uint64) {
	h.registry.OnRemovalNotice(idx, gen)
}

// admit runs the admission filter and, for novel events, the dispatcher.
// beforeDispatch, if set, runs once the event is admitted.
func (h *Handler) admit(p Packet, e Event, beforeDispatch func()) (int, bool) {
	if !h.caps.Allows(e.Kind) {
		h.stats.UnsupportedAds.Add(1)
		return -1, false
	}
	h.stats.AcceptedAds.Add(1)

	idx, err := h.registry.ResolveOrCreate(p.Address)
	if err != nil {
		h.stats.CreateFailures.Add(1)
		return -1, false
	}
	h.stats.IndexedAds.Add(1)

	// Sequence 0 is never treated as a duplicate so two beacons that have
	// just powered up are both admitted.
	slot := h.registry.Slot(idx)
	if e.ID != 0 && e.ID == slot.LastSeq && e.Kind == slot.LastKind {
		h.stats.DuplicateAds.Add(1)
		return idx, false
	}

	if h.verbose {
		h.logger.Info("ble: event",
			"kind", e.Kind.String(),
			"idx", idx,
			"rssi", p.RSSI,
			"seq", e.ID,
			"event_addr", utils.MAC(e.Addr),
			"data", utils.BytesToHex(e.Data[:]),
		)
	}

	slot.LastSeq = e.ID
	slot.LastKind = e.Kind

	if h.activity != nil {
		h.activity(idx)
	}
	if beforeDispatch != nil {
		beforeDispatch()
	}
	h.dispatch(idx, e, slot.Product)

	if err := h.registry.RefreshLiveness(idx, h.lifetime); err != nil {
		h.stats.LifetimeErrors.Add(1)
	}
	return idx, true
}

func (h *Handler) dispatch(idx int, e Event, product sensor.Product) {
	h.stats.ProcessedAds.Add(1)

	m, err := Convert(idx, e, product)
	if err != nil {
		h.logger.Warn("ble: unhandled advertisement event", "idx", idx, "kind", e.Kind.String(), "error", err)
		h.stats.SetErrors.Add(1)
		return
	}
	if err := h.measurements.Set(m); err != nil {
		h.logger.Warn("ble: measurement write failed",
			"idx", idx,
			"family", m.Family.String(),
			"offset", m.Offset,
			"error", err,
		)
		h.stats.SetErrors.Add(1)
		return
	}
	h.stats.SetEvents.Add(1)
}

func (h *Handler) respond(addr string, adv Advertisement) {
	if idx, err := h.identify(addr, adv.Response); err == nil {
		h.bindName(idx, adv.Name)
	}
}

// identify records the product family declared by a scan response. It never
// allocates a slot and does not refresh liveness.
func (h *Handler) identify(addr string, r Response) (int, error) {
	idx, err := h.registry.Resolve(addr)
	if err != nil {
		return -1, err
	}
	h.registry.Slot(idx).Product = r.Product
	return idx, nil
}

func (h *Handler) bindName(idx int, name []byte) {
	if len(name) == 0 {
		return
	}
	// Once the beacon is known upstream its name is fixed.
	if h.names.InstanceCreated(idx) {
		return
	}
	if err := h.names.SetEndpointName(idx, name); err != nil {
		h.logger.Debug("ble: set endpoint name", "idx", idx, "error", err)
		return
	}
	h.stats.NameUpdates.Add(1)
	h.logger.Debug("ble: endpoint name set", "idx", idx, "name", string(name))
}
