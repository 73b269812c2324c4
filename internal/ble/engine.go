package ble

import (
	"context"
	"errors"
	"log/slog"
)

// Engine is the single reconciliation loop. Packets from the radio and
// removal notifications from the identity store are queued and applied in
// order on one goroutine, so the registry needs no locking.
type Engine struct {
	handler  *Handler
	packets  chan Packet
	removals chan removal
	stopped  chan struct{}
	logger   *slog.Logger
}

type EngineOptions struct {
	// QueueSize bounds the packet mailbox.
	QueueSize int
	// RemovalQueueSize bounds the removal mailbox; defaults to 2*capacity.
	RemovalQueueSize int
	Logger           *slog.Logger
}

func NewEngine(h *Handler, opts EngineOptions) (*Engine, error) {
	if h == nil {
		return nil, errors.New("ble: handler required")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.RemovalQueueSize <= 0 {
		opts.RemovalQueueSize = 2 * h.registry.Capacity()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		handler:  h,
		packets:  make(chan Packet, opts.QueueSize),
		removals: make(chan removal, opts.RemovalQueueSize),
		stopped:  make(chan struct{}),
		logger:   logger,
	}, nil
}

func (e *Engine) Stats() *Stats { return e.handler.Stats() }

// Submit queues a packet without blocking. It reports false when the mailbox
// is full and the packet was dropped.
func (e *Engine) Submit(p Packet) bool {
	select {
	case e.packets <- p:
		return true
	default:
		e.handler.stats.DroppedAds.Add(1)
		return false
	}
}

type removal struct {
	idx int
	gen uint64
}

// Removed queues an identity store deletion of object generation gen at idx.
// Removals are never dropped; the call blocks while the mailbox is full and
// returns once the engine stopped.
func (e *Engine) Removed(idx int, gen uint64) {
	select {
	case e.removals <- removal{idx: idx, gen: gen}:
	case <-e.stopped:
	}
}

// Run applies queued work until ctx is canceled. Pending removals are applied
// before packets.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.stopped)
	e.logger.Info("ble: reconciliation started")

	for {
		select {
		case r := <-e.removals:
			e.handler.HandleRemoval(r.idx, r.gen)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			e.logger.Info("ble: reconciliation stopped")
			return ctx.Err()
		case r := <-e.removals:
			e.handler.HandleRemoval(r.idx, r.gen)
		case p := <-e.packets:
			e.handler.HandlePacket(p)
		}
	}
}
