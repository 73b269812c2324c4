// Package measure is the measurement store: it keeps the latest value of
// every beacon channel and forwards readings upstream.
package measure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"cloudpico-sensorbridge/internal/gwobj"
	"cloudpico-sensorbridge/internal/sensor"
)

var (
	ErrInvalidReading = errors.New("measure: invalid reading")
	ErrUnknownObject  = errors.New("measure: no gateway object for index")
	ErrQueueFull      = errors.New("measure: publish queue full")
)

// Publisher delivers payloads upstream.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retained bool) error
}

// Identities is the part of the gateway object store the measurement store
// relies on.
type Identities interface {
	Get(idx int) (gwobj.Object, bool)
	SetInstanceCreated(idx int, gen uint64) error
}

// Reading is the latest value of one channel.
type Reading struct {
	Family     string    `json:"family"`
	Channel    uint16    `json:"channel"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	BatteryPct *uint8    `json:"battery_pct,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Options struct {
	Capacity  int
	GatewayID string
	Topics    Topics
	Codec     Codec
	QueueSize int
	// AnnounceDelay is how long after creation a beacon stays unannounced
	// upstream. Until then its endpoint name can still change and its
	// readings are only kept as latest values.
	AnnounceDelay time.Duration
	Logger        *slog.Logger
}

type outbound struct {
	topic    string
	payload  []byte
	retained bool
}

type cell struct {
	valid      bool
	value      float64
	percentage uint8
	at         time.Time
	// seq orders writes across the store.
	seq uint64
}

type Stats struct {
	Published     atomic.Uint64
	PublishErrors atomic.Uint64
	Queued        atomic.Uint64
}

type Store struct {
	ids       Identities
	publisher Publisher
	codec     Codec
	topics    Topics
	gatewayID string
	queue     chan outbound
	kick      chan struct{}
	stats     Stats
	logger    *slog.Logger
	now       func() time.Time

	announceDelay time.Duration
	announceTick  time.Duration

	mu sync.Mutex
	// latest[idx][family][channel]
	latest [][][]cell
	// gens[idx] is the object generation the values at idx belong to.
	gens    []uint64
	pending []bool
	// flushed[idx] is the last write seq published by an announcement.
	flushed   []uint64
	seq       uint64
	endpoints []string
}

func New(ids Identities, publisher Publisher, opts Options) (*Store, error) {
	if ids == nil || publisher == nil {
		return nil, errors.New("measure: identities and publisher are required")
	}
	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("measure: capacity must be > 0, got %d", opts.Capacity)
	}
	if opts.AnnounceDelay < 0 {
		return nil, fmt.Errorf("measure: announce delay must be >= 0, got %v", opts.AnnounceDelay)
	}
	if opts.Codec == nil {
		opts.Codec = jsonCodec{}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	latest := make([][][]cell, opts.Capacity)
	for i := range latest {
		latest[i] = make([][]cell, len(sensor.Families))
		for _, f := range sensor.Families {
			latest[i][f] = make([]cell, f.Channels())
		}
	}

	return &Store{
		ids:           ids,
		publisher:     publisher,
		codec:         opts.Codec,
		topics:        opts.Topics,
		gatewayID:     opts.GatewayID,
		queue:         make(chan outbound, opts.QueueSize),
		kick:          make(chan struct{}, 1),
		logger:        logger,
		now:           time.Now,
		announceDelay: opts.AnnounceDelay,
		announceTick:  announceTick(opts.AnnounceDelay),
		latest:        latest,
		gens:          make([]uint64, opts.Capacity),
		pending:       make([]bool, opts.Capacity),
		flushed:       make([]uint64, opts.Capacity),
		endpoints:     make([]string, opts.Capacity),
	}, nil
}

func announceTick(delay time.Duration) time.Duration {
	tick := delay / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	if tick > time.Second || delay == 0 {
		tick = time.Second
	}
	return tick
}

func (s *Store) Stats() *Stats { return &s.stats }

// Set records a measurement. Readings of a beacon that is already announced
// are queued for publishing; otherwise the beacon is marked for announcement
// and Run publishes its latest values once the announce delay has passed.
func (s *Store) Set(m sensor.Measurement) error {
	if m.Index < 0 || m.Index >= len(s.latest) || int(m.Family) >= len(sensor.Families) ||
		m.Offset >= m.Family.Channels() {
		return fmt.Errorf("%w: idx=%d family=%v offset=%d", ErrInvalidReading, m.Index, m.Family, m.Offset)
	}
	obj, ok := s.ids.Get(m.Index)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownObject, m.Index)
	}
	now := s.now()

	s.mu.Lock()
	if s.gens[m.Index] != obj.Generation {
		s.resetLocked(m.Index)
		s.gens[m.Index] = obj.Generation
	}
	s.seq++
	s.latest[m.Index][m.Family][m.Offset] = cell{valid: true, value: m.Value, percentage: m.Percentage, at: now, seq: s.seq}
	if !obj.InstanceCreated {
		s.pending[m.Index] = true
		s.mu.Unlock()
		s.wake()
		return nil
	}
	s.endpoints[m.Index] = obj.EndpointName
	s.mu.Unlock()

	msg := s.readingMessage(obj, m.Family, m.Offset, m.Value, m.Percentage, now)
	return s.enqueue(s.topics.Reading(obj.EndpointName, m.Family, m.Offset), msg, false)
}

func (s *Store) readingMessage(obj gwobj.Object, f sensor.Family, ch uint16, value float64, pct uint8, at time.Time) ReadingMessage {
	msg := ReadingMessage{
		GatewayID: s.gatewayID,
		Endpoint:  obj.EndpointName,
		Address:   obj.Address,
		Family:    f.String(),
		Channel:   ch,
		Value:     value,
		Unit:      Unit(f),
		Timestamp: at,
	}
	if f == sensor.FamilyBattery {
		msg.BatteryPct = &pct
	}
	return msg
}

func (s *Store) wake() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// announcePending announces every marked beacon whose announce delay has
// passed. Beacons whose info publish fails stay marked and are retried.
func (s *Store) announcePending(ctx context.Context) {
	s.mu.Lock()
	var due []int
	for idx, p := range s.pending {
		if p {
			due = append(due, idx)
		}
	}
	s.mu.Unlock()

	for _, idx := range due {
		s.announce(ctx, idx)
	}
}

func (s *Store) announce(ctx context.Context, idx int) {
	obj, ok := s.ids.Get(idx)

	s.mu.Lock()
	if !ok || obj.Generation != s.gens[idx] {
		s.pending[idx] = false
		s.mu.Unlock()
		return
	}
	if obj.InstanceCreated {
		// A write raced the previous announcement and was marked pending
		// against the old snapshot.
		late := s.heldLocked(idx, obj)
		s.mu.Unlock()
		s.publishHeld(idx, obj, late)
		return
	}
	s.mu.Unlock()

	now := s.now()
	if s.announceDelay > 0 && now.Before(obj.CreatedAt.Add(s.announceDelay)) {
		return
	}

	info, err := s.codec.Marshal(InfoMessage{
		GatewayID: s.gatewayID,
		Endpoint:  obj.EndpointName,
		Address:   obj.Address,
		Index:     obj.Index,
		CreatedAt: now,
	})
	if err != nil {
		s.logger.Error("measure: encode info", "idx", idx, "error", err)
		return
	}
	topic := s.topics.Info(obj.EndpointName)
	if err := s.publish(ctx, topic, info, true); err != nil {
		return
	}
	if err := s.ids.SetInstanceCreated(idx, obj.Generation); err != nil {
		// Deleted meanwhile; take the announcement back.
		s.logger.Debug("measure: object gone during announce", "idx", idx, "error", err)
		_ = s.publish(ctx, topic, nil, true)
		return
	}

	s.mu.Lock()
	if s.gens[idx] != obj.Generation {
		s.mu.Unlock()
		_ = s.publish(ctx, topic, nil, true)
		return
	}
	s.endpoints[idx] = obj.EndpointName
	held := s.heldLocked(idx, obj)
	s.mu.Unlock()

	s.logger.Info("measure: instance created", "idx", idx, "addr", obj.Address, "endpoint", obj.EndpointName)
	s.publishHeld(idx, obj, held)
}

type heldReading struct {
	family sensor.Family
	msg    ReadingMessage
}

// heldLocked collects the values written since the last flush of idx and
// clears its pending mark.
func (s *Store) heldLocked(idx int, obj gwobj.Object) []heldReading {
	var out []heldReading
	for _, f := range sensor.Families {
		for ch, c := range s.latest[idx][f] {
			if c.valid && c.seq > s.flushed[idx] {
				out = append(out, heldReading{f, s.readingMessage(obj, f, uint16(ch), c.value, c.percentage, c.at)})
			}
		}
	}
	s.flushed[idx] = s.seq
	s.pending[idx] = false
	return out
}

func (s *Store) publishHeld(idx int, obj gwobj.Object, held []heldReading) {
	for _, r := range held {
		topic := s.topics.Reading(obj.EndpointName, r.family, r.msg.Channel)
		if err := s.enqueue(topic, r.msg, false); err != nil {
			s.logger.Warn("measure: reading dropped", "idx", idx, "topic", topic, "error", err)
		}
	}
}

func (s *Store) enqueue(topic string, v any, retained bool) error {
	payload, err := s.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("measure: encode %s: %w", topic, err)
	}
	return s.enqueueRaw(topic, payload, retained)
}

func (s *Store) enqueueRaw(topic string, payload []byte, retained bool) error {
	select {
	case s.queue <- outbound{topic: topic, payload: payload, retained: retained}:
		s.stats.Queued.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Store) resetLocked(idx int) {
	for _, f := range sensor.Families {
		clear(s.latest[idx][f])
	}
	s.pending[idx] = false
}

// Latest returns the valid channel values of beacon idx.
func (s *Store) Latest(idx int) []Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.latest) {
		return nil
	}
	var out []Reading
	for _, f := range sensor.Families {
		for ch, c := range s.latest[idx][f] {
			if !c.valid {
				continue
			}
			r := Reading{
				Family:    f.String(),
				Channel:   uint16(ch),
				Value:     c.value,
				Unit:      Unit(f),
				UpdatedAt: c.at,
			}
			if f == sensor.FamilyBattery {
				pct := c.percentage
				r.BatteryPct = &pct
			}
			out = append(out, r)
		}
	}
	return out
}

// Removed is registered as a gateway object agent: it clears the values of
// object generation gen and withdraws its retained announcement. Values that
// already belong to a newer object at idx are left alone.
func (s *Store) Removed(idx int, gen uint64) {
	if idx < 0 || idx >= len(s.latest) {
		return
	}
	s.mu.Lock()
	if s.gens[idx] != gen {
		s.mu.Unlock()
		return
	}
	s.resetLocked(idx)
	s.gens[idx] = 0
	endpoint := s.endpoints[idx]
	s.endpoints[idx] = ""
	s.mu.Unlock()

	if endpoint == "" {
		return
	}
	// An empty retained payload clears the retained message on the broker.
	if err := s.enqueueRaw(s.topics.Info(endpoint), nil, true); err != nil {
		s.logger.Warn("measure: could not withdraw instance", "idx", idx, "endpoint", endpoint, "error", err)
	}
}

// Health builds the gateway status payload.
func (s *Store) Health(online bool, beacons int) ([]byte, error) {
	return s.codec.Marshal(HealthMessage{
		GatewayID: s.gatewayID,
		Online:    online,
		Beacons:   beacons,
		Timestamp: s.now(),
	})
}

// Run publishes queued messages and announces new beacons until ctx is
// canceled.
func (s *Store) Run(ctx context.Context) error {
	t := time.NewTicker(s.announceTick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-s.queue:
			_ = s.publish(ctx, msg.topic, msg.payload, msg.retained)
		case <-s.kick:
			s.announcePending(ctx)
		case <-t.C:
			s.announcePending(ctx)
		}
	}
}

func (s *Store) publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	if err := s.publisher.Publish(ctx, topic, payload, retained); err != nil {
		s.stats.PublishErrors.Add(1)
		s.logger.Warn("measure: publish failed", "topic", topic, "error", err)
		return err
	}
	s.stats.Published.Add(1)
	return nil
}
