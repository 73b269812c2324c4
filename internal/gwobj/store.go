// Package gwobj is the gateway object store: the authoritative table of
// beacons the bridge currently tracks, with their endpoint names, liveness
// deadlines and the administrative blocklist.
package gwobj

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Object is a snapshot of one tracked beacon.
type Object struct {
	Index           int       `json:"index"`
	Address         string    `json:"address"`
	EndpointName    string    `json:"endpoint_name"`
	InstanceCreated bool      `json:"instance_created"`
	// Generation distinguishes successive objects that reuse an index.
	Generation      uint64    `json:"generation"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Agent is notified with the index and generation of a deleted object. Agents
// run outside the store lock and may call back into the store. By the time an
// agent runs the index may already hold a newer object.
type Agent func(idx int, gen uint64)

type Options struct {
	Capacity int
	// Lifetime is the initial liveness granted to a new object.
	Lifetime time.Duration
	// Names presets endpoint names by address.
	Names map[string]string
	// Blocked seeds the blocklist.
	Blocked []string
	// Repository persists names and the blocklist; nil keeps them in memory.
	Repository Repository
	// WriteTimeout bounds repository writes made on behalf of callers
	// without a context.
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

type entry struct {
	Object
	used bool
}

type Store struct {
	mu      sync.Mutex
	objects []entry
	byAddr  map[string]int
	blocked map[string]bool
	names   map[string]string
	agents  []Agent
	gen     uint64

	lifetime     time.Duration
	repo         Repository
	writeTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

func New(opts Options) (*Store, error) {
	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("gwobj: capacity must be > 0, got %d", opts.Capacity)
	}
	if opts.Lifetime <= 0 {
		return nil, fmt.Errorf("gwobj: lifetime must be > 0, got %v", opts.Lifetime)
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		objects:      make([]entry, opts.Capacity),
		byAddr:       make(map[string]int, opts.Capacity),
		blocked:      make(map[string]bool),
		names:        make(map[string]string),
		lifetime:     opts.Lifetime,
		repo:         opts.Repository,
		writeTimeout: opts.WriteTimeout,
		logger:       logger,
		now:          time.Now,
	}
	for addr, name := range opts.Names {
		s.names[normalize(addr)] = name
	}
	for _, addr := range opts.Blocked {
		s.blocked[normalize(addr)] = true
	}
	return s, nil
}

// Load merges persisted names and blocklist entries into the store.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	records, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("gwobj: load: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		addr := normalize(r.Address)
		if r.EndpointName != "" {
			s.names[addr] = r.EndpointName
		}
		if r.Blocked {
			s.blocked[addr] = true
		}
	}
	s.logger.Info("gwobj: state loaded", "records", len(records), "blocked", len(s.blocked))
	return nil
}

// RegisterAgent adds a deletion observer.
func (s *Store) RegisterAgent(a Agent) {
	s.mu.Lock()
	s.agents = append(s.agents, a)
	s.mu.Unlock()
}

func (s *Store) Capacity() int { return len(s.objects) }

func (s *Store) Lookup(addr string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byAddr[normalize(addr)]
	return idx, ok
}

// Create allocates an object for addr. Creating an existing address returns
// its index.
func (s *Store) Create(addr string) (int, error) {
	addr = normalize(addr)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blocked[addr] {
		return -1, ErrBlocked
	}
	if idx, ok := s.byAddr[addr]; ok {
		return idx, nil
	}
	for idx := range s.objects {
		if s.objects[idx].used {
			continue
		}
		now := s.now()
		name, ok := s.names[addr]
		if !ok {
			name = defaultEndpointName(addr)
		}
		s.gen++
		s.objects[idx] = entry{
			used: true,
			Object: Object{
				Index:        idx,
				Address:      addr,
				EndpointName: name,
				Generation:   s.gen,
				CreatedAt:    now,
				ExpiresAt:    now.Add(s.lifetime),
			},
		}
		s.byAddr[addr] = idx
		s.logger.Debug("gwobj: object created", "addr", addr, "idx", idx, "endpoint", name)
		return idx, nil
	}
	return -1, ErrNoMemory
}

// SetLifetime moves the expiry of the object to now+ttl.
func (s *Store) SetLifetime(idx int, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("gwobj: lifetime must be > 0, got %v", ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entry(idx)
	if err != nil {
		return err
	}
	e.ExpiresAt = s.now().Add(ttl)
	return nil
}

// Generation returns the generation of the object at idx.
func (s *Store) Generation(idx int) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entry(idx)
	if err != nil {
		return 0, false
	}
	return e.Generation, true
}

func (s *Store) InstanceCreated(idx int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entry(idx)
	return err == nil && e.InstanceCreated
}

// SetInstanceCreated marks the object generation gen at idx as known
// upstream, freezing its name. It fails with ErrNotFound when idx now holds
// a different object.
func (s *Store) SetInstanceCreated(idx int, gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entry(idx)
	if err != nil {
		return err
	}
	if e.Generation != gen {
		return fmt.Errorf("%w: index %d is generation %d, not %d", ErrNotFound, idx, e.Generation, gen)
	}
	e.InstanceCreated = true
	return nil
}

// SetEndpointName renames an object that has no upstream instance yet. The
// name is persisted per address and survives deletion.
func (s *Store) SetEndpointName(idx int, name []byte) error {
	n := strings.TrimSpace(string(name))
	if n == "" || strings.ContainsAny(n, "/+#") {
		return fmt.Errorf("%w: %q", ErrInvalidName, string(name))
	}

	s.mu.Lock()
	e, err := s.entry(idx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if e.InstanceCreated {
		s.mu.Unlock()
		return ErrInstanceCreated
	}
	changed := e.EndpointName != n
	e.EndpointName = n
	s.names[e.Address] = n
	addr := e.Address
	s.mu.Unlock()

	if !changed || s.repo == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	if err := s.repo.SaveName(ctx, addr, n); err != nil {
		return fmt.Errorf("gwobj: persist name for %s: %w", addr, err)
	}
	return nil
}

func (s *Store) EndpointName(idx int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entry(idx)
	if err != nil {
		return "", false
	}
	return e.EndpointName, true
}

// Get returns a snapshot of the object at idx.
func (s *Store) Get(idx int) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entry(idx)
	if err != nil {
		return Object{}, false
	}
	return e.Object, true
}

// List returns all objects ordered by index.
func (s *Store) List() []Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Object, 0, len(s.byAddr))
	for _, e := range s.objects {
		if e.used {
			out = append(out, e.Object)
		}
	}
	return out
}

// Blocked returns the blocklist in address order.
func (s *Store) Blocked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.blocked))
	for addr := range s.blocked {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Delete removes the object for addr and notifies agents.
func (s *Store) Delete(addr string) error {
	addr = normalize(addr)
	s.mu.Lock()
	idx, ok := s.byAddr[addr]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	gen := s.release(idx)
	agents := s.agentsLocked()
	s.mu.Unlock()

	s.logger.Info("gwobj: object deleted", "addr", addr, "idx", idx)
	notify(agents, idx, gen)
	return nil
}

// Block adds addr to the blocklist and deletes its object, if any.
func (s *Store) Block(ctx context.Context, addr string) error {
	addr = normalize(addr)
	if s.repo != nil {
		if err := s.repo.SetBlocked(ctx, addr, true); err != nil {
			return fmt.Errorf("gwobj: persist block for %s: %w", addr, err)
		}
	}

	s.mu.Lock()
	s.blocked[addr] = true
	s.mu.Unlock()
	s.logger.Info("gwobj: address blocked", "addr", addr)

	if err := s.Delete(addr); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func (s *Store) Unblock(ctx context.Context, addr string) error {
	addr = normalize(addr)
	if s.repo != nil {
		if err := s.repo.SetBlocked(ctx, addr, false); err != nil {
			return fmt.Errorf("gwobj: persist unblock for %s: %w", addr, err)
		}
	}
	s.mu.Lock()
	delete(s.blocked, addr)
	s.mu.Unlock()
	s.logger.Info("gwobj: address unblocked", "addr", addr)
	return nil
}

// Expire deletes every object whose deadline is not after now and returns
// the deleted indices.
func (s *Store) Expire(now time.Time) []int {
	s.mu.Lock()
	var expired []int
	var gens []uint64
	for idx := range s.objects {
		e := &s.objects[idx]
		if e.used && !e.ExpiresAt.After(now) {
			s.logger.Info("gwobj: object expired", "addr", e.Address, "idx", idx)
			gens = append(gens, s.release(idx))
			expired = append(expired, idx)
		}
	}
	agents := s.agentsLocked()
	s.mu.Unlock()

	for i, idx := range expired {
		notify(agents, idx, gens[i])
	}
	return expired
}

// Run expires objects every tick until ctx is canceled.
func (s *Store) Run(ctx context.Context, tick time.Duration) error {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.Expire(s.now())
		}
	}
}

func (s *Store) entry(idx int) (*entry, error) {
	if idx < 0 || idx >= len(s.objects) || !s.objects[idx].used {
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, idx)
	}
	return &s.objects[idx], nil
}

func (s *Store) release(idx int) uint64 {
	gen := s.objects[idx].Generation
	delete(s.byAddr, s.objects[idx].Address)
	s.objects[idx] = entry{}
	return gen
}

func (s *Store) agentsLocked() []Agent {
	return append([]Agent(nil), s.agents...)
}

func notify(agents []Agent, idx int, gen uint64) {
	for _, a := range agents {
		a(idx, gen)
	}
}

func normalize(addr string) string {
	return strings.ToUpper(strings.TrimSpace(addr))
}

func defaultEndpointName(addr string) string {
	return strings.ReplaceAll(addr, ":", "")
}
