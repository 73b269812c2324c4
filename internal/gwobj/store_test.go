package gwobj

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudpico-sensorbridge/internal/registry"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, opts Options) (*Store, *clock) {
	t.Helper()
	if opts.Capacity == 0 {
		opts.Capacity = 2
	}
	if opts.Lifetime == 0 {
		opts.Lifetime = time.Minute
	}
	s, err := New(opts)
	require.NoError(t, err)
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s.now = c.Now
	return s, c
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{Capacity: 0, Lifetime: time.Second})
	assert.Error(t, err)
	_, err = New(Options{Capacity: 1})
	assert.Error(t, err)
}

func TestCreateAndLookup(t *testing.T) {
	s, _ := newTestStore(t, Options{})

	idx, err := s.Create("aa:aa:aa:aa:aa:01")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	got, ok := s.Lookup("AA:AA:AA:AA:AA:01")
	require.True(t, ok)
	assert.Equal(t, idx, got)

	again, err := s.Create("AA:AA:AA:AA:AA:01")
	require.NoError(t, err)
	assert.Equal(t, idx, again)

	name, ok := s.EndpointName(idx)
	require.True(t, ok)
	assert.Equal(t, "AAAAAAAAAA01", name)
}

func TestCreateErrors(t *testing.T) {
	s, _ := newTestStore(t, Options{Capacity: 1, Blocked: []string{"aa:aa:aa:aa:aa:09"}})

	_, err := s.Create("AA:AA:AA:AA:AA:09")
	require.ErrorIs(t, err, ErrBlocked)
	assert.ErrorIs(t, err, registry.ErrBlockedIdentity)
	assert.ErrorIs(t, err, registry.ErrPermission)

	_, err = s.Create("AA:AA:AA:AA:AA:01")
	require.NoError(t, err)
	_, err = s.Create("AA:AA:AA:AA:AA:02")
	require.ErrorIs(t, err, ErrNoMemory)
	assert.ErrorIs(t, err, registry.ErrCapacityExhausted)
}

func TestPresetName(t *testing.T) {
	s, _ := newTestStore(t, Options{Names: map[string]string{"aa:aa:aa:aa:aa:01": "tank-north"}})

	idx, err := s.Create("AA:AA:AA:AA:AA:01")
	require.NoError(t, err)
	name, _ := s.EndpointName(idx)
	assert.Equal(t, "tank-north", name)
}

func TestSetEndpointName(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	idx, err := s.Create("AA:AA:AA:AA:AA:01")
	require.NoError(t, err)

	require.NoError(t, s.SetEndpointName(idx, []byte("DTM-1")))
	name, _ := s.EndpointName(idx)
	assert.Equal(t, "DTM-1", name)

	assert.ErrorIs(t, s.SetEndpointName(idx, []byte("  ")), ErrInvalidName)
	assert.ErrorIs(t, s.SetEndpointName(idx, []byte("a/b")), ErrInvalidName)
	assert.ErrorIs(t, s.SetEndpointName(5, []byte("x")), ErrNotFound)

	gen, _ := s.Generation(idx)
	assert.ErrorIs(t, s.SetInstanceCreated(idx, gen+1), ErrNotFound)
	assert.False(t, s.InstanceCreated(idx))
	require.NoError(t, s.SetInstanceCreated(idx, gen))
	assert.True(t, s.InstanceCreated(idx))
	assert.ErrorIs(t, s.SetEndpointName(idx, []byte("DTM-2")), ErrInstanceCreated)
	name, _ = s.EndpointName(idx)
	assert.Equal(t, "DTM-1", name)
}

func TestNameSurvivesDeletion(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	idx, err := s.Create("AA:AA:AA:AA:AA:01")
	require.NoError(t, err)
	require.NoError(t, s.SetEndpointName(idx, []byte("DTM-1")))
	require.NoError(t, s.Delete("AA:AA:AA:AA:AA:01"))

	idx, err = s.Create("AA:AA:AA:AA:AA:01")
	require.NoError(t, err)
	name, _ := s.EndpointName(idx)
	assert.Equal(t, "DTM-1", name)
	assert.False(t, s.InstanceCreated(idx))
}

func TestDeleteNotifiesAgents(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	var removed []int
	s.RegisterAgent(func(idx int, _ uint64) {
		// agents run unlocked and may call back in
		_, ok := s.Get(idx)
		assert.False(t, ok)
		removed = append(removed, idx)
	})

	_, err := s.Create("AA:AA:AA:AA:AA:01")
	require.NoError(t, err)
	idx, err := s.Create("AA:AA:AA:AA:AA:02")
	require.NoError(t, err)

	require.NoError(t, s.Delete("AA:AA:AA:AA:AA:02"))
	assert.Equal(t, []int{idx}, removed)
	assert.ErrorIs(t, s.Delete("AA:AA:AA:AA:AA:02"), ErrNotFound)
	assert.Len(t, s.List(), 1)
}

func TestGenerationChangesOnReuse(t *testing.T) {
	s, _ := newTestStore(t, Options{Capacity: 1})
	var gens []uint64
	s.RegisterAgent(func(_ int, gen uint64) { gens = append(gens, gen) })

	idx, err := s.Create("AA:AA:AA:AA:AA:01")
	require.NoError(t, err)
	first, ok := s.Generation(idx)
	require.True(t, ok)

	require.NoError(t, s.Delete("AA:AA:AA:AA:AA:01"))
	_, ok = s.Generation(idx)
	assert.False(t, ok)

	again, err := s.Create("AA:AA:AA:AA:AA:02")
	require.NoError(t, err)
	assert.Equal(t, idx, again)
	second, _ := s.Generation(again)
	assert.NotEqual(t, first, second)
	assert.Equal(t, []uint64{first}, gens)

	obj, _ := s.Get(again)
	assert.Equal(t, second, obj.Generation)
}

func TestExpire(t *testing.T) {
	s, c := newTestStore(t, Options{Lifetime: time.Minute})
	var removed []int
	s.RegisterAgent(func(idx int, _ uint64) { removed = append(removed, idx) })

	a, err := s.Create("AA:AA:AA:AA:AA:01")
	require.NoError(t, err)
	b, err := s.Create("AA:AA:AA:AA:AA:02")
	require.NoError(t, err)

	c.Advance(30 * time.Second)
	require.NoError(t, s.SetLifetime(b, time.Minute))

	c.Advance(30 * time.Second)
	assert.Equal(t, []int{a}, s.Expire(c.Now()))
	assert.Equal(t, []int{a}, removed)

	_, ok := s.Lookup("AA:AA:AA:AA:AA:01")
	assert.False(t, ok)
	_, ok = s.Lookup("AA:AA:AA:AA:AA:02")
	assert.True(t, ok)

	assert.ErrorIs(t, s.SetLifetime(a, time.Minute), ErrNotFound)
	assert.Error(t, s.SetLifetime(b, 0))
}

func TestRunExpires(t *testing.T) {
	s, err := New(Options{Capacity: 1, Lifetime: 20 * time.Millisecond})
	require.NoError(t, err)
	removed := make(chan int, 1)
	s.RegisterAgent(func(idx int, _ uint64) { removed <- idx })

	_, err = s.Create("AA:AA:AA:AA:AA:01")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 5*time.Millisecond) }()

	select {
	case idx := <-removed:
		assert.Equal(t, 0, idx)
	case <-time.After(2 * time.Second):
		t.Fatal("object did not expire")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

type memRepo struct {
	records map[string]Record
	err     error
}

func (m *memRepo) List(ctx context.Context) ([]Record, error) {
	var out []Record
	for _, r := range m.records {
		out = append(out, r)
	}
	return out, m.err
}

func (m *memRepo) SaveName(ctx context.Context, address, name string) error {
	if m.err != nil {
		return m.err
	}
	r := m.records[address]
	r.Address, r.EndpointName = address, name
	m.records[address] = r
	return nil
}

func (m *memRepo) SetBlocked(ctx context.Context, address string, blocked bool) error {
	if m.err != nil {
		return m.err
	}
	r := m.records[address]
	r.Address, r.Blocked = address, blocked
	m.records[address] = r
	return nil
}

func TestBlockPersistsAndDeletes(t *testing.T) {
	repo := &memRepo{records: map[string]Record{}}
	s, _ := newTestStore(t, Options{Repository: repo})
	var removed []int
	s.RegisterAgent(func(idx int, _ uint64) { removed = append(removed, idx) })

	idx, err := s.Create("AA:AA:AA:AA:AA:01")
	require.NoError(t, err)

	require.NoError(t, s.Block(context.Background(), "aa:aa:aa:aa:aa:01"))
	assert.Equal(t, []int{idx}, removed)
	assert.True(t, repo.records["AA:AA:AA:AA:AA:01"].Blocked)
	assert.Equal(t, []string{"AA:AA:AA:AA:AA:01"}, s.Blocked())

	_, err = s.Create("AA:AA:AA:AA:AA:01")
	assert.ErrorIs(t, err, ErrBlocked)

	require.NoError(t, s.Unblock(context.Background(), "AA:AA:AA:AA:AA:01"))
	assert.False(t, repo.records["AA:AA:AA:AA:AA:01"].Blocked)
	_, err = s.Create("AA:AA:AA:AA:AA:01")
	assert.NoError(t, err)
}

func TestBlockRepositoryFailure(t *testing.T) {
	repo := &memRepo{records: map[string]Record{}, err: errors.New("disk full")}
	s, _ := newTestStore(t, Options{Repository: repo})

	require.Error(t, s.Block(context.Background(), "AA:AA:AA:AA:AA:01"))
	assert.Empty(t, s.Blocked())
}

func TestLoadFromRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupTestDB(t))
	require.NoError(t, repo.SaveName(ctx, "AA:AA:AA:AA:AA:01", "tank"))
	require.NoError(t, repo.SetBlocked(ctx, "AA:AA:AA:AA:AA:02", true))

	s, _ := newTestStore(t, Options{Repository: repo})
	require.NoError(t, s.Load(ctx))

	idx, err := s.Create("AA:AA:AA:AA:AA:01")
	require.NoError(t, err)
	name, _ := s.EndpointName(idx)
	assert.Equal(t, "tank", name)

	_, err = s.Create("AA:AA:AA:AA:AA:02")
	assert.ErrorIs(t, err, ErrBlocked)

	require.NoError(t, s.SetEndpointName(idx, []byte("tank-south")))
	records, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tank-south", records[0].EndpointName)
}
