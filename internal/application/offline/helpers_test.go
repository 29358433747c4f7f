package offline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/erp/client/internal/domain/records"
	"github.com/erp/client/internal/domain/offline"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeCustomerAPI stands in for the customers REST endpoints
type fakeCustomerAPI struct {
	mu        sync.Mutex
	nextID    int64
	items     []records.Customer
	calls     []string
	keys      []string
	createErr error
	updateErr error
	deleteErr error
	listErr   error
	omitID    bool
}

func newFakeCustomerAPI(nextID int64, items ...records.Customer) *fakeCustomerAPI {
	return &fakeCustomerAPI{nextID: nextID, items: items}
}

func (f *fakeCustomerAPI) record(ctx context.Context, call string) {
	f.calls = append(f.calls, call)
	if key := offline.IdempotencyKey(ctx); key != "" {
		f.keys = append(f.keys, key)
	}
}

func (f *fakeCustomerAPI) List(ctx context.Context) ([]records.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ctx, "list")
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]records.Customer(nil), f.items...), nil
}

func (f *fakeCustomerAPI) Create(ctx context.Context, c records.Customer) (records.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ctx, "create:"+c.Name)
	if f.createErr != nil {
		return records.Customer{}, f.createErr
	}
	f.nextID++
	c.ID = offline.IntID(f.nextID)
	f.items = append(f.items, c)
	if f.omitID {
		c.ID = ""
	}
	return c, nil
}

func (f *fakeCustomerAPI) Update(ctx context.Context, id offline.ID, c records.Customer) (records.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ctx, "update:"+id.String())
	if f.updateErr != nil {
		return records.Customer{}, f.updateErr
	}
	c.ID = id
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i] = c
		}
	}
	return c, nil
}

func (f *fakeCustomerAPI) Delete(ctx context.Context, id offline.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ctx, "delete:"+id.String())
	return f.deleteErr
}

func (f *fakeCustomerAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCustomerAPI) setCreateErr(err error) {
	f.mu.Lock()
	f.createErr = err
	f.mu.Unlock()
}

// memSnapshotStore is an in-memory SnapshotStore that can be told to fail
type memSnapshotStore struct {
	mu   sync.Mutex
	data map[string][]byte
	fail error
	puts int
}

func newMemSnapshotStore() *memSnapshotStore {
	return &memSnapshotStore{data: make(map[string][]byte)}
}

func (s *memSnapshotStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, offline.ErrNotFound
	}
	return v, nil
}

func (s *memSnapshotStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.fail != nil {
		return s.fail
	}
	s.data[key] = append([]byte(nil), data...)
	return nil
}

func (s *memSnapshotStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// memLedgerStore is an in-memory LedgerStore
type memLedgerStore struct {
	mu   sync.Mutex
	seq  int64
	rows map[uuid.UUID]*offline.PendingChange
}

func newMemLedgerStore() *memLedgerStore {
	return &memLedgerStore{rows: make(map[uuid.UUID]*offline.PendingChange)}
}

func (s *memLedgerStore) Append(_ context.Context, c *offline.PendingChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	c.Seq = s.seq
	s.rows[c.ID] = c.Clone()
	return nil
}

func (s *memLedgerStore) Update(_ context.Context, c *offline.PendingChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[c.ID]; !ok {
		return offline.ErrNotFound
	}
	s.rows[c.ID] = c.Clone()
	return nil
}

func (s *memLedgerStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *memLedgerStore) List(context.Context) ([]*offline.PendingChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*offline.PendingChange, 0, len(s.rows))
	for _, c := range s.rows {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

var errConnRefused = offline.NewNetworkError("POST /customers", errors.New("connection refused"))

func permsWith(mod func(p *offline.OfflinePermissions)) StaticPermissions {
	p := offline.DefaultOfflinePermissions()
	if mod != nil {
		mod(&p)
	}
	return StaticPermissions(p)
}

type testEngine struct {
	engine    *Engine
	customers *EntityStore[records.Customer]
	api       *fakeCustomerAPI
	clock     *manualClock
}

func newTestEngine(t *testing.T, perms PermissionProvider, api *fakeCustomerAPI, opts ...Option) *testEngine {
	t.Helper()
	clock := newManualClock()
	opts = append([]Option{WithClock(clock)}, opts...)
	e := NewEngine(nil, nil, perms, opts...)
	store, err := Register[records.Customer](e, records.CustomerEntity, api)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() {
		_ = e.Close(context.Background())
	})
	return &testEngine{engine: e, customers: store, api: api, clock: clock}
}

func ids(items []records.Customer) []offline.ID {
	out := make([]offline.ID, len(items))
	for i, c := range items {
		out[i] = c.ID
	}
	return out
}
