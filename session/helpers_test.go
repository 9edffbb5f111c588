package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/restaurant-qr/storage"
)

type fakeBackend struct {
	mu sync.Mutex

	scanFn     func(tableID int64, token string) (*Session, error)
	fetchFn    func(id int64) (*Session, error)
	validateFn func(id int64) (ValidationResult, error)
	bindFn     func(sessionID, customerID int64) (*Session, error)

	scans     int32
	validates int32
}

func (f *fakeBackend) Scan(_ context.Context, tableID int64, token string) (*Session, error) {
	atomic.AddInt32(&f.scans, 1)
	f.mu.Lock()
	fn := f.scanFn
	f.mu.Unlock()
	if fn == nil {
		return &Session{ID: 1, TableID: tableID, TableNumber: "T1", Status: StatusActive}, nil
	}
	return fn(tableID, token)
}

func (f *fakeBackend) Fetch(_ context.Context, id int64) (*Session, error) {
	f.mu.Lock()
	fn := f.fetchFn
	f.mu.Unlock()
	return fn(id)
}

func (f *fakeBackend) Validate(_ context.Context, id int64) (ValidationResult, error) {
	atomic.AddInt32(&f.validates, 1)
	f.mu.Lock()
	fn := f.validateFn
	f.mu.Unlock()
	if fn == nil {
		return ValidationResult{Kind: ValidationValid, Status: StatusActive}, nil
	}
	return fn(id)
}

func (f *fakeBackend) BindCustomer(_ context.Context, sessionID, customerID int64) (*Session, error) {
	if f.bindFn != nil {
		return f.bindFn(sessionID, customerID)
	}
	cid := customerID
	return &Session{ID: sessionID, CustomerID: &cid}, nil
}

func (f *fakeBackend) RegisterLoyalty(_ context.Context, name, phone string) (*LoyaltyCustomer, error) {
	return &LoyaltyCustomer{ID: 7, Name: name, Phone: phone}, nil
}

func (f *fakeBackend) setValidate(fn func(id int64) (ValidationResult, error)) {
	f.mu.Lock()
	f.validateFn = fn
	f.mu.Unlock()
}

func (f *fakeBackend) scanCount() int {
	return int(atomic.LoadInt32(&f.scans))
}

func (f *fakeBackend) validateCount() int {
	return int(atomic.LoadInt32(&f.validates))
}

type fakeTagger struct {
	mu       sync.Mutex
	attached int64
}

func (t *fakeTagger) AttachSession(id int64) {
	t.mu.Lock()
	t.attached = id
	t.mu.Unlock()
}

func (t *fakeTagger) DetachSession() {
	t.mu.Lock()
	t.attached = 0
	t.mu.Unlock()
}

func (t *fakeTagger) current() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attached
}

func newTestStore(t *testing.T, backend Backend) (*Store, *storage.MemoryStorage, *fakeTagger) {
	t.Helper()
	slots := storage.NewMemoryStorage()
	tagger := &fakeTagger{}
	return NewStore(backend, slots, StoreOptions{Tagger: tagger}), slots, tagger
}

func seedSession(t *testing.T, store *Store, id int64, status Status) {
	t.Helper()
	require.NoError(t, store.Restore(context.Background(), &Session{
		ID:          id,
		TableID:     12,
		TableNumber: "12",
		Status:      status,
	}))
}
