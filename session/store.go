package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/restaurant-qr/httpclient"
	"github.com/yeremiapane/restaurant-qr/storage"
)

const genericCreateError = "Failed to create session. Please scan the QR code again."

type StoreOptions struct {
	// Tagger is told about session changes, usually the *httpclient.Client.
	Tagger Tagger
	Logger logrus.FieldLogger
	Now    func() time.Time
}

// Store is the single owner of the current session. Every mutation goes
// through it: durable slot first, then memory, then subscribers.
//
// Subscribers are called synchronously while the mutation is in progress
// and must not call Store mutators from inside the callback.
type Store struct {
	backend Backend
	slots   storage.Storage
	tagger  Tagger
	log     logrus.FieldLogger
	now     func() time.Time

	// writeMu serialises mutators; mu guards current for readers.
	writeMu sync.Mutex
	mu      sync.RWMutex
	current *Session

	subMu   sync.Mutex
	subs    []subscriber
	nextSub int
}

type subscriber struct {
	id int
	fn func(*Session)
}

func NewStore(backend Backend, slots storage.Storage, opts StoreOptions) *Store {
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		backend: backend,
		slots:   slots,
		tagger:  opts.Tagger,
		log:     opts.Logger,
		now:     opts.Now,
	}
}

// Current returns a copy of the current session, or nil.
func (s *Store) Current() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// IsAuthenticated reports whether the customer holds an ACTIVE session.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil && s.current.Status == StatusActive
}

// Subscribe registers fn for every session change; nil means cleared. The
// returned function unsubscribes and may be called more than once.
func (s *Store) Subscribe(fn func(*Session)) (cancel func()) {
	s.subMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) notify(current *Session) {
	s.subMu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(current.Clone())
	}
}

func (s *Store) setCurrent(sess *Session) {
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
}

func (s *Store) persist(ctx context.Context, sess *Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.slots.Set(ctx, KeySession, string(b)); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// LoadStored reads the persisted session without touching memory. It
// returns ErrNoSession when the slot is empty and ErrCorruptSession when it
// cannot be decoded.
func (s *Store) LoadStored(ctx context.Context) (*Session, error) {
	raw, err := s.slots.Get(ctx, KeySession)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	return &sess, nil
}

// previousID is the id of the session being replaced, from memory or from
// the slot when nothing was restored yet. Zero means unknown.
func (s *Store) previousID(ctx context.Context) int64 {
	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	if cur != nil {
		return cur.ID
	}
	stored, err := s.LoadStored(ctx)
	if err != nil {
		return 0
	}
	return stored.ID
}

func (s *Store) clearDependents(ctx context.Context) error {
	if err := s.slots.Remove(ctx, KeyLoyaltyCustomer); err != nil {
		return fmt.Errorf("clear loyalty customer: %w", err)
	}
	if err := storage.RemovePrefix(ctx, s.slots, ReviewDraftPrefix); err != nil {
		return fmt.Errorf("clear review drafts: %w", err)
	}
	return nil
}

// CreateSession exchanges the QR parameters for a session and makes it
// current. On failure nothing changes and the error carries the backend
// message (or a generic one).
func (s *Store) CreateSession(ctx context.Context, tableID int64, token string) (*Session, error) {
	created, err := s.backend.Scan(ctx, tableID, token)
	if err != nil {
		if msg, ok := httpclient.Message(err); ok {
			return nil, &CreateError{Message: msg, Err: err}
		}
		return nil, &CreateError{Message: genericCreateError, Err: err}
	}
	if created.Status == "" {
		created.Status = StatusActive
	}
	if created.TableID == 0 {
		created.TableID = tableID
	}
	if !created.Valid() {
		return nil, &CreateError{Message: genericCreateError, Err: fmt.Errorf("backend returned an incomplete session %+v", created)}
	}
	created.CreatedAt = s.now()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Session baru menggantikan yang lama, data turunan ikut dibuang
	if prev := s.previousID(ctx); prev != created.ID {
		if err := s.clearDependents(ctx); err != nil {
			return nil, err
		}
	}
	if err := s.persist(ctx, created); err != nil {
		return nil, err
	}
	s.setCurrent(created)
	if s.tagger != nil {
		s.tagger.AttachSession(created.ID)
	}

	s.log.WithFields(logrus.Fields{
		"session_id": created.ID,
		"table_id":   created.TableID,
	}).Info("QR session created")
	s.notify(created)
	return created.Clone(), nil
}

// ClearSession forgets the current session.
func (s *Store) ClearSession(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.clearLocked(ctx)
}

func (s *Store) clearLocked(ctx context.Context) error {
	err := s.slots.Remove(ctx, KeySession)
	// Memory tetap di-reset walau storage gagal, lebih aman tanpa session
	s.setCurrent(nil)
	if s.tagger != nil {
		s.tagger.DetachSession()
	}
	s.notify(nil)
	if err != nil {
		return fmt.Errorf("remove stored session: %w", err)
	}
	s.log.Info("QR session cleared")
	return nil
}

// UpdateSessionStatus patches the status only. Setting the current status
// again is a no-op; a terminal session never returns to ACTIVE
// (ErrStatusRegression) and keeps its first terminal status.
func (s *Store) UpdateSessionStatus(ctx context.Context, status Status) error {
	if !status.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	cur := s.current.Clone()
	s.mu.RUnlock()

	switch {
	case cur == nil:
		return ErrNoSession
	case cur.Status == status:
		return nil
	case cur.Status.Terminal() && status == StatusActive:
		return ErrStatusRegression
	case cur.Status.Terminal():
		return nil
	}

	cur.Status = status
	if err := s.persist(ctx, cur); err != nil {
		return err
	}
	s.setCurrent(cur)
	s.log.WithFields(logrus.Fields{
		"session_id": cur.ID,
		"status":     status,
	}).Info("QR session status updated")
	s.notify(cur)
	return nil
}

// RefreshSession refetches the session. Any failure clears the session.
func (s *Store) RefreshSession(ctx context.Context) error {
	cur := s.Current()
	if cur == nil {
		return ErrNoSession
	}

	fetched, err := s.backend.Fetch(ctx, cur.ID)
	if err == nil && (fetched == nil || fetched.ID != cur.ID || !fetched.Valid()) {
		err = fmt.Errorf("backend returned a different or incomplete session")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err != nil {
		if clearErr := s.clearLocked(ctx); clearErr != nil {
			s.log.WithError(clearErr).Warn("failed to clear session after refresh error")
		}
		return fmt.Errorf("refresh session %d: %w", cur.ID, err)
	}

	s.mu.RLock()
	latest := s.current.Clone()
	s.mu.RUnlock()
	if latest == nil || latest.ID != cur.ID {
		// Session sudah diganti selama request berjalan
		return nil
	}

	fetched.CreatedAt = latest.CreatedAt
	if latest.Status.Terminal() {
		fetched.Status = latest.Status
	}
	if err := s.persist(ctx, fetched); err != nil {
		if clearErr := s.clearLocked(ctx); clearErr != nil {
			s.log.WithError(clearErr).Warn("failed to clear session after refresh error")
		}
		return err
	}
	s.setCurrent(fetched)
	s.notify(fetched)
	return nil
}

// Restore makes sess current without a network call, used after a
// successful validation. A terminal status already held for the same id is
// kept.
func (s *Store) Restore(ctx context.Context, sess *Session) error {
	if !sess.Valid() {
		return fmt.Errorf("%w: missing id, table or status", ErrCorruptSession)
	}
	restored := sess.Clone()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	if cur != nil && cur.ID == restored.ID && cur.Status.Terminal() && !restored.Status.Terminal() {
		restored.Status = cur.Status
	}

	if err := s.persist(ctx, restored); err != nil {
		return err
	}
	s.setCurrent(restored)
	if s.tagger != nil {
		s.tagger.AttachSession(restored.ID)
	}
	s.notify(restored)
	return nil
}

// RegisterLoyalty registers (or looks up) a loyalty member and binds it to
// the current session.
func (s *Store) RegisterLoyalty(ctx context.Context, name, phone string) (*LoyaltyCustomer, error) {
	if s.Current() == nil {
		return nil, ErrNoSession
	}
	customer, err := s.backend.RegisterLoyalty(ctx, name, phone)
	if err != nil {
		return nil, err
	}
	if err := s.BindCustomer(ctx, *customer); err != nil {
		return nil, err
	}
	return customer, nil
}

// BindCustomer links customer to the current session and keeps the record
// in the loyalty slot.
func (s *Store) BindCustomer(ctx context.Context, customer LoyaltyCustomer) error {
	cur := s.Current()
	if cur == nil {
		return ErrNoSession
	}
	if _, err := s.backend.BindCustomer(ctx, cur.ID, customer.ID); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	latest := s.current.Clone()
	s.mu.RUnlock()
	if latest == nil || latest.ID != cur.ID {
		return ErrNoSession
	}

	id := customer.ID
	latest.CustomerID = &id
	b, err := json.Marshal(customer)
	if err != nil {
		return fmt.Errorf("encode loyalty customer: %w", err)
	}
	if err := s.slots.Set(ctx, KeyLoyaltyCustomer, string(b)); err != nil {
		return fmt.Errorf("persist loyalty customer: %w", err)
	}
	if err := s.persist(ctx, latest); err != nil {
		return err
	}
	s.setCurrent(latest)
	s.notify(latest)
	return nil
}

// LoyaltyCustomer returns the stored loyalty record, or nil.
func (s *Store) LoyaltyCustomer(ctx context.Context) (*LoyaltyCustomer, error) {
	raw, err := s.slots.Get(ctx, KeyLoyaltyCustomer)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var c LoyaltyCustomer
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decode loyalty customer: %w", err)
	}
	return &c, nil
}

// SaveReviewDraft keeps a review draft for the current session.
func (s *Store) SaveReviewDraft(ctx context.Context, draft json.RawMessage) error {
	cur := s.Current()
	if cur == nil {
		return ErrNoSession
	}
	if !json.Valid(draft) {
		return errors.New("review draft must be valid JSON")
	}
	return s.slots.Set(ctx, ReviewDraftKey(cur.ID), string(draft))
}

// ReviewDraft returns the current session's draft, or nil.
func (s *Store) ReviewDraft(ctx context.Context) (json.RawMessage, error) {
	cur := s.Current()
	if cur == nil {
		return nil, ErrNoSession
	}
	raw, err := s.slots.Get(ctx, ReviewDraftKey(cur.ID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

// CreateError is returned by CreateSession. Message is safe to show.
type CreateError struct {
	Message string
	Err     error
}

func (e *CreateError) Error() string {
	return e.Message
}

func (e *CreateError) Unwrap() error {
	return e.Err
}
