package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/restaurant-qr/httpclient"
)

// DefaultPollInterval is how often an ACTIVE session is revalidated.
const DefaultPollInterval = 30 * time.Second

// Outcome is what Startup did with the stored session.
type Outcome int

const (
	OutcomeNoSession Outcome = iota
	// OutcomeRestored: valid, restored as ACTIVE.
	OutcomeRestored
	// OutcomeCompleted: restored read-only with status COMPLETED.
	OutcomeCompleted
	// OutcomeCleared: unusable, removed.
	OutcomeCleared
	// OutcomeProvisional: backend unreachable, kept as stored.
	OutcomeProvisional
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoSession:
		return "no-session"
	case OutcomeRestored:
		return "restored"
	case OutcomeCompleted:
		return "completed"
	case OutcomeCleared:
		return "cleared"
	case OutcomeProvisional:
		return "provisional"
	}
	return "unknown"
}

type ReconcilerOptions struct {
	Interval time.Duration
	Logger   logrus.FieldLogger
}

// Reconciler checks the stored session against the backend at startup and
// keeps an ACTIVE session in sync by polling.
type Reconciler struct {
	store    *Store
	backend  Backend
	interval time.Duration
	log      logrus.FieldLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReconciler(store *Store, backend Backend, opts ReconcilerOptions) *Reconciler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return &Reconciler{
		store:    store,
		backend:  backend,
		interval: opts.Interval,
		log:      opts.Logger,
	}
}

// Startup validates the stored session and restores, marks or clears it.
// The returned error is only set when local storage itself failed.
func (r *Reconciler) Startup(ctx context.Context) (Outcome, error) {
	stored, err := r.store.LoadStored(ctx)
	switch {
	case errors.Is(err, ErrNoSession):
		return OutcomeNoSession, nil
	case errors.Is(err, ErrCorruptSession):
		r.log.WithError(err).Warn("dropping unreadable stored session")
		return OutcomeCleared, r.store.ClearSession(ctx)
	case err != nil:
		return OutcomeNoSession, err
	}

	if !stored.Valid() {
		r.log.Warn("dropping incomplete stored session")
		return OutcomeCleared, r.store.ClearSession(ctx)
	}

	res, err := r.backend.Validate(ctx, stored.ID)
	if err != nil {
		if httpclient.IsTransient(err) {
			// Backend sedang bermasalah, session dipertahankan sementara
			r.log.WithError(err).Warn("session validation unavailable, keeping stored session")
			return OutcomeProvisional, r.store.Restore(ctx, stored)
		}
		r.log.WithError(err).Info("session validation failed, clearing")
		return OutcomeCleared, r.store.ClearSession(ctx)
	}

	return r.apply(ctx, stored, res)
}

func (r *Reconciler) apply(ctx context.Context, stored *Session, res ValidationResult) (Outcome, error) {
	entry := r.log.WithFields(logrus.Fields{
		"session_id": stored.ID,
		"verdict":    res.Kind.String(),
		"reason":     res.Reason,
	})

	switch res.Kind {
	case ValidationValid:
		if err := r.store.Restore(ctx, stored); err != nil {
			return OutcomeNoSession, err
		}
		if res.Status != stored.Status {
			if err := r.store.UpdateSessionStatus(ctx, res.Status); err != nil && !errors.Is(err, ErrStatusRegression) {
				return OutcomeRestored, err
			}
		}
		entry.Debug("session restored")
		return OutcomeRestored, nil

	case ValidationCompleted:
		if err := r.store.Restore(ctx, stored); err != nil {
			return OutcomeNoSession, err
		}
		if err := r.store.UpdateSessionStatus(ctx, StatusCompleted); err != nil {
			return OutcomeCompleted, err
		}
		entry.Info("session restored as completed")
		return OutcomeCompleted, nil

	default:
		entry.Info("session no longer usable, clearing")
		return OutcomeCleared, r.store.ClearSession(ctx)
	}
}

// Start begins polling while the current session is ACTIVE. It returns
// false when nothing was started: no ACTIVE session, or already polling.
// Polling stops by itself once the session turns terminal or is cleared
// or replaced.
func (r *Reconciler) Start(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return false
	}
	cur := r.store.Current()
	if cur == nil || cur.Status != StatusActive {
		return false
	}

	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	sessionID := cur.ID
	unsubscribe := r.store.Subscribe(func(s *Session) {
		if s == nil || s.ID != sessionID || s.Status != StatusActive {
			cancel()
		}
	})

	go r.loop(pollCtx, sessionID, unsubscribe, done)
	return true
}

// Polling reports whether the poll loop is running.
func (r *Reconciler) Polling() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// Stop ends polling and waits for the loop to exit. Safe to call when not
// polling.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (r *Reconciler) loop(ctx context.Context, sessionID int64, unsubscribe func(), done chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer func() {
		ticker.Stop()
		unsubscribe()
		r.mu.Lock()
		if r.done == done {
			r.cancel, r.done = nil, nil
		}
		r.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.poll(ctx, sessionID) {
				return
			}
		}
	}
}

// poll runs one validation round. It returns false when polling should end.
func (r *Reconciler) poll(ctx context.Context, sessionID int64) bool {
	// Ticker dan cancel bisa siap bersamaan, cek lagi sebelum request
	if ctx.Err() != nil {
		return false
	}
	cur := r.store.Current()
	if cur == nil || cur.ID != sessionID || cur.Status != StatusActive {
		return false
	}

	res, err := r.backend.Validate(ctx, sessionID)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		entry := r.log.WithError(err).WithField("session_id", sessionID)
		if httpclient.IsTransient(err) {
			entry.Debug("session poll failed, will retry")
		} else {
			entry.Warn("session poll rejected, will retry")
		}
		return true
	}

	switch res.Kind {
	case ValidationValid:
		if res.Status != cur.Status {
			if err := r.store.UpdateSessionStatus(ctx, res.Status); err != nil &&
				!errors.Is(err, ErrStatusRegression) && !errors.Is(err, ErrNoSession) {
				r.log.WithError(err).Warn("failed to apply polled status")
			}
		}
	case ValidationCompleted:
		if err := r.store.UpdateSessionStatus(ctx, StatusCompleted); err != nil && !errors.Is(err, ErrNoSession) {
			r.log.WithError(err).Warn("failed to mark session completed")
		}
	default:
		if err := r.store.ClearSession(ctx); err != nil {
			r.log.WithError(err).Warn("failed to clear session")
		}
	}

	cur = r.store.Current()
	return cur != nil && cur.ID == sessionID && cur.Status == StatusActive
}
