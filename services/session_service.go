package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yeremiapane/restaurant-qr/models"
	"github.com/yeremiapane/restaurant-qr/utils"
	"gorm.io/gorm"
)

// Validation reasons, shared with the client.
const (
	ReasonNotFound      = "SESSION_NOT_FOUND"
	ReasonCompleted     = "SESSION_COMPLETED"
	ReasonExpired       = "SESSION_EXPIRED"
	ReasonTableInactive = "TABLE_INACTIVE"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionClosed    = errors.New("session not found or already closed")
	ErrTableUnavailable = errors.New("table not found or inactive")
	ErrInvalidToken     = errors.New("invalid QR session token")
	ErrCustomerNotFound = errors.New("customer not found")
)

// DefaultSessionDuration is how long a fresh session stays ACTIVE.
const DefaultSessionDuration = 24 * time.Hour

// Validation is the verdict of ValidateSession.
type Validation struct {
	Valid       bool
	Reason      string
	Message     string
	ShouldClear bool
	Session     *models.SessionView
}

type SessionOptions struct {
	TokenSecret string
	Duration    time.Duration
	Notifier    *Notifier
	Metrics     *Metrics
}

// SessionService owns the QR session lifecycle on the server.
type SessionService struct {
	db          *gorm.DB
	notifier    *Notifier
	metrics     *Metrics
	tokenSecret string
	duration    time.Duration
	now         func() time.Time
}

func NewSessionService(db *gorm.DB, opts SessionOptions) *SessionService {
	if opts.Duration <= 0 {
		opts.Duration = DefaultSessionDuration
	}
	return &SessionService{
		db:          db,
		notifier:    opts.Notifier,
		metrics:     opts.Metrics,
		tokenSecret: opts.TokenSecret,
		duration:    opts.Duration,
		now:         time.Now,
	}
}

// TokenSecret returns the secret used to sign table QR tokens.
func (s *SessionService) TokenSecret() string {
	return s.tokenSecret
}

// StartSession opens a session for a scanned table, or returns the table's
// session that is already ACTIVE. A customerID given on the scan is bound to
// a reused session that has no customer yet.
func (s *SessionService) StartSession(ctx context.Context, tableID uint, token string, customerID *uint) (*models.QRSession, bool, error) {
	db := s.db.WithContext(ctx)

	var table models.Table
	if err := db.Where("id = ? AND is_active = ?", tableID, true).First(&table).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrTableUnavailable
		}
		return nil, false, fmt.Errorf("load table: %w", err)
	}

	if !utils.VerifyTableToken(s.tokenSecret, tableID, token) {
		return nil, false, ErrInvalidToken
	}

	var (
		session models.QRSession
		reused  bool
	)
	err := db.Transaction(func(tx *gorm.DB) error {
		// Cek meja sudah punya session aktif atau belum
		err := tx.Preload("Table").
			Where("table_id = ? AND status = ?", tableID, models.SessionActive).
			First(&session).Error
		if err == nil {
			reused = true
			// Customer loyalty dari scan ikut diikat kalau session belum punya
			if customerID != nil && session.CustomerID == nil {
				if err := tx.Model(&session).Update("customer_id", *customerID).Error; err != nil {
					return err
				}
				session.CustomerID = customerID
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		expiredAt := s.now().Add(s.duration)
		session = models.QRSession{
			TableID:    tableID,
			CustomerID: customerID,
			SessionKey: token,
			Status:     models.SessionActive,
			ExpiredAt:  &expiredAt,
		}
		if err := tx.Create(&session).Error; err != nil {
			return err
		}
		session.Table = table

		if table.Status != models.TableOccupied {
			return tx.Model(&table).Update("status", models.TableOccupied).Error
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("start session: %w", err)
	}

	s.metrics.sessionOpened(reused)
	utils.InfoLogger.Printf("QR session %d active on table %s", session.ID, table.TableNumber)
	return &session, reused, nil
}

// GetSession loads a session with its table.
func (s *SessionService) GetSession(ctx context.Context, id uint) (*models.QRSession, error) {
	var session models.QRSession
	err := s.db.WithContext(ctx).Preload("Table").First(&session, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", id, err)
	}
	return &session, nil
}

// ValidateSession decides whether a client may keep using a stored session.
// The returned error is reserved for storage failures.
func (s *SessionService) ValidateSession(ctx context.Context, id uint) (*Validation, error) {
	session, err := s.GetSession(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		s.metrics.validation(ReasonNotFound)
		return &Validation{Reason: ReasonNotFound, Message: "Session does not exist", ShouldClear: true}, nil
	}
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case models.SessionActive:
	case models.SessionExpired:
		s.metrics.validation(ReasonExpired)
		return &Validation{Reason: ReasonExpired, Message: "Session has expired", ShouldClear: true}, nil
	default:
		// Bills and reviews stay viewable after payment
		s.metrics.validation(ReasonCompleted)
		return &Validation{Reason: ReasonCompleted, Message: "Session has ended (bill settled)", ShouldClear: false}, nil
	}

	if !session.Table.IsActive {
		s.metrics.validation(ReasonTableInactive)
		return &Validation{Reason: ReasonTableInactive, Message: "Table is no longer active", ShouldClear: true}, nil
	}

	if session.ExpiredAt != nil && s.now().After(*session.ExpiredAt) {
		if _, err := s.transition(ctx, session, models.SessionExpired); err != nil {
			return nil, err
		}
		s.metrics.validation(ReasonExpired)
		return &Validation{Reason: ReasonExpired, Message: "Session has expired", ShouldClear: true}, nil
	}

	s.metrics.validation("VALID")
	view := session.View()
	return &Validation{Valid: true, Session: &view}, nil
}

// transition moves an ACTIVE session to a terminal status. It reports false
// when the session had already left ACTIVE.
func (s *SessionService) transition(ctx context.Context, session *models.QRSession, status string) (bool, error) {
	now := s.now()
	updates := map[string]interface{}{"status": status}
	// completed_at hanya untuk session yang benar-benar selesai, bukan expired
	if status == models.SessionCompleted {
		updates["completed_at"] = now
	}
	res := s.db.WithContext(ctx).Model(&models.QRSession{}).
		Where("id = ? AND status = ?", session.ID, models.SessionActive).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("update session %d: %w", session.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	session.Status = status
	if status == models.SessionCompleted {
		session.CompletedAt = &now
	}

	// Meja kosong lagi => dirty, menunggu dibersihkan
	if err := s.db.WithContext(ctx).Model(&models.Table{}).
		Where("id = ?", session.TableID).
		Update("status", models.TableDirty).Error; err != nil {
		utils.ErrorLogger.Printf("Failed to mark table %d dirty: %v", session.TableID, err)
	}
	s.metrics.sessionClosed(status)
	return true, nil
}

// CloseSession ends a session from the staff side and notifies the table.
func (s *SessionService) CloseSession(ctx context.Context, id uint) (*models.QRSession, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := s.transition(ctx, session, models.SessionCompleted)
	if err != nil {
		return nil, err
	}
	if changed {
		s.notifier.NotifySessionEnded(session.View())
		utils.InfoLogger.Printf("Emitted session_ended for session %d", session.ID)
	}
	return session, nil
}

// MarkPaid completes a session after the bill is settled and pushes
// session_paid to the table.
func (s *SessionService) MarkPaid(ctx context.Context, id uint, total float64) (*models.QRSession, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := s.transition(ctx, session, models.SessionCompleted)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, ErrSessionClosed
	}
	s.notifier.NotifySessionPaid(session.View(), total, s.now().UTC())
	utils.InfoLogger.Printf("Session %d paid (total %.2f)", session.ID, total)
	return session, nil
}

// BindCustomer links a loyalty customer to an ACTIVE session.
func (s *SessionService) BindCustomer(ctx context.Context, id, customerID uint) (*models.QRSession, error) {
	db := s.db.WithContext(ctx)

	var customer models.Customer
	if err := db.First(&customer, customerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("load customer: %w", err)
	}

	res := db.Model(&models.QRSession{}).
		Where("id = ? AND status = ?", id, models.SessionActive).
		Update("customer_id", customerID)
	if res.Error != nil {
		return nil, fmt.Errorf("bind customer: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrSessionClosed
	}
	return s.GetSession(ctx, id)
}

// ExpireOverdue marks every ACTIVE session past its expiry as EXPIRED and
// notifies the tables. It returns how many sessions expired.
func (s *SessionService) ExpireOverdue(ctx context.Context) (int, error) {
	var overdue []models.QRSession
	err := s.db.WithContext(ctx).Preload("Table").
		Where("status = ? AND expired_at IS NOT NULL AND expired_at < ?", models.SessionActive, s.now()).
		Limit(100).
		Find(&overdue).Error
	if err != nil {
		return 0, fmt.Errorf("find overdue sessions: %w", err)
	}

	expired := 0
	for i := range overdue {
		changed, err := s.transition(ctx, &overdue[i], models.SessionExpired)
		if err != nil {
			return expired, err
		}
		if changed {
			expired++
			s.notifier.NotifySessionEnded(overdue[i].View())
		}
	}
	return expired, nil
}
