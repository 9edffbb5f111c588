// Package session is the customer side of a QR table session: the local
// session store, the QR intake handler, the validator that keeps the stored
// session in line with the backend, and the push-notification binding.
package session

import (
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Status mirrors the backend session status.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusExpired   Status = "EXPIRED"
)

// Known reports whether s is one of the three backend statuses.
func (s Status) Known() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusExpired:
		return true
	}
	return false
}

// Terminal statuses never go back to ACTIVE.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired
}

// Storage slots owned by this package.
const (
	KeySession         = "qr_session"
	KeyLoyaltyCustomer = "loyalty_customer"
	ReviewDraftPrefix  = "restaurant_review_session_"
)

// ReviewDraftKey is the slot of the review draft for one session.
func ReviewDraftKey(sessionID int64) string {
	return ReviewDraftPrefix + strconv.FormatInt(sessionID, 10)
}

var (
	ErrNoSession        = errors.New("no active QR session")
	ErrStatusRegression = errors.New("session status cannot go back to ACTIVE")
	ErrUnknownStatus    = errors.New("unknown session status")
	ErrCorruptSession   = errors.New("stored session is unreadable")
	ErrInvalidQRParams  = errors.New("invalid QR code parameters")
)

// Session is the locally held QR session.
type Session struct {
	ID          int64      `json:"id"`
	TableID     int64      `json:"table_id"`
	TableNumber string     `json:"table_number"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiredAt   *time.Time `json:"expired_at,omitempty"`
	CustomerID  *int64     `json:"customer_id,omitempty"`
}

// Valid reports whether the required fields are present.
func (s *Session) Valid() bool {
	return s != nil && s.ID > 0 && s.TableID > 0 && s.Status.Known()
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.ExpiredAt != nil {
		t := *s.ExpiredAt
		c.ExpiredAt = &t
	}
	if s.CustomerID != nil {
		id := *s.CustomerID
		c.CustomerID = &id
	}
	return &c
}

// LoyaltyCustomer is the loyalty member bound to the session.
type LoyaltyCustomer struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Points int    `json:"points"`
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
