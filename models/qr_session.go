package models

import "time"

// Session status values, mirrored by the client.
const (
	SessionActive    = "ACTIVE"
	SessionCompleted = "COMPLETED"
	SessionExpired   = "EXPIRED"
)

// QRSession binds a scanned table to a customer's ordering context.
type QRSession struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	TableID     uint       `gorm:"not null;index" json:"table_id"`
	Table       Table      `gorm:"foreignKey:TableID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	CustomerID  *uint      `gorm:"index" json:"customer_id,omitempty"`
	Customer    *Customer  `gorm:"foreignKey:CustomerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
	SessionKey  string     `gorm:"type:varchar(64)" json:"-"`
	Status      string     `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"`
	ExpiredAt   *time.Time `json:"expired_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (QRSession) TableName() string {
	return "qr_sessions"
}

// SessionView is the wire shape of a session, with the table label joined in.
type SessionView struct {
	ID          uint       `json:"id"`
	TableID     uint       `json:"table_id"`
	TableNumber string     `json:"table_number"`
	Status      string     `json:"status"`
	CustomerID  *uint      `json:"customer_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiredAt   *time.Time `json:"expired_at,omitempty"`
}

// View flattens the session for responses. Table must be preloaded.
func (s QRSession) View() SessionView {
	return SessionView{
		ID:          s.ID,
		TableID:     s.TableID,
		TableNumber: s.Table.TableNumber,
		Status:      s.Status,
		CustomerID:  s.CustomerID,
		CreatedAt:   s.CreatedAt,
		ExpiredAt:   s.ExpiredAt,
	}
}
