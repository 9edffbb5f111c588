package models

import (
	"time"
)

// Notification is a request raised from a table (call staff, pay by cash)
// and kept for the staff inbox.
type Notification struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	QRSessionID *uint      `gorm:"index" json:"qr_session_id,omitempty"`
	QRSession   *QRSession `gorm:"foreignKey:QRSessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
	Type        string     `gorm:"type:varchar(30);not null;default:'info'" json:"type"`
	Title       *string    `gorm:"type:varchar(100)" json:"title,omitempty"`
	Message     string     `gorm:"type:text;not null" json:"message"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
}
