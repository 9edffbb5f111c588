package services

import (
	"errors"
	"time"

	"github.com/yeremiapane/restaurant-qr/models"
	"github.com/yeremiapane/restaurant-qr/realtime"
	"github.com/yeremiapane/restaurant-qr/utils"
)

var ErrEmptyMessage = errors.New("message is required")

var customerTypes = map[string]bool{
	realtime.TypeInfo:    true,
	realtime.TypeSuccess: true,
	realtime.TypeWarning: true,
	realtime.TypeError:   true,
}

// Notifier publishes session and staff events on the push hub.
type Notifier struct {
	hub     *realtime.Hub
	metrics *Metrics
}

func NewNotifier(hub *realtime.Hub, metrics *Metrics) *Notifier {
	return &Notifier{hub: hub, metrics: metrics}
}

func (n *Notifier) publish(room string, msg realtime.Message) int {
	if n == nil || n.hub == nil {
		return 0
	}
	n.metrics.push(msg.Type)
	return n.hub.Publish(room, msg)
}

// NotifyUser sends a toast-style message to one session. Unknown types fall
// back to "info".
func (n *Notifier) NotifyUser(sessionID uint, msgType, message string) (int, error) {
	if message == "" {
		return 0, ErrEmptyMessage
	}
	if !customerTypes[msgType] {
		if msgType != "" {
			utils.InfoLogger.Printf("Invalid notification type %q, defaulting to info", msgType)
		}
		msgType = realtime.TypeInfo
	}
	return n.publish(realtime.SessionRoom(sessionID), realtime.Message{
		Type:    msgType,
		Message: message,
	}), nil
}

// NotifyAllCustomers broadcasts to every connected customer.
func (n *Notifier) NotifyAllCustomers(msgType, message string) (int, error) {
	if message == "" {
		return 0, ErrEmptyMessage
	}
	if !customerTypes[msgType] {
		msgType = realtime.TypeInfo
	}
	return n.publish(realtime.RoleRoom(models.RoleCustomer), realtime.Message{
		Type:    msgType,
		Message: message,
	}), nil
}

// SessionEventData is the payload of session_ended and session_paid.
type SessionEventData struct {
	SessionID   uint       `json:"sessionId"`
	TableID     uint       `json:"tableId"`
	TableNumber string     `json:"tableNumber,omitempty"`
	Status      string     `json:"status"`
	PaidAt      *time.Time `json:"paidAt,omitempty"`
	TotalAmount float64    `json:"totalAmount,omitempty"`
}

// Pesan ke customer saat session berakhir
const (
	msgSessionEndedByStaff = "Your session has been ended by the restaurant."
	msgSessionExpired      = "Your session has expired. Please scan the QR code on your table again."
)

// NotifySessionEnded tells the table its session is over, either closed by
// the restaurant or expired. Data.Status carries which one.
func (n *Notifier) NotifySessionEnded(view models.SessionView) int {
	message := msgSessionEndedByStaff
	if view.Status == models.SessionExpired {
		message = msgSessionExpired
	}
	return n.publish(realtime.SessionRoom(view.ID), realtime.Message{
		Type:    realtime.TypeSessionEnded,
		Message: message,
		Data: SessionEventData{
			SessionID:   view.ID,
			TableID:     view.TableID,
			TableNumber: view.TableNumber,
			Status:      view.Status,
		},
	})
}

// NotifySessionPaid tells the table its bill was settled.
func (n *Notifier) NotifySessionPaid(view models.SessionView, total float64, paidAt time.Time) int {
	return n.publish(realtime.SessionRoom(view.ID), realtime.Message{
		Type:    realtime.TypeSessionPaid,
		Message: "Payment successful. Thank you!",
		Data: SessionEventData{
			SessionID:   view.ID,
			TableID:     view.TableID,
			TableNumber: view.TableNumber,
			Status:      view.Status,
			PaidAt:      &paidAt,
			TotalAmount: total,
		},
	})
}

// NotifyStaff pushes a table request to staff and admins.
func (n *Notifier) NotifyStaff(notif models.Notification) int {
	msg := realtime.Message{
		Type:    realtime.TypeStaffRequest,
		Message: notif.Message,
		Data:    notif,
	}
	sent := n.publish(realtime.RoleRoom(models.RoleStaff), msg)
	sent += n.publish(realtime.RoleRoom(models.RoleAdmin), msg)
	return sent
}

// NotifyTableUpdate pushes a table change to staff dashboards.
func (n *Notifier) NotifyTableUpdate(table models.Table) int {
	msg := realtime.Message{Type: realtime.TypeTableUpdate, Data: table}
	sent := n.publish(realtime.RoleRoom(models.RoleStaff), msg)
	sent += n.publish(realtime.RoleRoom(models.RoleAdmin), msg)
	return sent
}
