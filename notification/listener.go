// Package notification keeps the client's push channel: one websocket per
// scope (a QR session for customers, a role for staff) and an ordered set of
// callbacks that receive every message.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Message types pushed by the backend.
const (
	TypeInfo         = "info"
	TypeSuccess      = "success"
	TypeWarning      = "warning"
	TypeError        = "error"
	TypeSessionEnded = "session_ended"
	TypeSessionPaid  = "session_paid"
	TypeStaffRequest = "staff_request"
	TypeTableUpdate  = "table_update"
)

// Roles accepted by the push endpoint.
const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
	RoleChef     = "chef"
)

// Notification is one pushed message. Data is decoded by the consumer.
type Notification struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// DecodeData unmarshals the payload into v.
func (n Notification) DecodeData(v interface{}) error {
	if len(n.Data) == 0 {
		return errors.New("notification has no data")
	}
	return json.Unmarshal(n.Data, v)
}

type Options struct {
	Dialer *websocket.Dialer
	// Token supplies the staff JWT for non-customer roles.
	Token  func() string
	Logger logrus.FieldLogger
}

type entry struct {
	id int
	fn func(Notification)
}

// Listener owns at most one connection at a time.
type Listener struct {
	wsBase string
	dialer *websocket.Dialer
	token  func() string
	log    logrus.FieldLogger

	connMu sync.Mutex
	conn   *websocket.Conn
	scope  string
	role   string
	done   chan struct{}

	mu        sync.Mutex
	listeners []entry
	nextID    int
}

// NewListener builds a listener for the API at baseURL (http or https).
func NewListener(baseURL string, opts Options) *Listener {
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return &Listener{
		wsBase: base,
		dialer: opts.Dialer,
		token:  opts.Token,
		log:    opts.Logger,
	}
}

// InitializeSocket connects the push channel for scopeID and role. It is a
// no-op when that scope is already connected; a different scope replaces
// the current connection.
func (l *Listener) InitializeSocket(ctx context.Context, scopeID, role string) error {
	role = strings.ToLower(role)
	if role == "" {
		role = RoleCustomer
	}
	if role == RoleCustomer && scopeID == "" {
		return errors.New("customer connections need a session scope")
	}

	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn != nil {
		if l.scope == scopeID && l.role == role {
			return nil
		}
		l.closeLocked()
	}

	q := url.Values{}
	q.Set("role", role)
	if scopeID != "" {
		q.Set("scope", scopeID)
	}
	if role != RoleCustomer && l.token != nil {
		if token := l.token(); token != "" {
			q.Set("token", token)
		}
	}
	target := l.wsBase + "/ws/connect?" + q.Encode()

	conn, resp, err := l.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect push channel: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("connect push channel: %w", err)
	}

	done := make(chan struct{})
	l.conn = conn
	l.scope = scopeID
	l.role = role
	l.done = done
	go l.readLoop(conn, done)

	l.log.WithFields(logrus.Fields{"scope": scopeID, "role": role}).Info("push channel connected")
	return nil
}

// Connected reports whether a connection is open, and for which scope.
func (l *Listener) Connected() (scope string, ok bool) {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	return l.scope, l.conn != nil
}

func (l *Listener) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			l.connMu.Lock()
			if l.conn == conn {
				// Putus dari sisi server, InitializeSocket berikutnya akan connect ulang
				l.conn = nil
				l.scope = ""
				l.role = ""
				l.log.WithError(err).Warn("push channel closed")
			}
			l.connMu.Unlock()
			return
		}

		var n Notification
		if err := json.Unmarshal(data, &n); err != nil {
			l.log.WithError(err).Warn("dropping malformed push message")
			continue
		}
		l.Dispatch(n)
	}
}

// AddListener registers fn for every later notification. The returned
// disposer may be called any number of times.
func (l *Listener) AddListener(fn func(Notification)) (dispose func()) {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.listeners = append(l.listeners, entry{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for i, e := range l.listeners {
				if e.id == id {
					l.listeners = append(l.listeners[:i:i], l.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// ListenerCount is the number of registered callbacks.
func (l *Listener) ListenerCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.listeners)
}

// Dispatch hands n to every callback in registration order. A panicking
// callback is logged and the rest still run.
func (l *Listener) Dispatch(n Notification) {
	l.mu.Lock()
	snapshot := make([]entry, len(l.listeners))
	copy(snapshot, l.listeners)
	l.mu.Unlock()

	for _, e := range snapshot {
		l.invoke(e, n)
	}
}

func (l *Listener) invoke(e entry, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			l.log.WithFields(logrus.Fields{
				"listener": e.id,
				"type":     n.Type,
			}).Errorf("notification listener panicked: %v", r)
		}
	}()
	e.fn(n)
}

// Close drops the connection. Registered callbacks stay.
func (l *Listener) Close() error {
	l.connMu.Lock()
	done := l.closeLocked()
	l.connMu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}

// closeLocked closes the connection and returns the read loop's done
// channel. The caller must not wait on it while holding connMu.
func (l *Listener) closeLocked() chan struct{} {
	if l.conn == nil {
		return nil
	}
	conn, done := l.conn, l.done
	l.conn = nil
	l.scope = ""
	l.role = ""
	l.done = nil

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = conn.Close()
	return done
}
