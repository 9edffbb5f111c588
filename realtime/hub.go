// Package realtime holds the websocket push hub. Connections join rooms
// (one per QR session, one per staff role) and messages are published to a
// room.
package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Message types
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

const writeWait = 5 * time.Second

// Message is the frame pushed to clients.
type Message struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SessionRoom is the room a customer joins for one QR session.
func SessionRoom(sessionID uint) string {
	return fmt.Sprintf("QR_SESSION_%d", sessionID)
}

// RoleRoom is the room shared by every connection of a staff role.
func RoleRoom(role string) string {
	return "ROLE_" + strings.ToUpper(role)
}

// Conn is the part of *websocket.Conn the hub writes through.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type client struct {
	conn  Conn
	rooms []string
}

// Hub menampung semua koneksi dan room-nya
type Hub struct {
	mu      sync.Mutex
	clients map[Conn]*client
	rooms   map[string]map[Conn]struct{}
	log     logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	return &Hub{
		clients: make(map[Conn]*client),
		rooms:   make(map[string]map[Conn]struct{}),
		log:     log,
	}
}

// Register adds conn to the given rooms. Registering the same conn again
// replaces its room set.
func (h *Hub) Register(conn Conn, rooms ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.detachLocked(conn)
	h.clients[conn] = &client{conn: conn, rooms: rooms}
	for _, room := range rooms {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[Conn]struct{})
			h.rooms[room] = members
		}
		members[conn] = struct{}{}
	}
	h.log.WithField("rooms", rooms).Debug("client registered")
}

// Unregister melepaskan connection dan menutupnya
func (h *Hub) Unregister(conn Conn) {
	h.mu.Lock()
	h.detachLocked(conn)
	h.mu.Unlock()
	conn.Close()
}

func (h *Hub) detachLocked(conn Conn) {
	c, ok := h.clients[conn]
	if !ok {
		return
	}
	for _, room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, conn)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	delete(h.clients, conn)
}

// RoomSize reports how many connections are in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// Publish sends msg to every connection in room and returns the number of
// successful writes. ID and Timestamp are filled in when empty.
func (h *Hub) Publish(room string, msg Message) int {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Error("marshal push message")
		return 0
	}

	// Writes stay under the hub lock so a connection never has two writers.
	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for conn := range h.rooms[room] {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.WithError(err).WithField("room", room).Warn("push write failed")
			continue
		}
		sent++
	}
	h.log.WithFields(logrus.Fields{"room": room, "type": msg.Type, "delivered": sent}).Debug("published")
	return sent
}
