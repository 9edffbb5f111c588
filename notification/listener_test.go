package notification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchOrderAndPanicIsolation(t *testing.T) {
	l := NewListener("http://unused", Options{})

	var got []string
	l.AddListener(func(n Notification) { got = append(got, "first:"+n.Type) })
	l.AddListener(func(n Notification) { panic("listener exploded") })
	l.AddListener(func(n Notification) { got = append(got, "third:"+n.Type) })

	assert.NotPanics(t, func() {
		l.Dispatch(Notification{Type: TypeSessionPaid})
		l.Dispatch(Notification{Type: TypeInfo})
	})
	assert.Equal(t, []string{
		"first:session_paid", "third:session_paid",
		"first:info", "third:info",
	}, got)
}

func TestDisposerIsIdempotent(t *testing.T) {
	l := NewListener("http://unused", Options{})

	var a, b int
	disposeA := l.AddListener(func(Notification) { a++ })
	l.AddListener(func(Notification) { b++ })

	disposeA()
	assert.NotPanics(t, disposeA)
	assert.Equal(t, 1, l.ListenerCount())

	l.Dispatch(Notification{Type: TypeInfo})
	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
}

func TestDecodeData(t *testing.T) {
	n := Notification{Type: TypeSessionEnded, Data: []byte(`{"sessionId":7}`)}
	var payload struct {
		SessionID int64 `json:"sessionId"`
	}
	require.NoError(t, n.DecodeData(&payload))
	assert.Equal(t, int64(7), payload.SessionID)

	assert.Error(t, Notification{}.DecodeData(&payload))
}

type pushServer struct {
	*httptest.Server
	mu      sync.Mutex
	queries []url.Values
	conns   []*websocket.Conn
	closed  int
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	ps := &pushServer{}
	upgrader := websocket.Upgrader{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/connect" {
			http.NotFound(w, r)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ps.mu.Lock()
		ps.queries = append(ps.queries, r.URL.Query())
		ps.conns = append(ps.conns, ws)
		ps.mu.Unlock()

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}
		ps.mu.Lock()
		ps.closed++
		ps.mu.Unlock()
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *pushServer) connections() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.conns)
}

func (ps *pushServer) closedCount() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.closed
}

func (ps *pushServer) send(t *testing.T, i int, payload string) {
	t.Helper()
	ps.mu.Lock()
	conn := ps.conns[i]
	ps.mu.Unlock()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func TestInitializeSocketReusesSameScope(t *testing.T) {
	ps := newPushServer(t)
	l := NewListener(ps.URL, Options{})
	defer l.Close()
	ctx := context.Background()

	require.NoError(t, l.InitializeSocket(ctx, "12", "customer"))
	require.NoError(t, l.InitializeSocket(ctx, "12", "CUSTOMER"))
	require.Eventually(t, func() bool { return ps.connections() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, ps.connections())

	ps.mu.Lock()
	q := ps.queries[0]
	ps.mu.Unlock()
	assert.Equal(t, "12", q.Get("scope"))
	assert.Equal(t, "customer", q.Get("role"))
	assert.Empty(t, q.Get("token"))

	scope, ok := l.Connected()
	assert.True(t, ok)
	assert.Equal(t, "12", scope)
}

func TestInitializeSocketSwitchesScope(t *testing.T) {
	ps := newPushServer(t)
	l := NewListener(ps.URL, Options{})
	defer l.Close()
	ctx := context.Background()

	require.NoError(t, l.InitializeSocket(ctx, "1", RoleCustomer))
	require.NoError(t, l.InitializeSocket(ctx, "2", RoleCustomer))

	require.Eventually(t, func() bool {
		return ps.connections() == 2 && ps.closedCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestStaffConnectionSendsToken(t *testing.T) {
	ps := newPushServer(t)
	l := NewListener(ps.URL, Options{Token: func() string { return "jwt" }})
	defer l.Close()

	require.NoError(t, l.InitializeSocket(context.Background(), "", RoleStaff))
	require.Eventually(t, func() bool { return ps.connections() == 1 }, time.Second, 10*time.Millisecond)

	ps.mu.Lock()
	q := ps.queries[0]
	ps.mu.Unlock()
	assert.Equal(t, "staff", q.Get("role"))
	assert.Equal(t, "jwt", q.Get("token"))

	assert.Error(t, l.InitializeSocket(context.Background(), "", RoleCustomer))
}

func TestPushedMessagesReachListeners(t *testing.T) {
	ps := newPushServer(t)
	l := NewListener(ps.URL, Options{})
	defer l.Close()

	received := make(chan Notification, 4)
	l.AddListener(func(n Notification) { received <- n })

	require.NoError(t, l.InitializeSocket(context.Background(), "9", RoleCustomer))
	require.Eventually(t, func() bool { return ps.connections() == 1 }, time.Second, 10*time.Millisecond)

	ps.send(t, 0, `not json`)
	ps.send(t, 0, `{"type":"session_paid","message":"Payment successful","data":{"sessionId":9,"totalAmount":150000}}`)

	select {
	case n := <-received:
		assert.Equal(t, TypeSessionPaid, n.Type)
		assert.Equal(t, "Payment successful", n.Message)
		var data struct {
			SessionID   int64   `json:"sessionId"`
			TotalAmount float64 `json:"totalAmount"`
		}
		require.NoError(t, n.DecodeData(&data))
		assert.Equal(t, int64(9), data.SessionID)
		assert.Equal(t, 150000.0, data.TotalAmount)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestServerDisconnectAllowsReconnect(t *testing.T) {
	ps := newPushServer(t)
	l := NewListener(ps.URL, Options{})
	defer l.Close()
	ctx := context.Background()

	require.NoError(t, l.InitializeSocket(ctx, "3", RoleCustomer))
	require.Eventually(t, func() bool { return ps.connections() == 1 }, time.Second, 10*time.Millisecond)

	ps.mu.Lock()
	_ = ps.conns[0].Close()
	ps.mu.Unlock()

	require.Eventually(t, func() bool {
		_, ok := l.Connected()
		return !ok
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, l.InitializeSocket(ctx, "3", RoleCustomer))
	require.Eventually(t, func() bool { return ps.connections() == 2 }, time.Second, 10*time.Millisecond)
}
