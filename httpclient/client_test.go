package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/restaurant-qr/storage"
)

type seenHeaders struct {
	auth    string
	role    string
	session string
}

func echoServer(t *testing.T, seen *seenHeaders) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = seenHeaders{
			auth:    r.Header.Get(HeaderAuthorization),
			role:    r.Header.Get(HeaderRole),
			session: r.Header.Get(HeaderSession),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"value":42}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHeadersAttachedIndependently(t *testing.T) {
	var seen seenHeaders
	srv := echoServer(t, &seen)
	ctx := context.Background()
	slots := storage.NewMemoryStorage()
	c := New(srv.URL, Options{Storage: slots})

	require.NoError(t, c.Do(ctx, http.MethodGet, "/x", nil, nil))
	assert.Equal(t, seenHeaders{}, seen)

	c.AttachSession(12)
	require.NoError(t, c.Do(ctx, http.MethodGet, "/x", nil, nil))
	assert.Equal(t, seenHeaders{session: "12"}, seen)

	require.NoError(t, c.SetAuth(ctx, "jwt-token", "staff"))
	require.NoError(t, c.Do(ctx, http.MethodGet, "/x", nil, nil))
	assert.Equal(t, seenHeaders{auth: "Bearer jwt-token", role: "staff", session: "12"}, seen)

	c.DetachSession()
	require.NoError(t, c.Do(ctx, http.MethodGet, "/x", nil, nil))
	assert.Equal(t, seenHeaders{auth: "Bearer jwt-token", role: "staff"}, seen)
	assert.Empty(t, c.SessionID())
}

func TestAttachSessionReplacesPreviousRegistration(t *testing.T) {
	var seen seenHeaders
	srv := echoServer(t, &seen)
	c := New(srv.URL, Options{})

	c.AttachSession(1)
	c.AttachSession(2)
	c.AttachSession(3)

	c.mu.Lock()
	count := len(c.interceptors)
	c.mu.Unlock()
	// auth + satu session tagger
	assert.Equal(t, 2, count)

	require.NoError(t, c.Do(context.Background(), http.MethodGet, "/x", nil, nil))
	assert.Equal(t, "3", seen.session)
	assert.Equal(t, "3", c.SessionID())
}

func TestUseAndEject(t *testing.T) {
	var seen seenHeaders
	srv := echoServer(t, &seen)
	c := New(srv.URL, Options{})

	var calls int32
	id := c.Use(func(req *http.Request) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, c.Do(context.Background(), http.MethodGet, "/x", nil, nil))
	assert.True(t, c.Eject(id))
	assert.False(t, c.Eject(id))
	require.NoError(t, c.Do(context.Background(), http.MethodGet, "/x", nil, nil))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	boom := errors.New("boom")
	c.Use(func(req *http.Request) error { return boom })
	assert.ErrorIs(t, c.Do(context.Background(), http.MethodGet, "/x", nil, nil), boom)
}

func TestDoDecodesEnvelope(t *testing.T) {
	var seen seenHeaders
	srv := echoServer(t, &seen)
	c := New(srv.URL+"/", Options{})

	var out struct {
		Value int `json:"value"`
	}
	require.NoError(t, c.Do(context.Background(), http.MethodPost, "/x", map[string]int{"a": 1}, &out))
	assert.Equal(t, 42, out.Value)
	assert.Equal(t, srv.URL, c.BaseURL())
}

func TestUnauthorizedClearsAuthAndPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": false, "message": "Invalid or expired token"})
	}))
	defer srv.Close()

	ctx := context.Background()
	slots := storage.NewMemoryStorage()
	var redirected int32
	c := New(srv.URL, Options{
		Storage:        slots,
		OnUnauthorized: func() { atomic.AddInt32(&redirected, 1) },
	})
	require.NoError(t, c.SetAuth(ctx, "old", "admin"))
	c.AttachSession(5)

	err := c.Do(ctx, http.MethodGet, "/admin/profile", nil, nil)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid or expired token", apiErr.Message)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&redirected))

	_, err = slots.Get(ctx, KeyToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = slots.Get(ctx, KeyRole)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	// session tagging bukan bagian dari auth
	assert.Equal(t, "5", c.SessionID())
}

func TestErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/500":
			w.WriteHeader(http.StatusInternalServerError)
		case "/400":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"status":false,"message":"invalid QR session token"}`))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
		case "/rejected":
			_, _ = w.Write([]byte(`{"status":false,"message":"nope"}`))
		}
	}))
	defer srv.Close()
	c := New(srv.URL, Options{})
	ctx := context.Background()

	err := c.Do(ctx, http.MethodGet, "/500", nil, nil)
	assert.True(t, IsTransient(err))
	_, ok := Message(err)
	assert.False(t, ok)

	err = c.Do(ctx, http.MethodGet, "/400", nil, nil)
	assert.False(t, IsTransient(err))
	msg, ok := Message(err)
	assert.True(t, ok)
	assert.Equal(t, "invalid QR session token", msg)

	err = c.Do(ctx, http.MethodGet, "/rejected", nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)

	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err = c.Do(tctx, http.MethodGet, "/slow", nil, nil)
	assert.True(t, IsTransient(err))

	cctx, cancelNow := context.WithCancel(ctx)
	cancelNow()
	err = c.Do(cctx, http.MethodGet, "/slow", nil, nil)
	assert.False(t, IsTransient(err))

	down := New("http://127.0.0.1:1", Options{})
	err = down.Do(ctx, http.MethodGet, "/x", nil, nil)
	assert.True(t, IsTransient(err))

	assert.False(t, IsTransient(nil))
}

func TestMisconfiguredBaseURLIsNotTransient(t *testing.T) {
	ctx := context.Background()

	bad := New("ftp://resto.test", Options{})
	err := bad.Do(ctx, http.MethodGet, "/sessions/1/validate", nil, nil)
	require.Error(t, err)
	assert.False(t, IsTransient(err))

	noScheme := New("resto.test:8080", Options{})
	err = noScheme.Do(ctx, http.MethodGet, "/sessions/1/validate", nil, nil)
	require.Error(t, err)
	assert.False(t, IsTransient(err))

	// Server mati tetap dianggap sementara
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()
	err = New(addr, Options{}).Do(ctx, http.MethodGet, "/x", nil, nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
