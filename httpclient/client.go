// Package httpclient is the HTTP adapter shared by the QR client. It tags
// every request with the staff credentials and the current QR session, and
// handles 401 once for every caller.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/restaurant-qr/storage"
)

// Header names understood by the backend.
const (
	HeaderAuthorization = "Authorization"
	HeaderRole          = "X-User-Role"
	HeaderSession       = "X-Session-ID"
)

// Storage slots holding the staff login.
const (
	KeyToken = "token"
	KeyRole  = "role"
)

const defaultTimeout = 15 * time.Second

// Interceptor runs on every outgoing request before it is sent.
type Interceptor func(req *http.Request) error

type Options struct {
	// HTTPClient defaults to a pooled go-cleanhttp client.
	HTTPClient *http.Client
	// Storage holds the auth token and role. Without it no credentials are
	// attached.
	Storage storage.Storage
	// OnUnauthorized is called after a 401 cleared the stored login, so the
	// application can send the user back to the login screen.
	OnUnauthorized func()
	Logger         logrus.FieldLogger
}

type registration struct {
	id int
	fn Interceptor
}

type Client struct {
	baseURL        string
	http           *http.Client
	slots          storage.Storage
	onUnauthorized func()
	log            logrus.FieldLogger

	mu           sync.Mutex
	interceptors []registration
	nextID       int
	sessionReg   int
	sessionID    string
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func New(baseURL string, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = cleanhttp.DefaultPooledClient()
		hc.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           hc,
		slots:          opts.Storage,
		onUnauthorized: opts.OnUnauthorized,
		log:            opts.Logger,
	}
	c.Use(c.authInterceptor)
	return c
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Use registers an interceptor and returns its id for Eject.
func (c *Client) Use(fn Interceptor) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.interceptors = append(c.interceptors, registration{id: c.nextID, fn: fn})
	return c.nextID
}

// Eject removes a registered interceptor. Unknown ids are ignored.
func (c *Client) Eject(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ejectLocked(id)
}

func (c *Client) ejectLocked(id int) bool {
	for i, r := range c.interceptors {
		if r.id == id {
			c.interceptors = append(c.interceptors[:i:i], c.interceptors[i+1:]...)
			return true
		}
	}
	return false
}

// AttachSession makes every request carry X-Session-ID. A previous session
// tagging registration is removed first, so there is never more than one.
func (c *Client) AttachSession(sessionID int64) {
	id := strconv.FormatInt(sessionID, 10)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionReg != 0 {
		c.ejectLocked(c.sessionReg)
	}
	c.nextID++
	c.sessionReg = c.nextID
	c.sessionID = id
	c.interceptors = append(c.interceptors, registration{
		id: c.sessionReg,
		fn: func(req *http.Request) error {
			req.Header.Set(HeaderSession, id)
			return nil
		},
	})
}

// DetachSession stops session tagging.
func (c *Client) DetachSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionReg != 0 {
		c.ejectLocked(c.sessionReg)
	}
	c.sessionReg = 0
	c.sessionID = ""
}

// SessionID is the id currently attached, or "".
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) authInterceptor(req *http.Request) error {
	if c.slots == nil {
		return nil
	}
	token, err := c.slots.Get(req.Context(), KeyToken)
	if errors.Is(err, storage.ErrNotFound) || token == "" {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read auth token: %w", err)
	}
	req.Header.Set(HeaderAuthorization, "Bearer "+token)
	if role, err := c.slots.Get(req.Context(), KeyRole); err == nil && role != "" {
		req.Header.Set(HeaderRole, role)
	}
	return nil
}

// SetAuth stores a staff login.
func (c *Client) SetAuth(ctx context.Context, token, role string) error {
	if c.slots == nil {
		return errors.New("no storage configured")
	}
	if err := c.slots.Set(ctx, KeyToken, token); err != nil {
		return err
	}
	return c.slots.Set(ctx, KeyRole, role)
}

// ClearAuth removes the stored staff login.
func (c *Client) ClearAuth(ctx context.Context) error {
	if c.slots == nil {
		return nil
	}
	if err := c.slots.Remove(ctx, KeyToken); err != nil {
		return err
	}
	return c.slots.Remove(ctx, KeyRole)
}

// Envelope is the standard backend response body.
type Envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Do sends a JSON request and decodes the envelope's data into out (when
// out is non-nil). A false envelope status is reported as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	code, raw, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Status {
		return &APIError{StatusCode: code, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// DoRaw sends a JSON request and returns the raw 2xx body, for endpoints
// that put fields next to the envelope.
func (c *Client) DoRaw(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	_, raw, err := c.send(ctx, method, path, body)
	return raw, err
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.Lock()
	chain := make([]registration, len(c.interceptors))
	copy(chain, c.interceptors)
	c.mu.Unlock()
	for _, r := range chain {
		if err := r.fn(req); err != nil {
			return 0, nil, err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, raw, nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Message: messageFrom(raw)}
	if resp.StatusCode == http.StatusUnauthorized {
		c.handleUnauthorized(ctx)
	}
	c.log.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"status": resp.StatusCode,
	}).Debug(apiErr.Message)
	return resp.StatusCode, raw, apiErr
}

func (c *Client) handleUnauthorized(ctx context.Context) {
	// Context request bisa sudah dibatalkan, pembersihan tetap jalan
	if err := c.ClearAuth(context.WithoutCancel(ctx)); err != nil {
		c.log.WithError(err).Warn("failed to clear auth after 401")
	}
	if c.onUnauthorized != nil {
		c.onUnauthorized()
	}
}

func messageFrom(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return ""
}
