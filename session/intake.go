package session

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// QR query parameters.
const (
	ParamTable   = "table"
	ParamSession = "session"
)

var (
	tableIDPattern = regexp.MustCompile(`^[0-9]+$`)
	tokenPattern   = regexp.MustCompile(`^[a-zA-Z0-9]{8,32}$`)
)

// HasQRParams reports whether u carries both QR parameters.
func HasQRParams(u *url.URL) bool {
	if u == nil {
		return false
	}
	q := u.Query()
	return q.Get(ParamTable) != "" && q.Get(ParamSession) != ""
}

// ParseQRParams validates the QR parameters of u.
func ParseQRParams(u *url.URL) (tableID int64, token string, err error) {
	q := u.Query()
	rawTable, token := q.Get(ParamTable), q.Get(ParamSession)

	if !tableIDPattern.MatchString(rawTable) {
		return 0, "", ErrInvalidQRParams
	}
	tableID, err = strconv.ParseInt(rawTable, 10, 64)
	if err != nil || tableID <= 0 {
		return 0, "", ErrInvalidQRParams
	}
	if !tokenPattern.MatchString(token) {
		return 0, "", ErrInvalidQRParams
	}
	return tableID, token, nil
}

type IntakeOptions struct {
	// AutoRedirect sends the customer to RedirectPath after a scan, with
	// ":tableId" replaced. Otherwise the QR parameters are stripped from the
	// current URL.
	AutoRedirect bool
	RedirectPath string
	// Navigate receives the target URL. Required for any navigation.
	Navigate  func(target string)
	OnSuccess func(*Session)
	OnError   func(message string)
}

type qrPair struct {
	tableID int64
	token   string
}

// IntakeHandler turns scanned QR parameters into a session, once per
// (table, token) pair for the handler's lifetime.
type IntakeHandler struct {
	store *Store
	opts  IntakeOptions

	mu        sync.Mutex
	processed map[qrPair]bool
}

func NewIntakeHandler(store *Store, opts IntakeOptions) *IntakeHandler {
	return &IntakeHandler{
		store:     store,
		opts:      opts,
		processed: make(map[qrPair]bool),
	}
}

// Handle processes u. It returns (nil, nil) when there is nothing to do:
// no QR parameters, an ACTIVE session already held, or a pair that was
// already processed.
func (h *IntakeHandler) Handle(ctx context.Context, u *url.URL) (*Session, error) {
	if !HasQRParams(u) {
		return nil, nil
	}
	if h.store.IsAuthenticated() {
		return nil, nil
	}

	tableID, token, err := ParseQRParams(u)
	if err != nil {
		h.fail("Invalid QR code. Please scan the code on your table again.")
		return nil, err
	}

	pair := qrPair{tableID: tableID, token: token}
	h.mu.Lock()
	if h.processed[pair] {
		h.mu.Unlock()
		return nil, nil
	}
	h.processed[pair] = true
	h.mu.Unlock()

	sess, err := h.store.CreateSession(ctx, tableID, token)
	if err != nil {
		// Marker dilepas supaya reload dengan URL yang sama bisa mencoba lagi
		h.mu.Lock()
		delete(h.processed, pair)
		h.mu.Unlock()

		var createErr *CreateError
		if errors.As(err, &createErr) {
			h.fail(createErr.Message)
		} else {
			h.fail(genericCreateError)
		}
		return nil, err
	}

	if h.opts.Navigate != nil {
		h.opts.Navigate(h.target(u, tableID))
	}
	if h.opts.OnSuccess != nil {
		h.opts.OnSuccess(sess)
	}
	return sess, nil
}

func (h *IntakeHandler) fail(message string) {
	if h.opts.OnError != nil {
		h.opts.OnError(message)
	}
}

func (h *IntakeHandler) target(u *url.URL, tableID int64) string {
	if h.opts.AutoRedirect && h.opts.RedirectPath != "" {
		return strings.ReplaceAll(h.opts.RedirectPath, ":tableId", strconv.FormatInt(tableID, 10))
	}
	stripped := *u
	q := stripped.Query()
	q.Del(ParamTable)
	q.Del(ParamSession)
	stripped.RawQuery = q.Encode()
	return stripped.String()
}
