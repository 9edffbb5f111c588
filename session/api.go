package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/yeremiapane/restaurant-qr/httpclient"
)

// Backend is the part of the REST API the session layer calls.
type Backend interface {
	Scan(ctx context.Context, tableID int64, token string) (*Session, error)
	Fetch(ctx context.Context, sessionID int64) (*Session, error)
	Validate(ctx context.Context, sessionID int64) (ValidationResult, error)
	BindCustomer(ctx context.Context, sessionID, customerID int64) (*Session, error)
	RegisterLoyalty(ctx context.Context, name, phone string) (*LoyaltyCustomer, error)
}

// Tagger receives the session id that outgoing requests should carry.
type Tagger interface {
	AttachSession(sessionID int64)
	DetachSession()
}

// Validation reasons sent by the backend.
const (
	ReasonNotFound      = "SESSION_NOT_FOUND"
	ReasonCompleted     = "SESSION_COMPLETED"
	ReasonExpired       = "SESSION_EXPIRED"
	ReasonTableInactive = "TABLE_INACTIVE"
)

// ValidationKind is the decoded verdict of the validate endpoint.
type ValidationKind int

const (
	// ValidationValid: the session may be used.
	ValidationValid ValidationKind = iota
	// ValidationCompleted: the bill is settled, keep the session read-only.
	ValidationCompleted
	// ValidationClear: the backend asked the client to drop the session.
	ValidationClear
	// ValidationRejected: invalid for any other reason without a clear flag.
	ValidationRejected
)

func (k ValidationKind) String() string {
	switch k {
	case ValidationValid:
		return "valid"
	case ValidationCompleted:
		return "completed"
	case ValidationClear:
		return "clear"
	case ValidationRejected:
		return "rejected"
	}
	return fmt.Sprintf("ValidationKind(%d)", int(k))
}

// ValidationResult is decoded once at the boundary so callers switch on Kind
// instead of comparing reason strings.
type ValidationResult struct {
	Kind    ValidationKind
	Reason  string
	Message string
	// Status is the backend status when the response carried one.
	Status Status
}

type validationBody struct {
	Valid       bool   `json:"valid"`
	Reason      string `json:"reason"`
	Message     string `json:"message"`
	ShouldClear bool   `json:"shouldClear"`
	Data        *struct {
		Status Status `json:"status"`
	} `json:"data"`
}

// DecodeValidation turns a validate response body into a ValidationResult.
func DecodeValidation(raw []byte) (ValidationResult, error) {
	var body validationBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return ValidationResult{}, fmt.Errorf("decode validation: %w", err)
	}
	res := ValidationResult{Reason: body.Reason, Message: body.Message}
	if body.Data != nil && body.Data.Status.Known() {
		res.Status = body.Data.Status
	}

	switch {
	case body.Valid:
		res.Kind = ValidationValid
		if res.Status == "" {
			res.Status = StatusActive
		}
	case body.Reason == ReasonCompleted:
		res.Kind = ValidationCompleted
		res.Status = StatusCompleted
	case body.ShouldClear:
		res.Kind = ValidationClear
	default:
		res.Kind = ValidationRejected
	}
	return res, nil
}

// API implements Backend over the shared HTTP adapter.
type API struct {
	client *httpclient.Client
}

func NewAPI(client *httpclient.Client) *API {
	return &API{client: client}
}

func (a *API) Scan(ctx context.Context, tableID int64, token string) (*Session, error) {
	var s Session
	err := a.client.Do(ctx, http.MethodPost, "/sessions/scan", map[string]interface{}{
		"table_id":      tableID,
		"session_token": token,
	}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (a *API) Fetch(ctx context.Context, sessionID int64) (*Session, error) {
	var s Session
	if err := a.client.Do(ctx, http.MethodGet, fmt.Sprintf("/sessions/%d", sessionID), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (a *API) Validate(ctx context.Context, sessionID int64) (ValidationResult, error) {
	raw, err := a.client.DoRaw(ctx, http.MethodGet, fmt.Sprintf("/sessions/%d/validate", sessionID), nil)
	if err != nil {
		return ValidationResult{}, err
	}
	return DecodeValidation(raw)
}

func (a *API) BindCustomer(ctx context.Context, sessionID, customerID int64) (*Session, error) {
	var s Session
	err := a.client.Do(ctx, http.MethodPut, fmt.Sprintf("/sessions/%d/customer", sessionID),
		map[string]int64{"customer_id": customerID}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (a *API) RegisterLoyalty(ctx context.Context, name, phone string) (*LoyaltyCustomer, error) {
	var out struct {
		IsNew    bool            `json:"is_new"`
		Customer LoyaltyCustomer `json:"customer"`
	}
	err := a.client.Do(ctx, http.MethodPost, "/customers/loyalty", map[string]string{
		"name":  name,
		"phone": phone,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Customer, nil
}
