package Controllers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/restaurant-qr/models"
)

type loyaltyResult struct {
	IsNew    bool            `json:"is_new"`
	Customer models.Customer `json:"customer"`
}

func TestRegisterLoyaltyCreatesThenUpdates(t *testing.T) {
	app := setupApp(t)

	w := doRequest(t, app.Router, http.MethodPost, "/customers/loyalty", map[string]string{
		"name":  "Sari",
		"phone": "0812-3456 7890",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created loyaltyResult
	decodeEnvelope(t, w, &created)
	assert.True(t, created.IsNew)
	assert.Equal(t, "081234567890", created.Customer.Phone)
	assert.Equal(t, 0, created.Customer.Points)

	w = doRequest(t, app.Router, http.MethodPost, "/customers/loyalty", map[string]string{
		"name":  "Sari W.",
		"phone": "081234567890",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var again loyaltyResult
	decodeEnvelope(t, w, &again)
	assert.False(t, again.IsNew)
	assert.Equal(t, created.Customer.ID, again.Customer.ID)
	assert.Equal(t, "Sari W.", again.Customer.Name)

	w = doRequest(t, app.Router, http.MethodGet, "/customers/me/081234567890", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var found models.Customer
	decodeEnvelope(t, w, &found)
	assert.Equal(t, created.Customer.ID, found.ID)
}

func TestRegisterLoyaltyValidation(t *testing.T) {
	app := setupApp(t)

	w := doRequest(t, app.Router, http.MethodPost, "/customers/loyalty", map[string]string{"name": "X"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "phone number is required", decodeEnvelope(t, w, nil).Message)

	w = doRequest(t, app.Router, http.MethodPost, "/customers/loyalty", map[string]string{"phone": "12ab"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid phone number", decodeEnvelope(t, w, nil).Message)

	w = doRequest(t, app.Router, http.MethodGet, "/customers/me/0899999999", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
