package utils

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	SetJWTSecret("unit-test-secret")
	defer SetJWTSecret("")

	token, err := GenerateToken(7, "staff")
	require.NoError(t, err)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "staff", claims.Role)

	SetJWTSecret("another-secret")
	_, err = ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenExpired(t *testing.T) {
	old := TokenTTL
	TokenTTL = -time.Minute
	defer func() { TokenTTL = old }()

	token, err := GenerateToken(1, "admin")
	require.NoError(t, err)
	_, err = ParseToken(token)
	assert.Error(t, err)
}

func TestTableTokens(t *testing.T) {
	token, err := SignTableToken("s3cret", 12)
	require.NoError(t, err)
	assert.Len(t, token, qrTokenLength)
	assert.True(t, IsWellFormedSessionToken(token))

	assert.True(t, VerifyTableToken("s3cret", 12, token))
	assert.False(t, VerifyTableToken("s3cret", 13, token))
	assert.False(t, VerifyTableToken("other", 12, token))

	// Tanpa secret hanya bentuk token yang dicek
	assert.True(t, VerifyTableToken("", 99, "AbCdEfGh12"))
	assert.False(t, VerifyTableToken("", 99, "short"))
	assert.False(t, VerifyTableToken("", 99, "has-dash-123"))
}

func TestRespondHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondJSON(c, http.StatusCreated, "created", gin.H{"id": 1})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"status":true,"message":"created","data":{"id":1}}`, w.Body.String())

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	RespondError(c, http.StatusBadRequest, errors.New("nothing to update"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"status":false,"message":"nothing to update"}`, w.Body.String())
}
