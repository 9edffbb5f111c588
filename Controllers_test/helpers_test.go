package Controllers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/restaurant-qr/database"
	"github.com/yeremiapane/restaurant-qr/models"
	"github.com/yeremiapane/restaurant-qr/realtime"
	"github.com/yeremiapane/restaurant-qr/router"
	"github.com/yeremiapane/restaurant-qr/services"
	"github.com/yeremiapane/restaurant-qr/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testTokenSecret = "qr-secret-for-tests"
	adminEmail      = "admin@example.com"
	adminPassword   = "secret123"
)

// setupTestDB menggunakan SQLite in-memory, satu database per test
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	utils.SilenceLoggers()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

type testApp struct {
	DB       *gorm.DB
	Hub      *realtime.Hub
	Sessions *services.SessionService
	Router   *gin.Engine
}

// setupApp memasang router lengkap di atas database test
func setupApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)

	hashed, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.User{
		Name:     "Test Admin",
		Email:    adminEmail,
		Password: string(hashed),
		Role:     models.RoleAdmin,
	}).Error)

	hub := realtime.NewHub(nil)
	notifier := services.NewNotifier(hub, nil)
	sessions := services.NewSessionService(db, services.SessionOptions{
		TokenSecret: testTokenSecret,
		Notifier:    notifier,
	})
	r := router.SetupRouter(router.Deps{
		DB:          db,
		Hub:         hub,
		Sessions:    sessions,
		Notifier:    notifier,
		Metrics:     services.NewMetrics(),
		FrontendURL: "http://localhost:3000/cus/homes",
		CORSOrigin:  "*",
	})
	return &testApp{DB: db, Hub: hub, Sessions: sessions, Router: r}
}

func (a *testApp) createTable(t *testing.T, number string) models.Table {
	t.Helper()
	table := models.Table{TableNumber: number, Status: models.TableAvailable, IsActive: true}
	require.NoError(t, a.DB.Create(&table).Error)
	return table
}

func tokenFor(t *testing.T, tableID uint) string {
	t.Helper()
	token, err := utils.SignTableToken(testTokenSecret, tableID)
	require.NoError(t, err)
	return token
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doRequest(t *testing.T, r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func loginAdmin(t *testing.T, r http.Handler) string {
	t.Helper()
	w := doRequest(t, r, http.MethodPost, "/login", map[string]string{
		"email":    adminEmail,
		"password": adminPassword,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var data struct {
		Token    string `json:"token"`
		UserRole string `json:"user_role"`
	}
	decodeEnvelope(t, w, &data)
	require.NotEmpty(t, data.Token)
	return data.Token
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}
