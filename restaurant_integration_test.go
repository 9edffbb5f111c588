package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/restaurant-qr/database"
	"github.com/yeremiapane/restaurant-qr/httpclient"
	"github.com/yeremiapane/restaurant-qr/notification"
	"github.com/yeremiapane/restaurant-qr/realtime"
	"github.com/yeremiapane/restaurant-qr/router"
	"github.com/yeremiapane/restaurant-qr/services"
	"github.com/yeremiapane/restaurant-qr/session"
	"github.com/yeremiapane/restaurant-qr/storage"
	"github.com/yeremiapane/restaurant-qr/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	integrationSecret = "integration-qr-secret"
	integrationAdmin  = "admin@resto.test"
	integrationPass   = "rahasia123"
)

func TestMain(m *testing.M) {
	utils.InitLogger()
	utils.SilenceLoggers()
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type backendServer struct {
	*httptest.Server
	Hub      *realtime.Hub
	Sessions *services.SessionService
}

// startBackend menjalankan router lengkap di atas SQLite in-memory
func startBackend(t *testing.T) *backendServer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.Seed(db, database.SeedOptions{
		AdminEmail:    integrationAdmin,
		AdminPassword: integrationPass,
		TableCount:    2,
	}))

	metrics := services.NewMetrics()
	hub := realtime.NewHub(nil)
	notifier := services.NewNotifier(hub, metrics)
	sessions := services.NewSessionService(db, services.SessionOptions{
		TokenSecret: integrationSecret,
		Notifier:    notifier,
		Metrics:     metrics,
	})
	r := router.SetupRouter(router.Deps{
		DB:          db,
		Hub:         hub,
		Sessions:    sessions,
		Notifier:    notifier,
		Metrics:     metrics,
		FrontendURL: "http://localhost:3000/cus/homes",
		CORSOrigin:  "*",
	})

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		sqlDB.Close()
	})
	return &backendServer{Server: srv, Hub: hub, Sessions: sessions}
}

type qrCode struct {
	TableID      uint   `json:"table_id"`
	TableNumber  string `json:"table_number"`
	SessionToken string `json:"session_token"`
	URL          string `json:"url"`
}

func staffClient(t *testing.T, baseURL string) *httpclient.Client {
	t.Helper()
	ctx := context.Background()
	staff := httpclient.New(baseURL, httpclient.Options{Storage: storage.NewMemoryStorage()})

	var login struct {
		Token    string `json:"token"`
		UserRole string `json:"user_role"`
	}
	require.NoError(t, staff.Do(ctx, http.MethodPost, "/login", map[string]string{
		"email":    integrationAdmin,
		"password": integrationPass,
	}, &login))
	require.NotEmpty(t, login.Token)
	require.NoError(t, staff.SetAuth(ctx, login.Token, login.UserRole))
	return staff
}

// TestEndToEndSessionLifecycle menguji flow utama:
// 1. Staff login dan ambil QR meja
// 2. Customer scan QR -> session ACTIVE
// 3. Customer connect push channel + polling
// 4. Staff tandai lunas -> session COMPLETED, polling berhenti
// 5. Aplikasi dibuka ulang -> session dipulihkan sebagai COMPLETED
func TestEndToEndSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	backend := startBackend(t)
	staff := staffClient(t, backend.URL)

	var qr qrCode
	require.NoError(t, staff.Do(ctx, http.MethodGet, "/admin/tables/1/qr", nil, &qr))
	scanURL, err := url.Parse(qr.URL)
	require.NoError(t, err)

	// Customer
	slots := storage.NewMemoryStorage()
	client := httpclient.New(backend.URL, httpclient.Options{Storage: slots})
	api := session.NewAPI(client)
	store := session.NewStore(api, slots, session.StoreOptions{Tagger: client})

	var navigated string
	intake := session.NewIntakeHandler(store, session.IntakeOptions{
		Navigate: func(target string) { navigated = target },
	})
	sess, err := intake.Handle(ctx, scanURL)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, session.StatusActive, sess.Status)
	assert.Equal(t, int64(1), sess.TableID)
	assert.Equal(t, "http://localhost:3000/cus/homes/", navigated)

	// Scan ulang dengan URL yang sama tidak membuat request baru
	again, err := intake.Handle(ctx, scanURL)
	require.NoError(t, err)
	assert.Nil(t, again)

	listener := notification.NewListener(backend.URL, notification.Options{})
	t.Cleanup(func() { listener.Close() })
	received := make(chan notification.Notification, 8)
	listener.AddListener(func(n notification.Notification) { received <- n })
	session.WatchNotifications(listener, store)
	require.NoError(t, listener.InitializeSocket(ctx, fmt.Sprint(sess.ID), notification.RoleCustomer))
	require.Eventually(t, func() bool {
		return backend.Hub.RoomSize(realtime.SessionRoom(uint(sess.ID))) == 1
	}, 2*time.Second, 10*time.Millisecond)

	reconciler := session.NewReconciler(store, api, session.ReconcilerOptions{Interval: 100 * time.Millisecond})
	require.True(t, reconciler.Start(ctx))
	t.Cleanup(reconciler.Stop)

	require.NoError(t, staff.Do(ctx, http.MethodPost, fmt.Sprintf("/admin/sessions/%d/paid", sess.ID),
		map[string]float64{"total_amount": 125000}, nil))

	select {
	case n := <-received:
		assert.Equal(t, notification.TypeSessionPaid, n.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("session_paid was not pushed")
	}
	require.Eventually(t, func() bool {
		cur := store.Current()
		return cur != nil && cur.Status == session.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !reconciler.Polling() }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, store.IsAuthenticated())

	restarted := session.NewStore(api, slots, session.StoreOptions{Tagger: client})
	outcome, err := session.NewReconciler(restarted, api, session.ReconcilerOptions{}).Startup(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeCompleted, outcome)
	assert.Equal(t, sess.ID, restarted.Current().ID)
	assert.Equal(t, session.StatusCompleted, restarted.Current().Status)
}

func TestEndToEndPollingDetectsEndedSession(t *testing.T) {
	ctx := context.Background()
	backend := startBackend(t)
	staff := staffClient(t, backend.URL)

	var qr qrCode
	require.NoError(t, staff.Do(ctx, http.MethodGet, "/admin/tables/2/qr", nil, &qr))

	slots := storage.NewMemoryStorage()
	client := httpclient.New(backend.URL, httpclient.Options{Storage: slots})
	api := session.NewAPI(client)
	store := session.NewStore(api, slots, session.StoreOptions{Tagger: client})

	sess, err := store.CreateSession(ctx, int64(qr.TableID), qr.SessionToken)
	require.NoError(t, err)

	// Tanpa push channel, polling yang mendeteksi session selesai
	reconciler := session.NewReconciler(store, api, session.ReconcilerOptions{Interval: 50 * time.Millisecond})
	require.True(t, reconciler.Start(ctx))
	t.Cleanup(reconciler.Stop)

	require.NoError(t, staff.Do(ctx, http.MethodPut, fmt.Sprintf("/admin/sessions/%d/end", sess.ID), nil, nil))
	require.Eventually(t, func() bool {
		cur := store.Current()
		return cur != nil && cur.Status == session.StatusCompleted
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !reconciler.Polling() }, 2*time.Second, 10*time.Millisecond)
}

func TestEndToEndRejectedScan(t *testing.T) {
	ctx := context.Background()
	backend := startBackend(t)

	slots := storage.NewMemoryStorage()
	client := httpclient.New(backend.URL, httpclient.Options{Storage: slots})
	store := session.NewStore(session.NewAPI(client), slots, session.StoreOptions{Tagger: client})

	var messages []string
	intake := session.NewIntakeHandler(store, session.IntakeOptions{
		OnError: func(m string) { messages = append(messages, m) },
	})
	u, err := url.Parse("http://localhost:3000/?table=1&session=AbCdEfGh12")
	require.NoError(t, err)

	_, err = intake.Handle(ctx, u)
	require.Error(t, err)
	assert.Equal(t, []string{services.ErrInvalidToken.Error()}, messages)
	assert.Nil(t, store.Current())
	assert.Empty(t, client.SessionID())
}
