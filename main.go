package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/yeremiapane/restaurant-qr/config"
	"github.com/yeremiapane/restaurant-qr/database"
	"github.com/yeremiapane/restaurant-qr/realtime"
	"github.com/yeremiapane/restaurant-qr/router"
	"github.com/yeremiapane/restaurant-qr/services"
	"github.com/yeremiapane/restaurant-qr/utils"
)

func main() {
	utils.InitLogger()

	// Load .env
	if err := godotenv.Load(); err != nil {
		utils.InfoLogger.Println("Warning: .env file not found")
	}

	cfg, err := config.Load()
	if err != nil {
		utils.ErrorLogger.Fatalf("Invalid configuration: %v", err)
	}
	utils.SetLogLevel(cfg.LogLevel)
	utils.SetJWTSecret(cfg.JWTSecret)
	if cfg.JWTSecret == "" {
		utils.ErrorLogger.Warn("JWT_SECRET is not set, using the development secret")
	}
	if cfg.QRTokenSecret == "" {
		utils.ErrorLogger.Warn("QR_TOKEN_SECRET is not set, QR tokens are only checked for shape")
	}

	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize DB
	db, err := config.InitDB(cfg)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}
	utils.InitDB(db)

	if err := database.Migrate(db); err != nil {
		utils.ErrorLogger.Fatalf("Failed to AutoMigrate: %v", err)
	}
	if err := database.Seed(db, database.SeedOptions{
		AdminEmail:    cfg.AdminEmail,
		AdminPassword: cfg.AdminPassword,
		TableCount:    cfg.SeedTables,
	}); err != nil {
		utils.ErrorLogger.Printf("Seed failed: %v", err)
	}

	metrics := services.NewMetrics()
	hub := realtime.NewHub(utils.InfoLogger)
	notifier := services.NewNotifier(hub, metrics)
	sessions := services.NewSessionService(db, services.SessionOptions{
		TokenSecret: cfg.QRTokenSecret,
		Duration:    cfg.SessionDuration,
		Notifier:    notifier,
		Metrics:     metrics,
	})

	monitor := services.NewExpiryMonitor(sessions)
	monitor.Interval = cfg.ExpiryCheckInterval
	monitor.Start()
	defer monitor.Stop()

	r := router.SetupRouter(router.Deps{
		DB:          db,
		Hub:         hub,
		Sessions:    sessions,
		Notifier:    notifier,
		Metrics:     metrics,
		FrontendURL: cfg.FrontendURL,
		CORSOrigin:  cfg.CORSOrigin,
	})
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		utils.ErrorLogger.Printf("Set trusted proxies: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.ErrorLogger.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.InfoLogger.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		utils.ErrorLogger.Printf("Server forced to shutdown: %v", err)
	}
}
