package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/yeremiapane/restaurant-qr/httpclient"
	"github.com/yeremiapane/restaurant-qr/notification"
	"github.com/yeremiapane/restaurant-qr/session"
	"github.com/yeremiapane/restaurant-qr/storage"
)

const defaultAPI = "http://localhost:8080"

// rootConfig holds the global flags
type rootConfig struct {
	API       string
	StorePath string
	RedisAddr string
	Verbose   bool
}

// app is the client layer wired for one command run.
type app struct {
	log      *logrus.Logger
	slots    storage.Storage
	client   *httpclient.Client
	backend  *session.API
	store    *session.Store
	listener *notification.Listener
	closers  []func() error
}

func (a *app) Close() {
	if a.listener != nil {
		_ = a.listener.Close()
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.WithError(err).Warn("close failed")
		}
	}
}

// token reads the staff JWT kept by the HTTP adapter.
func (a *app) token() string {
	t, err := a.slots.Get(context.Background(), httpclient.KeyToken)
	if err != nil {
		return ""
	}
	return t
}

type appKey struct{}

func appFrom(cmd *cobra.Command) *app {
	a, _ := cmd.Context().Value(appKey{}).(*app)
	return a
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "restaurant-qr-client.db"
	}
	return filepath.Join(dir, "restaurant-qr", "client.db")
}

// NewRootCmd creates the qrclient command tree
func NewRootCmd() *cobra.Command {
	cfg := &rootConfig{}

	apiDefault := os.Getenv("API_BASE_URL")
	if apiDefault == "" {
		apiDefault = defaultAPI
	}

	cmd := &cobra.Command{
		Use:   "qrclient",
		Short: "Customer and staff client for the restaurant QR backend",
		Long: `qrclient drives the customer side of a QR table session from a terminal.

It keeps the session in a local store (a SQLite file by default, or Redis),
validates it against the backend on startup, and follows the push channel
until the bill is settled.

Examples:
  qrclient scan "http://localhost:3000/?table=12&session=AbCdEfGh12"
  qrclient status
  qrclient watch
  qrclient login --email admin@example.com --password secret123
  qrclient clear`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a := appFrom(cmd); a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfg.API, "api", apiDefault, "Backend base URL (env API_BASE_URL)")
	cmd.PersistentFlags().StringVar(&cfg.StorePath, "store", defaultStorePath(), "SQLite file holding the client session")
	cmd.PersistentFlags().StringVar(&cfg.RedisAddr, "redis", "", "Keep the client session in Redis at this address instead of SQLite")
	cmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Log client activity to stderr")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewWatchCmd())
	cmd.AddCommand(NewClearCmd())
	cmd.AddCommand(NewLoyaltyCmd())
	cmd.AddCommand(NewLoginCmd())
	cmd.AddCommand(NewLogoutCmd())

	return cmd
}

func buildApp(cfg *rootConfig) (*app, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.WarnLevel)
	if cfg.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	a := &app{log: log}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		slots, err := storage.NewRedisStorage(rdb, storage.DefaultRedisPrefix)
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to open redis store: %w", err)
		}
		a.slots = slots
		a.closers = append(a.closers, rdb.Close)
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		slots, err := storage.OpenSQLite(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		a.slots = slots
		a.closers = append(a.closers, slots.Close)
	}

	a.client = httpclient.New(cfg.API, httpclient.Options{
		Storage: a.slots,
		Logger:  log,
		OnUnauthorized: func() {
			fmt.Fprintln(os.Stderr, "Login expired, run `qrclient login` again.")
		},
	})
	a.backend = session.NewAPI(a.client)
	a.store = session.NewStore(a.backend, a.slots, session.StoreOptions{
		Tagger: a.client,
		Logger: log,
	})
	a.listener = notification.NewListener(cfg.API, notification.Options{
		Token:  a.token,
		Logger: log,
	})
	return a, nil
}

// startup reconciles the stored session and prints what happened.
func (a *app) startup(cmd *cobra.Command) (session.Outcome, error) {
	outcome, err := session.NewReconciler(a.store, a.backend, session.ReconcilerOptions{Logger: a.log}).Startup(cmd.Context())
	if err != nil {
		return outcome, err
	}
	switch outcome {
	case session.OutcomeCleared:
		fmt.Fprintln(cmd.ErrOrStderr(), "Stored session is no longer valid and was removed.")
	case session.OutcomeProvisional:
		fmt.Fprintln(cmd.ErrOrStderr(), "Backend unreachable, using the stored session as is.")
	}
	return outcome, nil
}

var errNoSession = errors.New("no QR session, scan the code on your table first")
