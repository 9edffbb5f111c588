// Package config reads server settings from the environment and opens the
// database connection.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port                string        `env:"PORT" envDefault:"8080"`
	GinMode             string        `env:"GIN_MODE" envDefault:"debug"`
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"info"`
	DBDriver            string        `env:"DB_DRIVER" envDefault:"mysql"`
	DBDSN               string        `env:"DB_DSN"`
	JWTSecret           string        `env:"JWT_SECRET"`
	QRTokenSecret       string        `env:"QR_TOKEN_SECRET"`
	FrontendURL         string        `env:"FRONTEND_URL" envDefault:"http://localhost:3000/cus/homes"`
	CORSOrigin          string        `env:"CORS_ORIGIN" envDefault:"http://127.0.0.1:5500"`
	SessionDuration     time.Duration `env:"SESSION_DURATION" envDefault:"24h"`
	ExpiryCheckInterval time.Duration `env:"EXPIRY_CHECK_INTERVAL" envDefault:"1m"`
	AdminEmail          string        `env:"ADMIN_EMAIL"`
	AdminPassword       string        `env:"ADMIN_PASSWORD"`
	SeedTables          int           `env:"SEED_TABLES" envDefault:"10"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if cfg.SessionDuration <= 0 {
		return nil, fmt.Errorf("SESSION_DURATION must be positive, got %s", cfg.SessionDuration)
	}
	return cfg, nil
}

// Dialector picks the gorm driver for DB_DRIVER.
func (c *Config) Dialector() (gorm.Dialector, error) {
	switch c.DBDriver {
	case "mysql":
		dsn := c.DBDSN
		if dsn == "" {
			dsn = "root:@tcp(127.0.0.1:3306)/restaurant_qr?charset=utf8mb4&parseTime=True&loc=Local"
		}
		return mysql.Open(dsn), nil
	case "postgres", "postgresql":
		if c.DBDSN == "" {
			return nil, fmt.Errorf("DB_DSN is required for postgres")
		}
		return postgres.Open(c.DBDSN), nil
	case "sqlite", "sqlite3":
		dsn := c.DBDSN
		if dsn == "" {
			dsn = "restaurant_qr.db"
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
}

// InitDB opens the configured database.
func InitDB(c *Config) (*gorm.DB, error) {
	dialector, err := c.Dialector()
	if err != nil {
		return nil, err
	}
	gormCfg := &gorm.Config{}
	if c.GinMode == "release" {
		gormCfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.DBDriver, err)
	}
	return db, nil
}
