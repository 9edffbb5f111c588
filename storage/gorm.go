package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Slot is one persisted key/value pair.
type Slot struct {
	Key       string    `gorm:"column:slot_key;primaryKey;type:varchar(191)"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Slot) TableName() string {
	return "client_slots"
}

// GormStorage persists slots in a SQL table through gorm. The CLI uses it
// with a local sqlite file so a scanned session survives restarts.
type GormStorage struct {
	db *gorm.DB
}

// NewGormStorage migrates the slot table on db.
func NewGormStorage(db *gorm.DB) (*GormStorage, error) {
	if err := db.AutoMigrate(&Slot{}); err != nil {
		return nil, fmt.Errorf("migrate client slots: %w", err)
	}
	return &GormStorage{db: db}, nil
}

// OpenSQLite opens (or creates) a sqlite slot file.
func OpenSQLite(path string) (*GormStorage, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return NewGormStorage(db)
}

func (g *GormStorage) Get(ctx context.Context, key string) (string, error) {
	var slot Slot
	err := g.db.WithContext(ctx).Where("slot_key = ?", key).First(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return slot.Value, nil
}

func (g *GormStorage) Set(ctx context.Context, key, value string) error {
	slot := Slot{Key: key, Value: value, UpdatedAt: time.Now()}
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&slot).Error
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (g *GormStorage) Remove(ctx context.Context, key string) error {
	if err := g.db.WithContext(ctx).Where("slot_key = ?", key).Delete(&Slot{}).Error; err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (g *GormStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	var all []string
	if err := g.db.WithContext(ctx).Model(&Slot{}).Order("slot_key").Pluck("slot_key", &all).Error; err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	// Prefix disaring di sini, "_" adalah wildcard LIKE
	keys := all[:0]
	for _, k := range all {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Close releases the underlying connection pool.
func (g *GormStorage) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
