package utils

import (
	"sync"

	"gorm.io/gorm"
)

var (
	db *gorm.DB
	mu sync.RWMutex
)

// InitDB stores the shared database connection. Calling it again replaces
// the previous handle, which integration tests rely on.
func InitDB(database *gorm.DB) {
	mu.Lock()
	defer mu.Unlock()
	db = database
}

// GetDB returns the database connection
func GetDB() *gorm.DB {
	mu.RLock()
	defer mu.RUnlock()
	return db
}
