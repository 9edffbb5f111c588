package database

import (
	"errors"
	"fmt"

	"github.com/yeremiapane/restaurant-qr/models"
	"github.com/yeremiapane/restaurant-qr/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Migrate creates or updates every table the server owns.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Table{},
		&models.Customer{},
		&models.QRSession{},
		&models.Notification{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	utils.InfoLogger.Println("AutoMigrate completed.")
	return nil
}

// SeedOptions describes the bootstrap data for an empty database.
type SeedOptions struct {
	AdminEmail    string
	AdminPassword string
	TableCount    int
}

// Seed inserts an admin account and numbered tables when they are missing.
// Existing rows are left alone.
func Seed(db *gorm.DB, opts SeedOptions) error {
	if opts.AdminEmail != "" {
		var admin models.User
		err := db.Where("email = ?", opts.AdminEmail).First(&admin).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			hashed, err := bcrypt.GenerateFromPassword([]byte(opts.AdminPassword), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash admin password: %w", err)
			}
			admin = models.User{
				Name:     "Administrator",
				Email:    opts.AdminEmail,
				Password: string(hashed),
				Role:     models.RoleAdmin,
			}
			if err := db.Create(&admin).Error; err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			utils.InfoLogger.Printf("Seeded admin user %s", admin.Email)
		case err != nil:
			return fmt.Errorf("lookup admin: %w", err)
		}
	}

	var count int64
	if err := db.Model(&models.Table{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count tables: %w", err)
	}
	// Meja hanya dibuat kalau database masih kosong
	for i := int(count); i < opts.TableCount; i++ {
		table := models.Table{
			TableNumber: fmt.Sprintf("T%02d", i+1),
			Status:      models.TableAvailable,
			IsActive:    true,
		}
		if err := db.Create(&table).Error; err != nil {
			return fmt.Errorf("create table %s: %w", table.TableNumber, err)
		}
	}
	return nil
}
