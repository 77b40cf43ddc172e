package db

import (
	"fmt"

	"github.com/lumenpress/lumenpress/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the tables used by the database store.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(&models.KVEntry{}); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return nil
}
