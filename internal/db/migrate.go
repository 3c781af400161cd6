package db

import (
	"fmt"

	"github.com/tubelens/tubelens/internal/models"

	"gorm.io/gorm"
)

// Migrate applies schema migrations for all persistent models.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if err := conn.AutoMigrate(
		&models.Credential{},
		&models.UsageEvent{},
	); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return nil
}
