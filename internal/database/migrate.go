package database

import (
	"fmt"

	"gorm.io/gorm"

	"Marketplace/internal/models"
)

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Seller{},
		&models.Product{},
		&models.Transaction{},
		&models.Commission{},
		&models.Withdrawal{},
		&models.Notification{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
