package repository

import (
	"github.com/trade-ledger/internal/models"
	"gorm.io/gorm"
)

// AutoMigrate creates or updates every ledger table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.Trade{},
		&models.UserSettings{},
		&models.ImportBatch{},
	)
}
