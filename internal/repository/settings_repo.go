package repository

import (
	"context"
	"errors"

	"github.com/trade-ledger/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrSettingsNotFound = errors.New("settings not found")
)

// SettingsRepository handles per-user ledger settings
type SettingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new SettingsRepository
func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the saved settings of a user
func (r *SettingsRepository) Get(ctx context.Context, userID uint) (*models.UserSettings, error) {
	var settings models.UserSettings
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&settings)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSettingsNotFound
		}
		return nil, result.Error
	}
	return &settings, nil
}

// Upsert inserts or replaces the settings of a user
func (r *SettingsRepository) Upsert(ctx context.Context, settings *models.UserSettings) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"breakeven_threshold", "updated_at"}),
	}).Create(settings).Error
}
