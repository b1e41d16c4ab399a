package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/repository"
)

// SettingsService reads and writes per-user ledger settings, falling back
// to the configured defaults for users that never saved any
type SettingsService struct {
	settingsRepo     *repository.SettingsRepository
	defaultThreshold decimal.Decimal
}

// NewSettingsService creates a new SettingsService
func NewSettingsService(settingsRepo *repository.SettingsRepository, defaultThreshold decimal.Decimal) *SettingsService {
	return &SettingsService{
		settingsRepo:     settingsRepo,
		defaultThreshold: defaultThreshold,
	}
}

// UpdateSettingsRequest represents the update settings request
type UpdateSettingsRequest struct {
	BreakevenThreshold *decimal.Decimal `json:"breakeven_threshold" binding:"required"`
}

// GetSettings returns the user's settings or the defaults
func (s *SettingsService) GetSettings(ctx context.Context, userID uint) (*models.UserSettings, error) {
	settings, err := s.settingsRepo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrSettingsNotFound) {
			return &models.UserSettings{UserID: userID, BreakevenThreshold: s.defaultThreshold}, nil
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return settings, nil
}

// BreakevenThreshold returns the band used to classify a user's trades
func (s *SettingsService) BreakevenThreshold(ctx context.Context, userID uint) (decimal.Decimal, error) {
	settings, err := s.GetSettings(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return settings.BreakevenThreshold, nil
}

// UpdateSettings saves the user's settings
func (s *SettingsService) UpdateSettings(ctx context.Context, userID uint, req *UpdateSettingsRequest) (*models.UserSettings, error) {
	if req.BreakevenThreshold == nil {
		return nil, invalid("breakeven_threshold", "required")
	}
	if req.BreakevenThreshold.IsNegative() {
		return nil, invalid("breakeven_threshold", "must not be negative")
	}

	settings := &models.UserSettings{
		UserID:             userID,
		BreakevenThreshold: req.BreakevenThreshold.Round(2),
	}
	if err := s.settingsRepo.Upsert(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}
	return settings, nil
}
