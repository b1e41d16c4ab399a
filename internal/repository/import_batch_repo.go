package repository

import (
	"context"
	"errors"

	"github.com/trade-ledger/internal/models"
	"gorm.io/gorm"
)

var (
	ErrImportNotFound = errors.New("import not found")
)

// ImportBatchRepository stores the audit record of each import
type ImportBatchRepository struct {
	db *gorm.DB
}

// NewImportBatchRepository creates a new ImportBatchRepository
func NewImportBatchRepository(db *gorm.DB) *ImportBatchRepository {
	return &ImportBatchRepository{db: db}
}

// Create creates a new import batch record
func (r *ImportBatchRepository) Create(ctx context.Context, batch *models.ImportBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

// GetByIDAndUserID retrieves an import batch owned by userID
func (r *ImportBatchRepository) GetByIDAndUserID(ctx context.Context, id string, userID uint) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	result := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&batch)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrImportNotFound
		}
		return nil, result.Error
	}
	return &batch, nil
}

// ListByUserID returns the most recent imports of a user
func (r *ImportBatchRepository) ListByUserID(ctx context.Context, userID uint, limit int) ([]models.ImportBatch, error) {
	var batches []models.ImportBatch
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&batches)
	return batches, result.Error
}
