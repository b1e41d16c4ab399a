package repository

import (
	"context"
	"errors"
	"time"

	"github.com/trade-ledger/internal/models"
	"gorm.io/gorm"
)

var (
	ErrTradeNotFound = errors.New("trade not found")
)

// batchSize bounds rows per INSERT and ids per IN clause
const batchSize = 200

// TradeFilter selects trades for a single user
type TradeFilter struct {
	UserID    uint
	AccountID *uint
	Symbol    string
	Status    models.TradeStatus
	// From and To bound entry_time, both inclusive
	From *time.Time
	To   *time.Time
	// Deleted returns only soft-deleted trades (the trash view)
	Deleted bool

	Page     int
	PageSize int
}

// TradeRepository handles trade data access
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new TradeRepository
func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

func (r *TradeRepository) scoped(ctx context.Context, f TradeFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Trade{})
	if f.Deleted {
		q = q.Unscoped().Where("deleted_at IS NOT NULL")
	}
	q = q.Where("user_id = ?", f.UserID)

	if f.AccountID != nil {
		q = q.Where("account_id = ?", *f.AccountID)
	}
	if f.Symbol != "" {
		q = q.Where("symbol = ?", f.Symbol)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("entry_time >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("entry_time <= ?", *f.To)
	}
	return q
}

// Find returns the trades matching the filter, newest first, and the total
// count before pagination. A zero PageSize returns every match.
func (r *TradeRepository) Find(ctx context.Context, f TradeFilter) ([]models.Trade, int64, error) {
	var trades []models.Trade
	var total int64

	if err := r.scoped(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q := r.scoped(ctx, f).Order("entry_time DESC").Order("id DESC")
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		q = q.Offset((page - 1) * f.PageSize).Limit(f.PageSize)
	}

	if err := q.Find(&trades).Error; err != nil {
		return nil, 0, err
	}
	return trades, total, nil
}

// FindByID retrieves a trade owned by userID. Soft-deleted trades are only
// returned when includeDeleted is set.
func (r *TradeRepository) FindByID(ctx context.Context, userID, id uint, includeDeleted bool) (*models.Trade, error) {
	q := r.db.WithContext(ctx)
	if includeDeleted {
		q = q.Unscoped()
	}

	var trade models.Trade
	result := q.Where("id = ? AND user_id = ?", id, userID).First(&trade)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrTradeNotFound
		}
		return nil, result.Error
	}
	return &trade, nil
}

// Insert creates a new trade
func (r *TradeRepository) Insert(ctx context.Context, trade *models.Trade) error {
	return r.db.WithContext(ctx).Create(trade).Error
}

// InsertBatch creates every trade in one transaction; on failure none persist
func (r *TradeRepository) InsertBatch(ctx context.Context, trades []*models.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(trades, batchSize).Error
	})
}

// Update writes every column of a live trade except its deletion marker. A
// trade deleted after it was read is left in the trash.
func (r *TradeRepository) Update(ctx context.Context, trade *models.Trade) error {
	result := r.db.WithContext(ctx).Model(trade).
		Where("user_id = ?", trade.UserID).
		Select("*").
		Omit("id", "created_at", "deleted_at").
		Updates(trade)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTradeNotFound
	}
	return nil
}

// UpdateComputed rewrites only the derived P&L and exit-trigger columns
func (r *TradeRepository) UpdateComputed(ctx context.Context, trade *models.Trade) error {
	return r.db.WithContext(ctx).Model(&models.Trade{}).
		Where("id = ?", trade.ID).
		Updates(map[string]interface{}{
			"realized_pnl":      trade.RealizedPnl,
			"net_pnl":           trade.NetPnl,
			"stop_loss_hit":     trade.StopLossHit,
			"take_profit_hit":   trade.TakeProfitHit,
			"exit_flags_source": trade.ExitFlagsSource,
		}).Error
}

// SoftDelete marks a live trade deleted
func (r *TradeRepository) SoftDelete(ctx context.Context, userID, id uint) error {
	result := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Trade{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTradeNotFound
	}
	return nil
}

// Restore clears the deletion marker. Status is left untouched, so a trade
// comes back in the state it was deleted from.
func (r *TradeRepository) Restore(ctx context.Context, userID, id uint) error {
	result := r.db.WithContext(ctx).Unscoped().Model(&models.Trade{}).
		Where("id = ? AND user_id = ? AND deleted_at IS NOT NULL", id, userID).
		Update("deleted_at", nil)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTradeNotFound
	}
	return nil
}

// Purge permanently removes a soft-deleted trade
func (r *TradeRepository) Purge(ctx context.Context, userID, id uint) error {
	result := r.db.WithContext(ctx).Unscoped().
		Where("id = ? AND user_id = ? AND deleted_at IS NOT NULL", id, userID).
		Delete(&models.Trade{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTradeNotFound
	}
	return nil
}

// ExistingExternalIDs returns which of ids the user already has, deleted
// trades included since they still hold the unique key
func (r *TradeRepository) ExistingExternalIDs(ctx context.Context, userID uint, ids []string) (map[string]bool, error) {
	existing := make(map[string]bool)

	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}

		var found []string
		err := r.db.WithContext(ctx).Unscoped().Model(&models.Trade{}).
			Where("user_id = ? AND external_id IN ?", userID, ids[start:end]).
			Pluck("external_id", &found).Error
		if err != nil {
			return nil, err
		}
		for _, id := range found {
			existing[id] = true
		}
	}
	return existing, nil
}

// ClosedAfter pages through live closed trades by id for recomputation.
// A zero userID covers every user.
func (r *TradeRepository) ClosedAfter(ctx context.Context, userID, afterID uint, limit int) ([]models.Trade, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND id > ?", models.TradeStatusClosed, afterID)
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}

	var trades []models.Trade
	result := q.Order("id ASC").Limit(limit).Find(&trades)
	return trades, result.Error
}

// clearAccount detaches every trade of a user from an account, deleted
// trades included
func clearAccount(tx *gorm.DB, userID, accountID uint) error {
	return tx.Unscoped().Model(&models.Trade{}).
		Where("user_id = ? AND account_id = ?", userID, accountID).
		Update("account_id", nil).Error
}
