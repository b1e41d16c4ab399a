package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trade-ledger/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return db
}

func newTrade(userID uint, symbol string, entry time.Time) *models.Trade {
	return &models.Trade{
		UserID:          userID,
		Symbol:          symbol,
		InstrumentType:  models.InstrumentFutures,
		Direction:       models.DirectionLong,
		EntryPrice:      decimal.RequireFromString("5000"),
		Quantity:        decimal.NewFromInt(1),
		EntryTime:       entry,
		Fees:            decimal.Zero,
		Status:          models.TradeStatusOpen,
		ImportSource:    models.ImportSourceManual,
		ExitFlagsSource: models.ExitFlagsComputed,
	}
}

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestTradeRepository_FindScopesByUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTradeRepository(db)
	ctx := context.Background()

	base := time.Date(2024, 12, 2, 9, 30, 0, 0, time.UTC)
	require.NoError(t, repo.Insert(ctx, newTrade(1, "ES", base)))
	require.NoError(t, repo.Insert(ctx, newTrade(1, "NQ", base.Add(time.Hour))))
	require.NoError(t, repo.Insert(ctx, newTrade(2, "ES", base)))

	trades, total, err := repo.Find(ctx, TradeFilter{UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, trades, 2)
	// newest first
	assert.Equal(t, "NQ", trades[0].Symbol)

	trades, total, err = repo.Find(ctx, TradeFilter{UserID: 1, Symbol: "ES"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, trades, 1)

	from := base.Add(30 * time.Minute)
	trades, _, err = repo.Find(ctx, TradeFilter{UserID: 1, From: &from})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "NQ", trades[0].Symbol)
}

func TestTradeRepository_Pagination(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTradeRepository(db)
	ctx := context.Background()

	base := time.Date(2024, 12, 2, 9, 30, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Insert(ctx, newTrade(1, "ES", base.Add(time.Duration(i)*time.Minute))))
	}

	trades, total, err := repo.Find(ctx, TradeFilter{UserID: 1, Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, trades, 2)
}

func TestTradeRepository_FindByIDOwnership(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTradeRepository(db)
	ctx := context.Background()

	trade := newTrade(1, "ES", time.Now().UTC())
	require.NoError(t, repo.Insert(ctx, trade))

	got, err := repo.FindByID(ctx, 1, trade.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "ES", got.Symbol)

	_, err = repo.FindByID(ctx, 2, trade.ID, false)
	assert.ErrorIs(t, err, ErrTradeNotFound)

	_, err = repo.FindByID(ctx, 1, trade.ID+100, false)
	assert.ErrorIs(t, err, ErrTradeNotFound)
}

func TestTradeRepository_SoftDeleteRestorePurge(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTradeRepository(db)
	ctx := context.Background()

	trade := newTrade(1, "ES", time.Now().UTC())
	trade.Status = models.TradeStatusClosed
	require.NoError(t, repo.Insert(ctx, trade))

	// purge is only allowed from the deleted state
	assert.ErrorIs(t, repo.Purge(ctx, 1, trade.ID), ErrTradeNotFound)
	assert.ErrorIs(t, repo.Restore(ctx, 1, trade.ID), ErrTradeNotFound)

	require.NoError(t, repo.SoftDelete(ctx, 1, trade.ID))
	assert.ErrorIs(t, repo.SoftDelete(ctx, 1, trade.ID), ErrTradeNotFound)

	_, err := repo.FindByID(ctx, 1, trade.ID, false)
	assert.ErrorIs(t, err, ErrTradeNotFound)

	deleted, err := repo.FindByID(ctx, 1, trade.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStateDeleted, deleted.State())

	trash, total, err := repo.Find(ctx, TradeFilter{UserID: 1, Deleted: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, trash, 1)

	live, _, err := repo.Find(ctx, TradeFilter{UserID: 1})
	require.NoError(t, err)
	assert.Empty(t, live)

	// foreign user cannot restore
	assert.ErrorIs(t, repo.Restore(ctx, 2, trade.ID), ErrTradeNotFound)

	require.NoError(t, repo.Restore(ctx, 1, trade.ID))
	restored, err := repo.FindByID(ctx, 1, trade.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStateClosed, restored.State())

	require.NoError(t, repo.SoftDelete(ctx, 1, trade.ID))
	require.NoError(t, repo.Purge(ctx, 1, trade.ID))

	_, err = repo.FindByID(ctx, 1, trade.ID, true)
	assert.ErrorIs(t, err, ErrTradeNotFound)
}

func TestTradeRepository_UpdateKeepsConcurrentDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTradeRepository(db)
	ctx := context.Background()

	trade := newTrade(1, "ES", time.Now().UTC())
	trade.StopLoss = decPtr("4990")
	require.NoError(t, repo.Insert(ctx, trade))

	stale, err := repo.FindByID(ctx, 1, trade.ID, false)
	require.NoError(t, err)
	require.NoError(t, repo.SoftDelete(ctx, 1, trade.ID))

	stale.Notes = "edited after delete"
	assert.ErrorIs(t, repo.Update(ctx, stale), ErrTradeNotFound)

	got, err := repo.FindByID(ctx, 1, trade.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStateDeleted, got.State())
	assert.Empty(t, got.Notes)

	// live trades are fully rewritten, nil pointers included
	require.NoError(t, repo.Restore(ctx, 1, trade.ID))
	live, err := repo.FindByID(ctx, 1, trade.ID, false)
	require.NoError(t, err)
	live.StopLoss = nil
	live.Notes = "reviewed"
	require.NoError(t, repo.Update(ctx, live))

	got, err = repo.FindByID(ctx, 1, trade.ID, false)
	require.NoError(t, err)
	assert.Nil(t, got.StopLoss)
	assert.Equal(t, "reviewed", got.Notes)

	// another user's id never matches
	live.UserID = 2
	assert.ErrorIs(t, repo.Update(ctx, live), ErrTradeNotFound)
}

func TestTradeRepository_InsertBatchIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTradeRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	a := newTrade(1, "ES", now)
	a.ExternalID = strPtr("generic:a")
	b := newTrade(1, "NQ", now)
	b.ExternalID = strPtr("generic:a") // violates the unique key

	err := repo.InsertBatch(ctx, []*models.Trade{a, b})
	require.Error(t, err)

	_, total, err := repo.Find(ctx, TradeFilter{UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	c := newTrade(1, "ES", now)
	c.ExternalID = strPtr("generic:c")
	d := newTrade(1, "NQ", now)
	d.ExternalID = strPtr("generic:d")
	require.NoError(t, repo.InsertBatch(ctx, []*models.Trade{c, d}))

	_, total, err = repo.Find(ctx, TradeFilter{UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestTradeRepository_ExistingExternalIDs(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTradeRepository(db)
	ctx := context.Background()

	a := newTrade(1, "ES", time.Now().UTC())
	a.ExternalID = strPtr("topstepx:1")
	require.NoError(t, repo.Insert(ctx, a))
	require.NoError(t, repo.SoftDelete(ctx, 1, a.ID))

	b := newTrade(2, "ES", time.Now().UTC())
	b.ExternalID = strPtr("topstepx:2")
	require.NoError(t, repo.Insert(ctx, b))

	existing, err := repo.ExistingExternalIDs(ctx, 1, []string{"topstepx:1", "topstepx:2", "topstepx:3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"topstepx:1": true}, existing)
}

func TestTradeRepository_ClosedAfterAndUpdateComputed(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTradeRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	open := newTrade(1, "ES", now)
	require.NoError(t, repo.Insert(ctx, open))

	closed := newTrade(1, "ES", now)
	closed.Status = models.TradeStatusClosed
	require.NoError(t, repo.Insert(ctx, closed))

	other := newTrade(2, "ES", now)
	other.Status = models.TradeStatusClosed
	require.NoError(t, repo.Insert(ctx, other))

	all, err := repo.ClosedAfter(ctx, 0, 0, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := repo.ClosedAfter(ctx, 1, 0, 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, closed.ID, mine[0].ID)

	pnl := decimal.RequireFromString("500.00")
	closed.RealizedPnl = &pnl
	closed.NetPnl = &pnl
	closed.StopLossHit = true
	require.NoError(t, repo.UpdateComputed(ctx, closed))

	got, err := repo.FindByID(ctx, 1, closed.ID, false)
	require.NoError(t, err)
	require.NotNil(t, got.NetPnl)
	assert.True(t, got.NetPnl.Equal(pnl))
	assert.True(t, got.StopLossHit)
}

func TestAccountRepository_DeleteDetachesTrades(t *testing.T) {
	db := setupTestDB(t)
	accounts := NewAccountRepository(db)
	trades := NewTradeRepository(db)
	ctx := context.Background()

	acct := &models.Account{UserID: 1, Name: "Combine 50K", Platform: models.PlatformTopstepX}
	require.NoError(t, accounts.Create(ctx, acct))

	trade := newTrade(1, "ES", time.Now().UTC())
	trade.AccountID = &acct.ID
	require.NoError(t, trades.Insert(ctx, trade))

	assert.ErrorIs(t, accounts.Delete(ctx, 2, acct.ID), ErrAccountNotFound)
	require.NoError(t, accounts.Delete(ctx, 1, acct.ID))

	_, err := accounts.GetByIDAndUserID(ctx, acct.ID, 1)
	assert.ErrorIs(t, err, ErrAccountNotFound)

	got, err := trades.FindByID(ctx, 1, trade.ID, false)
	require.NoError(t, err)
	assert.Nil(t, got.AccountID)
}

func TestSettingsRepository_Upsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSettingsRepository(db)
	ctx := context.Background()

	_, err := repo.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrSettingsNotFound)

	require.NoError(t, repo.Upsert(ctx, &models.UserSettings{UserID: 1, BreakevenThreshold: decimal.RequireFromString("5.00")}))
	require.NoError(t, repo.Upsert(ctx, &models.UserSettings{UserID: 1, BreakevenThreshold: decimal.RequireFromString("2.50")}))

	got, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.BreakevenThreshold.Equal(decimal.RequireFromString("2.5")))
}

func TestImportBatchRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewImportBatchRepository(db)
	ctx := context.Background()

	batch := &models.ImportBatch{ID: "5f1c2b4e-0000-4000-8000-000000000001", UserID: 1, Platform: "generic", TotalRows: 3, Imported: 2}
	require.NoError(t, repo.Create(ctx, batch))

	got, err := repo.GetByIDAndUserID(ctx, batch.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Imported)

	_, err = repo.GetByIDAndUserID(ctx, batch.ID, 2)
	assert.ErrorIs(t, err, ErrImportNotFound)

	list, err := repo.ListByUserID(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
