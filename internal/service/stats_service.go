package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trade-ledger/internal/importer"
	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/repository"
	"github.com/trade-ledger/internal/stats"
)

// ThresholdSource supplies a user's breakeven threshold
type ThresholdSource interface {
	BreakevenThreshold(ctx context.Context, userID uint) (decimal.Decimal, error)
}

// StatsService summarizes a user's closed trades
type StatsService struct {
	store      TradeStore
	thresholds ThresholdSource
}

// NewStatsService creates a new StatsService
func NewStatsService(store TradeStore, thresholds ThresholdSource) *StatsService {
	return &StatsService{store: store, thresholds: thresholds}
}

// StatsQuery narrows the trades a snapshot covers
type StatsQuery struct {
	AccountID *uint      `form:"account_id"`
	Symbol    string     `form:"symbol"`
	From      *time.Time `form:"from"`
	To        *time.Time `form:"to"`
}

// Snapshot returns statistics over the user's live closed trades
func (s *StatsService) Snapshot(ctx context.Context, userID uint, q StatsQuery) (*stats.Snapshot, error) {
	threshold, err := s.thresholds.BreakevenThreshold(ctx, userID)
	if err != nil {
		return nil, err
	}

	trades, _, err := s.store.Find(ctx, repository.TradeFilter{
		UserID:    userID,
		AccountID: q.AccountID,
		Symbol:    importer.NormalizeSymbol(q.Symbol),
		Status:    models.TradeStatusClosed,
		From:      q.From,
		To:        q.To,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}

	samples := make([]stats.Sample, 0, len(trades))
	for _, t := range trades {
		if t.NetPnl == nil {
			continue
		}
		samples = append(samples, stats.Sample{Symbol: t.Symbol, NetPnl: *t.NetPnl, Fees: t.Fees})
	}

	snap := stats.Summarize(samples, threshold)
	return &snap, nil
}
