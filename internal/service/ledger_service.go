package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trade-ledger/internal/importer"
	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/pnl"
	"github.com/trade-ledger/internal/repository"
)

const (
	defaultPageSize   = 50
	maxPageSize       = 200
	recomputePageSize = 500
)

// TradeStore is the persistence the ledger depends on
type TradeStore interface {
	Find(ctx context.Context, f repository.TradeFilter) ([]models.Trade, int64, error)
	FindByID(ctx context.Context, userID, id uint, includeDeleted bool) (*models.Trade, error)
	Insert(ctx context.Context, trade *models.Trade) error
	InsertBatch(ctx context.Context, trades []*models.Trade) error
	Update(ctx context.Context, trade *models.Trade) error
	UpdateComputed(ctx context.Context, trade *models.Trade) error
	SoftDelete(ctx context.Context, userID, id uint) error
	Restore(ctx context.Context, userID, id uint) error
	Purge(ctx context.Context, userID, id uint) error
	ExistingExternalIDs(ctx context.Context, userID uint, ids []string) (map[string]bool, error)
	ClosedAfter(ctx context.Context, userID, afterID uint, limit int) ([]models.Trade, error)
}

// AccountLookup resolves a broker account owned by a user
type AccountLookup interface {
	GetByIDAndUserID(ctx context.Context, id, userID uint) (*models.Account, error)
}

// LedgerService owns the trade lifecycle. It is the only writer of P&L and
// exit trigger fields.
type LedgerService struct {
	store    TradeStore
	accounts AccountLookup
	maxBatch int
	now      func() time.Time
	log      zerolog.Logger
}

// NewLedgerService creates a new LedgerService. accounts may be nil, in
// which case account ids are stored unchecked.
func NewLedgerService(store TradeStore, accounts AccountLookup, maxBatch int, log zerolog.Logger) *LedgerService {
	return &LedgerService{
		store:    store,
		accounts: accounts,
		maxBatch: maxBatch,
		now:      time.Now,
		log:      log.With().Str("service", "ledger").Logger(),
	}
}

// CreateTradeRequest represents a manually entered trade
type CreateTradeRequest struct {
	AccountID      *uint                 `json:"account_id"`
	Symbol         string                `json:"symbol" binding:"required"`
	InstrumentType models.InstrumentType `json:"instrument_type"`
	Direction      models.Direction      `json:"direction" binding:"required"`
	EntryPrice     *decimal.Decimal      `json:"entry_price" binding:"required"`
	Quantity       *decimal.Decimal      `json:"quantity" binding:"required"`
	EntryTime      *time.Time            `json:"entry_time" binding:"required"`
	ExitPrice      *decimal.Decimal      `json:"exit_price"`
	ExitTime       *time.Time            `json:"exit_time"`
	Fees           *decimal.Decimal      `json:"fees"`
	StopLoss       *decimal.Decimal      `json:"stop_loss"`
	TakeProfit     *decimal.Decimal      `json:"take_profit"`
	Notes          string                `json:"notes"`
	Tags           string                `json:"tags"`
}

// CloseTradeRequest closes an open trade. ExitTime defaults to now.
type CloseTradeRequest struct {
	ExitPrice *decimal.Decimal `json:"exit_price" binding:"required"`
	ExitTime  *time.Time       `json:"exit_time"`
	Fees      *decimal.Decimal `json:"fees"`
}

// UpdateTradeRequest is a partial edit; nil fields are left untouched
type UpdateTradeRequest struct {
	AccountID       *uint                  `json:"account_id"`
	Symbol          *string                `json:"symbol"`
	InstrumentType  *models.InstrumentType `json:"instrument_type"`
	Direction       *models.Direction      `json:"direction"`
	EntryPrice      *decimal.Decimal       `json:"entry_price"`
	Quantity        *decimal.Decimal       `json:"quantity"`
	EntryTime       *time.Time             `json:"entry_time"`
	ExitPrice       *decimal.Decimal       `json:"exit_price"`
	ExitTime        *time.Time             `json:"exit_time"`
	Fees            *decimal.Decimal       `json:"fees"`
	StopLoss        *decimal.Decimal       `json:"stop_loss"`
	TakeProfit      *decimal.Decimal       `json:"take_profit"`
	ClearStopLoss   bool                   `json:"clear_stop_loss"`
	ClearTakeProfit bool                   `json:"clear_take_profit"`
	Notes           *string                `json:"notes"`
	Tags            *string                `json:"tags"`
}

// ListTradesQuery filters and pages the trade list
type ListTradesQuery struct {
	AccountID *uint              `form:"account_id"`
	Symbol    string             `form:"symbol"`
	Status    models.TradeStatus `form:"status"`
	From      *time.Time         `form:"from"`
	To        *time.Time         `form:"to"`
	Deleted   bool               `form:"deleted"`
	Page      int                `form:"page"`
	PageSize  int                `form:"page_size"`
}

// TradeView is a trade as returned to clients
type TradeView struct {
	models.Trade
	State     models.TradeState `json:"state"`
	RMultiple *decimal.Decimal  `json:"r_multiple,omitempty"`
}

// TradePage is one page of the trade list
type TradePage struct {
	Trades   []TradeView `json:"trades"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// RecomputeResult reports a recompute pass
type RecomputeResult struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
}

// NewTradeView decorates a trade with its state and, when closed with a
// stop set, its R-multiple
func NewTradeView(t *models.Trade) TradeView {
	v := TradeView{Trade: *t, State: t.State()}
	if t.IsClosed() && t.ExitPrice != nil {
		if r, ok := pnl.RMultiple(t.Direction, t.EntryPrice, *t.ExitPrice, t.StopLoss); ok {
			v.RMultiple = &r
		}
	}
	return v
}

// Create records a manual trade. It is closed when both exit price and
// exit time are given, otherwise open.
func (s *LedgerService) Create(ctx context.Context, userID uint, req CreateTradeRequest) (*models.Trade, error) {
	switch {
	case req.EntryPrice == nil:
		return nil, invalid("entry_price", "required")
	case req.Quantity == nil:
		return nil, invalid("quantity", "required")
	case req.EntryTime == nil:
		return nil, invalid("entry_time", "required")
	}

	t := &models.Trade{
		UserID:          userID,
		AccountID:       req.AccountID,
		Symbol:          importer.NormalizeSymbol(req.Symbol),
		InstrumentType:  models.InstrumentType(strings.ToLower(string(req.InstrumentType))),
		Direction:       models.Direction(strings.ToLower(string(req.Direction))),
		EntryPrice:      *req.EntryPrice,
		Quantity:        *req.Quantity,
		EntryTime:       req.EntryTime.UTC(),
		ExitPrice:       req.ExitPrice,
		ExitTime:        utcPtr(req.ExitTime),
		Fees:            decimal.Zero,
		StopLoss:        req.StopLoss,
		TakeProfit:      req.TakeProfit,
		ExitFlagsSource: models.ExitFlagsComputed,
		ImportSource:    models.ImportSourceManual,
		Notes:           req.Notes,
		Tags:            req.Tags,
	}
	if req.Fees != nil {
		t.Fees = *req.Fees
	}
	if t.InstrumentType == "" {
		t.InstrumentType = importer.InferInstrumentType(t.Symbol, models.InstrumentFutures)
	}

	if err := validateManual(t); err != nil {
		return nil, err
	}
	if err := s.checkAccount(ctx, userID, t.AccountID); err != nil {
		return nil, err
	}

	settle(t, true)

	if err := s.store.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create trade: %w", err)
	}

	s.log.Debug().Uint("user_id", userID).Uint("trade_id", t.ID).Str("status", string(t.Status)).Msg("trade created")
	return t, nil
}

// Close records the exit of an open trade and computes its P&L
func (s *LedgerService) Close(ctx context.Context, userID, id uint, req CloseTradeRequest) (*models.Trade, error) {
	if req.ExitPrice == nil {
		return nil, invalid("exit_price", "required")
	}

	t, err := s.owned(ctx, userID, id, false)
	if err != nil {
		return nil, err
	}
	if t.IsClosed() {
		return nil, fmt.Errorf("%w: trade is already closed", ErrInvalidTransition)
	}

	exitTime := s.now().UTC()
	if req.ExitTime != nil {
		exitTime = req.ExitTime.UTC()
	}
	t.ExitPrice = req.ExitPrice
	t.ExitTime = &exitTime
	if req.Fees != nil {
		t.Fees = *req.Fees
	}

	if err := validateManual(t); err != nil {
		return nil, err
	}

	settle(t, true)

	if err := s.store.Update(ctx, t); err != nil {
		if errors.Is(err, repository.ErrTradeNotFound) {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("failed to close trade: %w", err)
	}
	return t, nil
}

// Update applies a partial edit. P&L and exit triggers are recomputed from
// the merged fields when any field they depend on changed, or when the edit
// supplies the missing exit of an open trade.
func (s *LedgerService) Update(ctx context.Context, userID, id uint, req UpdateTradeRequest) (*models.Trade, error) {
	t, err := s.owned(ctx, userID, id, false)
	if err != nil {
		return nil, err
	}
	wasClosed := t.IsClosed()

	// relevant tracks fields that feed P&L or triggers, dirty any field
	relevant, dirty := false, false

	if req.Symbol != nil {
		if sym := importer.NormalizeSymbol(*req.Symbol); sym != t.Symbol {
			t.Symbol, relevant = sym, true
		}
	}
	if req.InstrumentType != nil {
		if it := models.InstrumentType(strings.ToLower(string(*req.InstrumentType))); it != t.InstrumentType {
			t.InstrumentType, relevant = it, true
		}
	}
	if req.Direction != nil {
		if dir := models.Direction(strings.ToLower(string(*req.Direction))); dir != t.Direction {
			t.Direction, relevant = dir, true
		}
	}
	if req.EntryPrice != nil && !req.EntryPrice.Equal(t.EntryPrice) {
		t.EntryPrice, relevant = *req.EntryPrice, true
	}
	if req.Quantity != nil && !req.Quantity.Equal(t.Quantity) {
		t.Quantity, relevant = *req.Quantity, true
	}
	if req.Fees != nil && !req.Fees.Equal(t.Fees) {
		t.Fees, relevant = *req.Fees, true
	}
	if req.ExitPrice != nil && !sameDecimal(req.ExitPrice, t.ExitPrice) {
		t.ExitPrice, relevant = req.ExitPrice, true
	}
	if req.ClearStopLoss {
		if t.StopLoss != nil {
			t.StopLoss, relevant = nil, true
		}
	} else if req.StopLoss != nil && !sameDecimal(req.StopLoss, t.StopLoss) {
		t.StopLoss, relevant = req.StopLoss, true
	}
	if req.ClearTakeProfit {
		if t.TakeProfit != nil {
			t.TakeProfit, relevant = nil, true
		}
	} else if req.TakeProfit != nil && !sameDecimal(req.TakeProfit, t.TakeProfit) {
		t.TakeProfit, relevant = req.TakeProfit, true
	}
	dirty = relevant

	if req.EntryTime != nil && !req.EntryTime.Equal(t.EntryTime) {
		t.EntryTime, dirty = req.EntryTime.UTC(), true
	}
	if req.ExitTime != nil && !sameTime(req.ExitTime, t.ExitTime) {
		t.ExitTime, dirty = utcPtr(req.ExitTime), true
	}
	if req.AccountID != nil && !sameUint(req.AccountID, t.AccountID) {
		if err := s.checkAccount(ctx, userID, req.AccountID); err != nil {
			return nil, err
		}
		t.AccountID, dirty = req.AccountID, true
	}
	if req.Notes != nil && *req.Notes != t.Notes {
		t.Notes, dirty = *req.Notes, true
	}
	if req.Tags != nil && *req.Tags != t.Tags {
		t.Tags, dirty = *req.Tags, true
	}

	if !dirty {
		return t, nil
	}
	validate := validateTrade
	if t.ImportSource == models.ImportSourceManual {
		validate = validateManual
	}
	if err := validate(t); err != nil {
		return nil, err
	}

	if relevant || (!wasClosed && t.HasExit()) {
		settle(t, true)
	}

	if err := s.store.Update(ctx, t); err != nil {
		if errors.Is(err, repository.ErrTradeNotFound) {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("failed to update trade: %w", err)
	}
	return t, nil
}

// SoftDelete moves a live trade to the trash
func (s *LedgerService) SoftDelete(ctx context.Context, userID, id uint) error {
	t, err := s.owned(ctx, userID, id, true)
	if err != nil {
		return err
	}
	if t.DeletedAt.Valid {
		return fmt.Errorf("%w: trade is already deleted", ErrInvalidTransition)
	}
	return s.mapStoreErr(s.store.SoftDelete(ctx, userID, id))
}

// Restore brings a deleted trade back in the status it had before deletion
func (s *LedgerService) Restore(ctx context.Context, userID, id uint) (*models.Trade, error) {
	t, err := s.owned(ctx, userID, id, true)
	if err != nil {
		return nil, err
	}
	if !t.DeletedAt.Valid {
		return nil, fmt.Errorf("%w: trade is not deleted", ErrInvalidTransition)
	}
	if err := s.mapStoreErr(s.store.Restore(ctx, userID, id)); err != nil {
		return nil, err
	}
	return s.owned(ctx, userID, id, false)
}

// Purge permanently removes a deleted trade
func (s *LedgerService) Purge(ctx context.Context, userID, id uint) error {
	t, err := s.owned(ctx, userID, id, true)
	if err != nil {
		return err
	}
	if !t.DeletedAt.Valid {
		return fmt.Errorf("%w: only deleted trades can be purged", ErrInvalidTransition)
	}
	if err := s.mapStoreErr(s.store.Purge(ctx, userID, id)); err != nil {
		return err
	}

	s.log.Info().Uint("user_id", userID).Uint("trade_id", id).Msg("trade purged")
	return nil
}

// Get returns a trade owned by userID
func (s *LedgerService) Get(ctx context.Context, userID, id uint, includeDeleted bool) (*models.Trade, error) {
	return s.owned(ctx, userID, id, includeDeleted)
}

// List returns a page of the user's trades, newest first
func (s *LedgerService) List(ctx context.Context, userID uint, q ListTradesQuery) (*TradePage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}

	trades, total, err := s.store.Find(ctx, repository.TradeFilter{
		UserID:    userID,
		AccountID: q.AccountID,
		Symbol:    importer.NormalizeSymbol(q.Symbol),
		Status:    q.Status,
		From:      q.From,
		To:        q.To,
		Deleted:   q.Deleted,
		Page:      q.Page,
		PageSize:  q.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}

	views := make([]TradeView, 0, len(trades))
	for i := range trades {
		views = append(views, NewTradeView(&trades[i]))
	}
	return &TradePage{Trades: views, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// ValidateDraft reports whether an imported draft can become a trade
func ValidateDraft(d importer.Draft) error {
	t := draftTrade(0, nil, "", d)
	return validateTrade(t)
}

// BatchCreate inserts imported drafts in one transaction: either every
// trade is stored or none is. Exit triggers supplied by the import are kept.
func (s *LedgerService) BatchCreate(ctx context.Context, userID uint, accountID *uint, batchID string, drafts []importer.Draft) ([]*models.Trade, error) {
	if s.maxBatch > 0 && len(drafts) > s.maxBatch {
		return nil, fmt.Errorf("%w: %d rows, limit %d", ErrBatchTooLarge, len(drafts), s.maxBatch)
	}
	if err := s.checkAccount(ctx, userID, accountID); err != nil {
		return nil, err
	}

	trades := make([]*models.Trade, 0, len(drafts))
	for _, d := range drafts {
		t := draftTrade(userID, accountID, batchID, d)
		if err := validateTrade(t); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				return nil, invalid(fmt.Sprintf("row %d: %s", d.RowNumber, ve.Field), ve.Reason)
			}
			return nil, err
		}
		trades = append(trades, t)
	}

	if err := s.store.InsertBatch(ctx, trades); err != nil {
		return nil, fmt.Errorf("failed to insert trades: %w", err)
	}

	s.log.Info().Uint("user_id", userID).Str("batch_id", batchID).Int("count", len(trades)).Msg("trades imported")
	return trades, nil
}

// KnownExternalIDs returns which external ids the user already holds
func (s *LedgerService) KnownExternalIDs(ctx context.Context, userID uint, ids []string) (map[string]bool, error) {
	existing, err := s.store.ExistingExternalIDs(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to check external ids: %w", err)
	}
	return existing, nil
}

// Recompute re-derives stored P&L and computed triggers for every closed
// trade of userID (zero for all users) and rewrites only rows that drifted.
// Imported trigger flags are left as they are.
func (s *LedgerService) Recompute(ctx context.Context, userID uint) (RecomputeResult, error) {
	var res RecomputeResult
	var after uint

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		page, err := s.store.ClosedAfter(ctx, userID, after, recomputePageSize)
		if err != nil {
			return res, fmt.Errorf("failed to load closed trades: %w", err)
		}

		for i := range page {
			t := &page[i]
			res.Scanned++
			if !t.HasExit() {
				continue
			}

			before := *t
			settle(t, false)
			if !drifted(&before, t) {
				continue
			}
			if err := s.store.UpdateComputed(ctx, t); err != nil {
				return res, fmt.Errorf("failed to update trade %d: %w", t.ID, err)
			}
			res.Updated++
		}

		if len(page) < recomputePageSize {
			break
		}
		after = page[len(page)-1].ID
	}

	s.log.Info().Uint("user_id", userID).Int("scanned", res.Scanned).Int("updated", res.Updated).Msg("recompute finished")
	return res, nil
}

func (s *LedgerService) owned(ctx context.Context, userID, id uint, includeDeleted bool) (*models.Trade, error) {
	t, err := s.store.FindByID(ctx, userID, id, includeDeleted)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	return t, nil
}

func (s *LedgerService) mapStoreErr(err error) error {
	if errors.Is(err, repository.ErrTradeNotFound) {
		return ErrTradeNotFound
	}
	return err
}

func (s *LedgerService) checkAccount(ctx context.Context, userID uint, accountID *uint) error {
	if accountID == nil || s.accounts == nil {
		return nil
	}
	if _, err := s.accounts.GetByIDAndUserID(ctx, *accountID, userID); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to get account: %w", err)
	}
	return nil
}

func draftTrade(userID uint, accountID *uint, batchID string, d importer.Draft) *models.Trade {
	t := &models.Trade{
		UserID:          userID,
		AccountID:       accountID,
		Symbol:          d.Symbol,
		InstrumentType:  d.InstrumentType,
		Direction:       d.Direction,
		EntryPrice:      d.EntryPrice,
		Quantity:        d.Quantity,
		EntryTime:       d.EntryTime,
		ExitPrice:       d.ExitPrice,
		ExitTime:        d.ExitTime,
		Fees:            d.Fees,
		StopLoss:        d.StopLoss,
		TakeProfit:      d.TakeProfit,
		ExitFlagsSource: models.ExitFlagsComputed,
		ImportSource:    models.ImportSourceCSV,
		Notes:           d.Notes,
	}
	if d.ExternalID != "" {
		ext := d.ExternalID
		t.ExternalID = &ext
	}
	if batchID != "" {
		b := batchID
		t.ImportBatchID = &b
	}
	if d.ExitTriggers != nil && d.HasExit() {
		t.StopLossHit = d.ExitTriggers.StopLossHit
		t.TakeProfitHit = d.ExitTriggers.TakeProfitHit
		t.ExitFlagsSource = models.ExitFlagsImported
	}

	settle(t, false)
	return t
}

// settle derives status, P&L and triggers from the exit fields. Imported
// trigger flags survive unless recomputeFlags is set.
func settle(t *models.Trade, recomputeFlags bool) {
	if !t.HasExit() {
		t.Status = models.TradeStatusOpen
		t.RealizedPnl, t.NetPnl = nil, nil
		t.StopLossHit, t.TakeProfitHit = false, false
		t.ExitFlagsSource = models.ExitFlagsComputed
		return
	}

	res := pnl.Compute(pnl.Input{
		Symbol:         t.Symbol,
		InstrumentType: t.InstrumentType,
		Direction:      t.Direction,
		EntryPrice:     t.EntryPrice,
		ExitPrice:      *t.ExitPrice,
		Quantity:       t.Quantity,
		Fees:           t.Fees,
		StopLoss:       t.StopLoss,
		TakeProfit:     t.TakeProfit,
	})

	t.Status = models.TradeStatusClosed
	realized, net := res.Realized, res.Net
	t.RealizedPnl, t.NetPnl = &realized, &net

	if recomputeFlags || t.ExitFlagsSource != models.ExitFlagsImported {
		t.StopLossHit = res.Triggers.StopLossHit
		t.TakeProfitHit = res.Triggers.TakeProfitHit
		t.ExitFlagsSource = models.ExitFlagsComputed
	}
}

func drifted(before, after *models.Trade) bool {
	return !sameDecimal(before.RealizedPnl, after.RealizedPnl) ||
		!sameDecimal(before.NetPnl, after.NetPnl) ||
		before.StopLossHit != after.StopLossHit ||
		before.TakeProfitHit != after.TakeProfitHit ||
		before.ExitFlagsSource != after.ExitFlagsSource
}

// validateTrade checks the fields every stored trade needs
func validateTrade(t *models.Trade) error {
	switch {
	case t.Symbol == "":
		return invalid("symbol", "required")
	case !t.Direction.Valid():
		return invalid("direction", "must be long or short")
	case !t.InstrumentType.Valid():
		return invalid("instrument_type", "must be futures or forex")
	case !t.EntryPrice.IsPositive():
		return invalid("entry_price", "must be positive")
	case !t.Quantity.IsPositive():
		return invalid("quantity", "must be positive")
	case t.EntryTime.IsZero():
		return invalid("entry_time", "required")
	case t.ExitPrice != nil && !t.ExitPrice.IsPositive():
		return invalid("exit_price", "must be positive")
	case t.StopLoss != nil && !t.StopLoss.IsPositive():
		return invalid("stop_loss", "must be positive")
	case t.TakeProfit != nil && !t.TakeProfit.IsPositive():
		return invalid("take_profit", "must be positive")
	}
	return nil
}

// validateManual adds the checks that only hold for hand-entered trades;
// broker exports may carry swap credits and clock skew
func validateManual(t *models.Trade) error {
	if err := validateTrade(t); err != nil {
		return err
	}
	if t.Fees.IsNegative() {
		return invalid("fees", "must not be negative")
	}
	if t.ExitTime != nil && t.ExitTime.Before(t.EntryTime) {
		return invalid("exit_time", "must not be before entry_time")
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func sameDecimal(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func sameUint(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
