package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Direction represents the trade direction
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Sign returns +1 for long and -1 for short
func (d Direction) Sign() decimal.Decimal {
	if d == DirectionLong {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(-1)
}

// Valid reports whether d is a known direction
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// InstrumentType represents the instrument class of a trade
type InstrumentType string

const (
	InstrumentFutures InstrumentType = "futures"
	InstrumentForex   InstrumentType = "forex"
)

// Valid reports whether t is a known instrument type
func (t InstrumentType) Valid() bool {
	return t == InstrumentFutures || t == InstrumentForex
}

// TradeStatus represents the lifecycle status of a trade
type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "open"
	TradeStatusClosed TradeStatus = "closed"
)

// TradeState is the derived lifecycle state including soft deletion
type TradeState string

const (
	TradeStateOpen    TradeState = "open"
	TradeStateClosed  TradeState = "closed"
	TradeStateDeleted TradeState = "deleted"
)

// ImportSource records how a trade entered the ledger
type ImportSource string

const (
	ImportSourceManual ImportSource = "manual"
	ImportSourceCSV    ImportSource = "csv"
)

// ExitFlagsSource records who set the stop-loss/take-profit hit flags
type ExitFlagsSource string

const (
	ExitFlagsComputed ExitFlagsSource = "computed"
	ExitFlagsImported ExitFlagsSource = "import"
)

// Trade is a single ledger entry. P&L fields are only written by the ledger service.
type Trade struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UserID         uint           `gorm:"not null;index;uniqueIndex:idx_trades_user_external,priority:1" json:"user_id"`
	AccountID      *uint          `gorm:"index" json:"account_id"`
	ExternalID     *string        `gorm:"size:100;uniqueIndex:idx_trades_user_external,priority:2" json:"external_id,omitempty"`
	Symbol         string         `gorm:"size:30;not null;index" json:"symbol"`
	InstrumentType InstrumentType `gorm:"size:10;not null" json:"instrument_type"`
	Direction      Direction      `gorm:"size:10;not null" json:"direction"`

	EntryPrice decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"entry_price"`
	Quantity   decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"quantity"`
	EntryTime  time.Time       `gorm:"not null;index" json:"entry_time"`

	ExitPrice *decimal.Decimal `gorm:"type:numeric(20,8)" json:"exit_price"`
	ExitTime  *time.Time       `json:"exit_time"`
	Fees      decimal.Decimal  `gorm:"type:numeric(20,8);not null" json:"fees"`

	StopLoss        *decimal.Decimal `gorm:"type:numeric(20,8)" json:"stop_loss"`
	TakeProfit      *decimal.Decimal `gorm:"type:numeric(20,8)" json:"take_profit"`
	StopLossHit     bool             `gorm:"not null" json:"stop_loss_hit"`
	TakeProfitHit   bool             `gorm:"not null" json:"take_profit_hit"`
	ExitFlagsSource ExitFlagsSource  `gorm:"size:10;not null" json:"exit_flags_source"`

	RealizedPnl *decimal.Decimal `gorm:"column:realized_pnl;type:numeric(20,2)" json:"realized_pnl"`
	NetPnl      *decimal.Decimal `gorm:"column:net_pnl;type:numeric(20,2)" json:"net_pnl"`

	Status        TradeStatus  `gorm:"size:10;not null;index" json:"status"`
	ImportSource  ImportSource `gorm:"size:10;not null" json:"import_source"`
	ImportBatchID *string      `gorm:"size:36;index" json:"import_batch_id,omitempty"`
	Notes         string       `gorm:"type:text" json:"notes"`
	Tags          string       `gorm:"size:255" json:"tags"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName specifies the table name for Trade model
func (Trade) TableName() string {
	return "trades"
}

// State returns the lifecycle state, treating soft-deleted trades as deleted
func (t *Trade) State() TradeState {
	if t.DeletedAt.Valid {
		return TradeStateDeleted
	}
	if t.Status == TradeStatusClosed {
		return TradeStateClosed
	}
	return TradeStateOpen
}

// IsClosed returns true if the trade has exit data and computed P&L
func (t *Trade) IsClosed() bool {
	return t.Status == TradeStatusClosed
}

// HasExit returns true if both exit price and exit time are present
func (t *Trade) HasExit() bool {
	return t.ExitPrice != nil && t.ExitTime != nil
}
