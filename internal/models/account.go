package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Platform identifies the broker or trading platform an account belongs to
type Platform string

const (
	PlatformTradovate   Platform = "tradovate"
	PlatformTopstepX    Platform = "topstepx"
	PlatformNinjaTrader Platform = "ninjatrader"
	PlatformMetaTrader  Platform = "metatrader"
	PlatformOther       Platform = "other"
)

// Account represents a user's broker account that trades are booked against
type Account struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"index;not null" json:"user_id"`
	Name      string         `gorm:"size:100;not null" json:"name"`
	Platform  Platform       `gorm:"size:20;not null" json:"platform"`
	Currency  string         `gorm:"size:10;default:'USD'" json:"currency"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for Account model
func (Account) TableName() string {
	return "accounts"
}

// UserSettings holds per-user ledger preferences
type UserSettings struct {
	UserID             uint            `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	BreakevenThreshold decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"breakeven_threshold"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TableName specifies the table name for UserSettings model
func (UserSettings) TableName() string {
	return "user_settings"
}

// ImportBatch is the audit record of one CSV import
type ImportBatch struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	UserID      uint           `gorm:"index;not null" json:"user_id"`
	AccountID   *uint          `gorm:"index" json:"account_id"`
	Platform    string         `gorm:"size:20;not null" json:"platform"`
	FileName    string         `gorm:"size:255" json:"file_name"`
	TotalRows   int            `json:"total_rows"`
	Imported    int            `json:"imported"`
	Duplicates  int            `json:"duplicates"`
	SkippedRows int            `json:"skipped_rows"`
	Errors      datatypes.JSON `json:"errors"`
	Warnings    datatypes.JSON `json:"warnings"`
	ArchiveKey  string         `gorm:"size:255" json:"archive_key,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for ImportBatch model
func (ImportBatch) TableName() string {
	return "import_batches"
}
