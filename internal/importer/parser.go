// Package importer normalizes broker and platform CSV exports into trade drafts.
//
// Parsing is best-effort: a malformed row is recorded in ParseResult.Errors and
// skipped, and never aborts the rest of the file.
package importer

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/pnl"
)

// Parser converts one platform's export format into trade drafts
type Parser interface {
	// Platform returns the registry key of the parser
	Platform() string
	// ValidateHeaders reports whether the header row matches the platform's signature
	ValidateHeaders(headers []string) bool
	// Parse converts the raw export text
	Parse(raw string) ParseResult
}

// CorrelatedParser is implemented by platforms that export trades and the
// underlying fills or orders as two separate files
type CorrelatedParser interface {
	Parser
	ParseCorrelated(tradesRaw, companionRaw string) ParseResult
}

// RowError is a row-level parse failure. Row is the 1-based line number in
// the source file, the header being line 1.
type RowError struct {
	Row     int    `json:"row" msgpack:"row"`
	Message string `json:"message" msgpack:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// ParseResult is the outcome of parsing one export
type ParseResult struct {
	Success     bool       `json:"success"`
	Trades      []Draft    `json:"trades"`
	Errors      []RowError `json:"errors"`
	Warnings    []string   `json:"warnings"`
	TotalRows   int        `json:"total_rows"`
	ParsedRows  int        `json:"parsed_rows"`
	SkippedRows int        `json:"skipped_rows"`
}

// Draft is a canonical trade produced by a parser, not yet persisted
type Draft struct {
	RowNumber      int                   `json:"row_number"`
	ExternalID     string                `json:"external_id"`
	Symbol         string                `json:"symbol"`
	InstrumentType models.InstrumentType `json:"instrument_type"`
	Direction      models.Direction      `json:"direction"`
	EntryPrice     decimal.Decimal       `json:"entry_price"`
	Quantity       decimal.Decimal       `json:"quantity"`
	EntryTime      time.Time             `json:"entry_time"`
	ExitPrice      *decimal.Decimal      `json:"exit_price,omitempty"`
	ExitTime       *time.Time            `json:"exit_time,omitempty"`
	Fees           decimal.Decimal       `json:"fees"`
	StopLoss       *decimal.Decimal      `json:"stop_loss,omitempty"`
	TakeProfit     *decimal.Decimal      `json:"take_profit,omitempty"`
	// ExitTriggers is set when the platform exported enough order data to
	// know which exit level was actually filled
	ExitTriggers *pnl.Triggers `json:"exit_triggers,omitempty"`
	Notes        string        `json:"notes,omitempty"`
}

// HasExit reports whether the draft carries both exit price and exit time
func (d *Draft) HasExit() bool {
	return d.ExitPrice != nil && d.ExitTime != nil
}

type collector struct {
	res ParseResult
}

func (c *collector) fail(row int, format string, args ...interface{}) {
	c.res.Errors = append(c.res.Errors, RowError{Row: row, Message: fmt.Sprintf(format, args...)})
}

func (c *collector) warn(row int, format string, args ...interface{}) {
	c.res.Warnings = append(c.res.Warnings, fmt.Sprintf("row %d: ", row)+fmt.Sprintf(format, args...))
}

func (c *collector) add(d Draft) {
	c.res.Trades = append(c.res.Trades, d)
}

func (c *collector) finish(totalRows int) ParseResult {
	c.res.TotalRows = totalRows
	c.res.ParsedRows = len(c.res.Trades)
	c.res.SkippedRows = totalRows - c.res.ParsedRows
	c.res.Success = c.res.ParsedRows > 0
	return c.res
}

// failed builds a result for a file that could not be read at all
func failed(message string) ParseResult {
	return ParseResult{
		Errors: []RowError{{Row: 1, Message: message}},
	}
}
