package importer

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/pkg/keygen"
)

// Field is a canonical trade column
type Field string

const (
	FieldSymbol         Field = "symbol"
	FieldDirection      Field = "direction"
	FieldEntryPrice     Field = "entry_price"
	FieldExitPrice      Field = "exit_price"
	FieldQuantity       Field = "quantity"
	FieldEntryTime      Field = "entry_time"
	FieldExitTime       Field = "exit_time"
	FieldFees           Field = "fees"
	FieldCommission     Field = "commission"
	FieldStopLoss       Field = "stop_loss"
	FieldTakeProfit     Field = "take_profit"
	FieldInstrumentType Field = "instrument_type"
	FieldExternalID     Field = "external_id"
	FieldNotes          Field = "notes"
)

// RequiredFields must be mapped for a row to become a trade
var RequiredFields = []Field{FieldSymbol, FieldDirection, FieldEntryPrice, FieldQuantity, FieldEntryTime}

var genericColumns = map[Field][]string{
	FieldSymbol:         {"symbol", "instrument", "ticker", "contract"},
	FieldDirection:      {"direction", "side", "position", "action"},
	FieldEntryPrice:     {"entry_price", "entry", "open_price", "avg_entry_price"},
	FieldExitPrice:      {"exit_price", "exit", "close_price", "avg_exit_price"},
	FieldQuantity:       {"quantity", "qty", "size", "contracts", "lots"},
	FieldEntryTime:      {"entry_time", "entry_date", "open_time", "opened_at"},
	FieldExitTime:       {"exit_time", "exit_date", "close_time", "closed_at"},
	FieldFees:           {"fees", "fee"},
	FieldCommission:     {"commission", "commissions"},
	FieldStopLoss:       {"stop_loss", "stop", "sl"},
	FieldTakeProfit:     {"take_profit", "target", "tp"},
	FieldInstrumentType: {"instrument_type", "asset_class"},
	FieldExternalID:     {"external_id", "trade_id"},
	FieldNotes:          {"notes", "note", "comment"},
}

// canonicalParser reads exports whose columns map one-to-one onto trade fields
type canonicalParser struct {
	platform string
	columns  map[Field][]string
}

// NewGenericParser parses exports that use the ledger's own column names
// (or common aliases of them)
func NewGenericParser() Parser {
	return &canonicalParser{platform: "generic", columns: genericColumns}
}

// NewMappedParser parses an export using a user-supplied column for each field.
// It is the fallback when no platform parser recognizes the headers.
func NewMappedParser(mapping map[Field]string) (Parser, error) {
	columns := make(map[Field][]string, len(mapping))
	for f, col := range mapping {
		if _, ok := genericColumns[f]; !ok {
			return nil, fmt.Errorf("unknown field %q", f)
		}
		if strings.TrimSpace(col) == "" {
			continue
		}
		columns[f] = []string{col}
	}
	for _, f := range RequiredFields {
		if _, ok := columns[f]; !ok {
			return nil, fmt.Errorf("field %q must be mapped", f)
		}
	}
	return &canonicalParser{platform: "mapped", columns: columns}, nil
}

func (p *canonicalParser) Platform() string {
	return p.platform
}

func (p *canonicalParser) ValidateHeaders(headers []string) bool {
	set := headerSet(headers)
	for _, f := range RequiredFields {
		found := false
		for _, name := range p.columns[f] {
			if set[normKey(name)] > 0 {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (p *canonicalParser) Parse(raw string) ParseResult {
	t, err := readTable(raw)
	if err != nil {
		return failed(err.Error())
	}
	if !p.ValidateHeaders(t.header) {
		return failed(fmt.Sprintf("headers do not match the %s format", p.platform))
	}

	c := &collector{}
	c.res.Errors = append(c.res.Errors, t.broken...)
	for _, r := range t.rows {
		if d, ok := p.parseRow(c, t, r); ok {
			c.add(d)
		}
	}
	return c.finish(t.totalRows())
}

func (p *canonicalParser) col(t *table, r row, f Field) string {
	return t.get(r, p.columns[f]...)
}

func (p *canonicalParser) parseRow(c *collector, t *table, r row) (Draft, bool) {
	d := Draft{RowNumber: r.line}

	rawSymbol := p.col(t, r, FieldSymbol)
	d.Symbol = NormalizeSymbol(rawSymbol)
	if d.Symbol == "" {
		c.fail(r.line, "missing symbol")
		return d, false
	}

	rawDir := p.col(t, r, FieldDirection)
	dir, known := NormalizeDirection(rawDir)
	if !known {
		c.warn(r.line, "unrecognized direction %q, treated as short", rawDir)
	}
	d.Direction = dir

	entry, err := ParseMoney(p.col(t, r, FieldEntryPrice))
	if err != nil {
		c.fail(r.line, "entry price: %v", err)
		return d, false
	}
	d.EntryPrice = entry

	qty, err := ParseMoney(p.col(t, r, FieldQuantity))
	if err != nil || !qty.IsPositive() {
		c.fail(r.line, "quantity must be a positive number")
		return d, false
	}
	d.Quantity = qty

	rawEntryTime := p.col(t, r, FieldEntryTime)
	entryTime, ok := ParseTimestamp(rawEntryTime)
	if !ok {
		c.warn(r.line, "unparseable entry time %q, using current time", rawEntryTime)
	}
	d.EntryTime = entryTime

	if d.ExitPrice, err = optionalMoney(p.col(t, r, FieldExitPrice)); err != nil {
		c.fail(r.line, "exit price: %v", err)
		return d, false
	}
	if d.ExitPrice != nil {
		rawExitTime := p.col(t, r, FieldExitTime)
		if rawExitTime == "" {
			c.warn(r.line, "exit price without exit time, imported as open")
			d.ExitPrice = nil
		} else {
			exitTime, ok := ParseTimestamp(rawExitTime)
			if !ok {
				c.warn(r.line, "unparseable exit time %q, using current time", rawExitTime)
			}
			d.ExitTime = &exitTime
		}
	}

	var fees []decimal.Decimal
	for _, f := range []Field{FieldFees, FieldCommission} {
		v := p.col(t, r, f)
		if v == "" {
			continue
		}
		amount, err := ParseMoney(v)
		if err != nil {
			c.fail(r.line, "%s: %v", f, err)
			return d, false
		}
		fees = append(fees, amount.Abs())
	}
	d.Fees = SumFees(fees...)

	if d.StopLoss, err = optionalLevel(p.col(t, r, FieldStopLoss)); err != nil {
		c.fail(r.line, "stop loss: %v", err)
		return d, false
	}
	if d.TakeProfit, err = optionalLevel(p.col(t, r, FieldTakeProfit)); err != nil {
		c.fail(r.line, "take profit: %v", err)
		return d, false
	}

	d.InstrumentType = InferInstrumentType(d.Symbol, models.InstrumentFutures)
	if v := strings.ToLower(p.col(t, r, FieldInstrumentType)); v != "" {
		it := models.InstrumentType(v)
		if !it.Valid() {
			c.fail(r.line, "unknown instrument type %q", v)
			return d, false
		}
		d.InstrumentType = it
	}

	d.Notes = p.col(t, r, FieldNotes)

	if id := p.col(t, r, FieldExternalID); id != "" {
		d.ExternalID = keygen.PlatformID(p.platform, id)
	} else {
		d.ExternalID = keygen.ExternalID(p.platform,
			rawSymbol, rawDir, d.EntryPrice.String(), d.Quantity.String(), rawEntryTime,
			p.col(t, r, FieldExitPrice), p.col(t, r, FieldExitTime))
	}

	return d, true
}
