package importer

import (
	"github.com/shopspring/decimal"
	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/pkg/keygen"
)

var ninjaLayouts = []string{
	"1/2/2006 3:04:05 PM",
	"01/02/2006 03:04:05 PM",
	"1/2/2006 15:04:05",
}

var ninjaFeeColumns = []string{"Commission", "Clearing Fee", "Exchange Fee", "IP Fee", "NFA Fee"}

// NinjaTraderParser reads the NinjaTrader 8 "Trades" grid export
type NinjaTraderParser struct{}

func NewNinjaTraderParser() *NinjaTraderParser {
	return &NinjaTraderParser{}
}

func (p *NinjaTraderParser) Platform() string {
	return string(models.PlatformNinjaTrader)
}

func (p *NinjaTraderParser) ValidateHeaders(headers []string) bool {
	return hasAll(headerSet(headers),
		"Instrument", "Market pos.", "Qty", "Entry price", "Exit price", "Entry time", "Exit time")
}

func (p *NinjaTraderParser) Parse(raw string) ParseResult {
	t, err := readTable(raw)
	if err != nil {
		return failed(err.Error())
	}
	if !p.ValidateHeaders(t.header) {
		return failed("headers do not match the ninjatrader trades format")
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

func (p *NinjaTraderParser) parseRow(c *collector, t *table, r row) (Draft, bool) {
	d := Draft{RowNumber: r.line}

	rawInstrument := t.get(r, "Instrument")
	d.Symbol = NormalizeSymbol(rawInstrument)
	if d.Symbol == "" {
		c.fail(r.line, "missing instrument")
		return d, false
	}
	d.InstrumentType = InferInstrumentType(d.Symbol, models.InstrumentFutures)

	rawPos := t.get(r, "Market pos.")
	dir, known := NormalizeDirection(rawPos)
	if !known {
		c.warn(r.line, "unrecognized market position %q, treated as short", rawPos)
	}
	d.Direction = dir

	qty, err := ParseMoney(t.get(r, "Qty"))
	if err != nil || !qty.IsPositive() {
		c.fail(r.line, "quantity must be a positive number")
		return d, false
	}
	d.Quantity = qty

	if d.EntryPrice, err = ParseMoney(t.get(r, "Entry price")); err != nil {
		c.fail(r.line, "entry price: %v", err)
		return d, false
	}

	rawEntry := t.get(r, "Entry time")
	entry, ok := ParseTimestamp(rawEntry, ninjaLayouts...)
	if !ok {
		c.warn(r.line, "unparseable entry time %q, using current time", rawEntry)
	}
	d.EntryTime = entry

	exitPrice, err := optionalMoney(t.get(r, "Exit price"))
	if err != nil {
		c.fail(r.line, "exit price: %v", err)
		return d, false
	}
	if rawExit := t.get(r, "Exit time"); exitPrice != nil && rawExit != "" {
		exit, ok := ParseTimestamp(rawExit, ninjaLayouts...)
		if !ok {
			c.warn(r.line, "unparseable exit time %q, using current time", rawExit)
		}
		d.ExitPrice, d.ExitTime = exitPrice, &exit
	}

	var fees []decimal.Decimal
	for _, col := range ninjaFeeColumns {
		v := t.get(r, col)
		if v == "" {
			continue
		}
		amount, err := ParseMoney(v)
		if err != nil {
			c.fail(r.line, "%s: %v", col, err)
			return d, false
		}
		fees = append(fees, amount.Abs())
	}
	d.Fees = SumFees(fees...)

	// trade numbers restart with every export, so they cannot identify a trade
	d.ExternalID = keygen.ExternalID(p.Platform(), t.get(r, "Account"), rawInstrument, rawPos,
		t.get(r, "Qty"), t.get(r, "Entry price"), rawEntry, t.get(r, "Exit price"), t.get(r, "Exit time"))

	if name := t.get(r, "Strategy"); name != "" {
		d.Notes = "strategy: " + name
	}

	return d, true
}
