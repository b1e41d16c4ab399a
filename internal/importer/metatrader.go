package importer

import (
	"github.com/shopspring/decimal"
	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/pkg/keygen"
)

var metaTraderLayouts = []string{
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
}

// MetaTraderParser reads the MT4/MT5 "Positions" history report. The report
// repeats the Time and Price headers: the first pair is the open, the second
// the close.
type MetaTraderParser struct{}

func NewMetaTraderParser() *MetaTraderParser {
	return &MetaTraderParser{}
}

func (p *MetaTraderParser) Platform() string {
	return string(models.PlatformMetaTrader)
}

func (p *MetaTraderParser) ValidateHeaders(headers []string) bool {
	set := headerSet(headers)
	return hasAll(set, "Position", "Symbol", "Type", "Volume", "S / L", "T / P") &&
		set["time"] >= 2 && set["price"] >= 2
}

func (p *MetaTraderParser) Parse(raw string) ParseResult {
	t, err := readTable(raw)
	if err != nil {
		return failed(err.Error())
	}
	if !p.ValidateHeaders(t.header) {
		return failed("headers do not match the metatrader positions format")
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

func (p *MetaTraderParser) parseRow(c *collector, t *table, r row) (Draft, bool) {
	d := Draft{RowNumber: r.line}

	d.Symbol = NormalizeSymbol(t.get(r, "Symbol"))
	if d.Symbol == "" {
		c.fail(r.line, "missing symbol")
		return d, false
	}
	d.InstrumentType = InferInstrumentType(d.Symbol, models.InstrumentForex)

	rawType := t.get(r, "Type")
	dir, known := NormalizeDirection(rawType)
	if !known {
		c.warn(r.line, "unrecognized position type %q, treated as short", rawType)
	}
	d.Direction = dir

	volume, err := ParseMoney(t.get(r, "Volume"))
	if err != nil || !volume.IsPositive() {
		c.fail(r.line, "volume must be a positive number")
		return d, false
	}
	d.Quantity = volume

	if d.EntryPrice, err = ParseMoney(t.nth(r, "Price", 0)); err != nil {
		c.fail(r.line, "open price: %v", err)
		return d, false
	}

	rawOpen := t.nth(r, "Time", 0)
	opened, ok := ParseTimestamp(rawOpen, metaTraderLayouts...)
	if !ok {
		c.warn(r.line, "unparseable open time %q, using current time", rawOpen)
	}
	d.EntryTime = opened

	closePrice, err := optionalMoney(t.nth(r, "Price", 1))
	if err != nil {
		c.fail(r.line, "close price: %v", err)
		return d, false
	}
	if rawClose := t.nth(r, "Time", 1); closePrice != nil && rawClose != "" {
		closed, ok := ParseTimestamp(rawClose, metaTraderLayouts...)
		if !ok {
			c.warn(r.line, "unparseable close time %q, using current time", rawClose)
		}
		d.ExitPrice, d.ExitTime = closePrice, &closed
	}

	if d.StopLoss, err = optionalLevel(t.get(r, "S / L")); err != nil {
		c.fail(r.line, "stop loss: %v", err)
		return d, false
	}
	if d.TakeProfit, err = optionalLevel(t.get(r, "T / P")); err != nil {
		c.fail(r.line, "take profit: %v", err)
		return d, false
	}

	// commission is reported as a negative amount; swap is negative when
	// charged and positive when credited
	var fees []decimal.Decimal
	if v := t.get(r, "Commission"); v != "" {
		amount, err := ParseMoney(v)
		if err != nil {
			c.fail(r.line, "commission: %v", err)
			return d, false
		}
		fees = append(fees, amount.Abs())
	}
	if v := t.get(r, "Swap"); v != "" {
		amount, err := ParseMoney(v)
		if err != nil {
			c.fail(r.line, "swap: %v", err)
			return d, false
		}
		fees = append(fees, amount.Neg())
	}
	d.Fees = SumFees(fees...)

	if id := t.get(r, "Position"); id != "" {
		d.ExternalID = keygen.PlatformID(p.Platform(), id)
	} else {
		d.ExternalID = keygen.ExternalID(p.Platform(), t.get(r, "Symbol"), rawType, t.get(r, "Volume"),
			t.nth(r, "Price", 0), rawOpen)
	}

	return d, true
}
