package importer

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/pkg/keygen"
)

var tradovateLayouts = []string{
	"01/02/2006 15:04:05",
	"1/2/2006 15:04:05",
	"01/02/2006 15:04",
}

// TradovateParser reads the Tradovate "Performance" export. Each row is a
// round trip pairing a buy fill with a sell fill. Commissions are not in the
// Performance export; they come from the companion "Fills" export.
type TradovateParser struct{}

func NewTradovateParser() *TradovateParser {
	return &TradovateParser{}
}

func (p *TradovateParser) Platform() string {
	return string(models.PlatformTradovate)
}

func (p *TradovateParser) ValidateHeaders(headers []string) bool {
	return hasAll(headerSet(headers),
		"symbol", "buyFillId", "sellFillId", "qty", "buyPrice", "sellPrice", "boughtTimestamp", "soldTimestamp")
}

func (p *TradovateParser) Parse(raw string) ParseResult {
	return p.parse(raw, nil)
}

// ParseCorrelated reads the Performance export together with a Fills export,
// attributing each fill's commission and fees to the round trip that used it
func (p *TradovateParser) ParseCorrelated(tradesRaw, fillsRaw string) ParseResult {
	fees, err := tradovateFillFees(fillsRaw)
	if err != nil {
		res := p.parse(tradesRaw, nil)
		res.Warnings = append(res.Warnings, fmt.Sprintf("fills file ignored: %v", err))
		return res
	}
	return p.parse(tradesRaw, fees)
}

func (p *TradovateParser) parse(raw string, fillFees map[string]decimal.Decimal) ParseResult {
	t, err := readTable(raw)
	if err != nil {
		return failed(err.Error())
	}
	if !p.ValidateHeaders(t.header) {
		return failed("headers do not match the tradovate performance format")
	}

	var fees *fillAllocation
	if fillFees != nil {
		fees = allocateFills(t, fillFees)
	}

	c := &collector{}
	c.res.Errors = append(c.res.Errors, t.broken...)
	for _, r := range t.rows {
		if d, ok := p.parseRow(c, t, r, fees); ok {
			c.add(d)
		}
	}
	return c.finish(t.totalRows())
}

func (p *TradovateParser) parseRow(c *collector, t *table, r row, fees *fillAllocation) (Draft, bool) {
	d := Draft{RowNumber: r.line, InstrumentType: models.InstrumentFutures}

	d.Symbol = NormalizeSymbol(t.get(r, "symbol"))
	if d.Symbol == "" {
		c.fail(r.line, "missing symbol")
		return d, false
	}

	qty, err := ParseMoney(t.get(r, "qty"))
	if err != nil || !qty.IsPositive() {
		c.fail(r.line, "quantity must be a positive number")
		return d, false
	}
	d.Quantity = qty

	buyPrice, err := ParseMoney(t.get(r, "buyPrice"))
	if err != nil {
		c.fail(r.line, "buy price: %v", err)
		return d, false
	}
	sellPrice, err := ParseMoney(t.get(r, "sellPrice"))
	if err != nil {
		c.fail(r.line, "sell price: %v", err)
		return d, false
	}

	rawBought, rawSold := t.get(r, "boughtTimestamp"), t.get(r, "soldTimestamp")
	bought, ok := ParseTimestamp(rawBought, tradovateLayouts...)
	if !ok {
		c.warn(r.line, "unparseable bought timestamp %q, using current time", rawBought)
	}
	sold, ok := ParseTimestamp(rawSold, tradovateLayouts...)
	if !ok {
		c.warn(r.line, "unparseable sold timestamp %q, using current time", rawSold)
	}

	// whichever side filled first opened the position
	if sold.Before(bought) {
		d.Direction = models.DirectionShort
		d.EntryPrice, d.EntryTime = sellPrice, sold
		exitPrice, exitTime := buyPrice, bought
		d.ExitPrice, d.ExitTime = &exitPrice, &exitTime
	} else {
		d.Direction = models.DirectionLong
		d.EntryPrice, d.EntryTime = buyPrice, bought
		exitPrice, exitTime := sellPrice, sold
		d.ExitPrice, d.ExitTime = &exitPrice, &exitTime
	}

	buyID, sellID := t.get(r, "buyFillId"), t.get(r, "sellFillId")
	if buyID != "" && sellID != "" {
		d.ExternalID = keygen.PlatformID(p.Platform(), buyID+"-"+sellID)
	} else {
		d.ExternalID = keygen.ExternalID(p.Platform(), t.get(r, "symbol"), t.get(r, "qty"),
			t.get(r, "buyPrice"), t.get(r, "sellPrice"), rawBought, rawSold)
	}

	if fees != nil {
		var amounts []decimal.Decimal
		for _, id := range []string{buyID, sellID} {
			share, ok := fees.share(id, qty)
			if !ok {
				c.warn(r.line, "fill %q not found in fills file, fees not attributed", id)
				continue
			}
			amounts = append(amounts, share)
		}
		d.Fees = SumFees(amounts...)
	}

	return d, true
}

// fillAllocation splits each fill's fees across the round trips that use it.
// A fill partially closed by several rows is charged in proportion to the
// quantity each row takes from it.
type fillAllocation struct {
	fees map[string]decimal.Decimal
	used map[string]decimal.Decimal
}

func allocateFills(t *table, fees map[string]decimal.Decimal) *fillAllocation {
	a := &fillAllocation{fees: fees, used: make(map[string]decimal.Decimal)}
	for _, r := range t.rows {
		qty, err := ParseMoney(t.get(r, "qty"))
		if err != nil || !qty.IsPositive() {
			continue
		}
		for _, id := range []string{t.get(r, "buyFillId"), t.get(r, "sellFillId")} {
			if id != "" {
				a.used[id] = a.used[id].Add(qty)
			}
		}
	}
	return a
}

func (a *fillAllocation) share(fillID string, qty decimal.Decimal) (decimal.Decimal, bool) {
	fee, ok := a.fees[fillID]
	if !ok {
		return decimal.Zero, false
	}
	used := a.used[fillID]
	if !used.IsPositive() || used.LessThanOrEqual(qty) {
		return fee, true
	}
	return fee.Mul(qty).Div(used), true
}

// tradovateFillFees indexes a Fills export by fill id
func tradovateFillFees(raw string) (map[string]decimal.Decimal, error) {
	t, err := readTable(raw)
	if err != nil {
		return nil, err
	}
	if !t.has("Fill ID", "fillId", "_id") {
		return nil, fmt.Errorf("fills file has no fill id column")
	}

	fees := make(map[string]decimal.Decimal, len(t.rows))
	for _, r := range t.rows {
		id := t.get(r, "Fill ID", "fillId", "_id")
		if id == "" {
			continue
		}
		total := decimal.Zero
		for _, col := range []string{"commission", "fees", "exchangeFee", "clearingFee", "nfaFee"} {
			v := t.get(r, col)
			if v == "" {
				continue
			}
			if amount, err := ParseMoney(v); err == nil {
				total = total.Add(amount.Abs())
			}
		}
		fees[id] = fees[id].Add(total)
	}
	return fees, nil
}
