package importer

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/pnl"
	"github.com/trade-ledger/pkg/keygen"
)

var topstepLayouts = []string{
	"01/02/2006 15:04:05 -07:00",
	"1/2/2006 15:04:05 -07:00",
	"01/02/2006 15:04:05",
	"2006-01-02T15:04:05.999999-07:00",
}

// TopstepXParser reads the TopstepX trades export. Stop and target levels are
// not in the trades file; they are recovered from the orders export, which
// also tells which exit order actually filled.
type TopstepXParser struct{}

func NewTopstepXParser() *TopstepXParser {
	return &TopstepXParser{}
}

func (p *TopstepXParser) Platform() string {
	return string(models.PlatformTopstepX)
}

func (p *TopstepXParser) ValidateHeaders(headers []string) bool {
	return hasAll(headerSet(headers),
		"Id", "ContractName", "EnteredAt", "ExitedAt", "EntryPrice", "ExitPrice", "Size", "Type")
}

func (p *TopstepXParser) Parse(raw string) ParseResult {
	return p.parse(raw, nil)
}

// ParseCorrelated joins the trades export with the orders export on trade id
func (p *TopstepXParser) ParseCorrelated(tradesRaw, ordersRaw string) ParseResult {
	orders, err := topstepOrders(ordersRaw)
	if err != nil {
		res := p.parse(tradesRaw, nil)
		res.Warnings = append(res.Warnings, fmt.Sprintf("orders file ignored: %v", err))
		return res
	}
	return p.parse(tradesRaw, orders)
}

func (p *TopstepXParser) parse(raw string, orders map[string][]topstepOrder) ParseResult {
	t, err := readTable(raw)
	if err != nil {
		return failed(err.Error())
	}
	if !p.ValidateHeaders(t.header) {
		return failed("headers do not match the topstepx trades format")
	}

	c := &collector{}
	c.res.Errors = append(c.res.Errors, t.broken...)
	for _, r := range t.rows {
		d, ok := p.parseRow(c, t, r)
		if !ok {
			continue
		}
		if orders != nil {
			tradeID := t.get(r, "Id")
			if related, found := orders[tradeID]; found {
				applyTopstepOrders(&d, related)
			} else {
				c.warn(r.line, "no orders found for trade %s, stop and target left empty", tradeID)
			}
		}
		c.add(d)
	}
	return c.finish(t.totalRows())
}

func (p *TopstepXParser) parseRow(c *collector, t *table, r row) (Draft, bool) {
	d := Draft{RowNumber: r.line, InstrumentType: models.InstrumentFutures}

	d.Symbol = NormalizeSymbol(t.get(r, "ContractName"))
	if d.Symbol == "" {
		c.fail(r.line, "missing contract name")
		return d, false
	}

	rawType := t.get(r, "Type")
	dir, known := NormalizeDirection(rawType)
	if !known {
		c.warn(r.line, "unrecognized trade type %q, treated as short", rawType)
	}
	d.Direction = dir

	qty, err := ParseMoney(t.get(r, "Size"))
	if err != nil || !qty.IsPositive() {
		c.fail(r.line, "size must be a positive number")
		return d, false
	}
	d.Quantity = qty

	if d.EntryPrice, err = ParseMoney(t.get(r, "EntryPrice")); err != nil {
		c.fail(r.line, "entry price: %v", err)
		return d, false
	}

	rawEntered := t.get(r, "EnteredAt")
	entered, ok := ParseTimestamp(rawEntered, topstepLayouts...)
	if !ok {
		c.warn(r.line, "unparseable entry time %q, using current time", rawEntered)
	}
	d.EntryTime = entered

	exitPrice, err := optionalMoney(t.get(r, "ExitPrice"))
	if err != nil {
		c.fail(r.line, "exit price: %v", err)
		return d, false
	}
	if rawExited := t.get(r, "ExitedAt"); exitPrice != nil && rawExited != "" {
		exited, ok := ParseTimestamp(rawExited, topstepLayouts...)
		if !ok {
			c.warn(r.line, "unparseable exit time %q, using current time", rawExited)
		}
		d.ExitPrice, d.ExitTime = exitPrice, &exited
	}

	var fees []decimal.Decimal
	for _, col := range []string{"Fees", "Commissions"} {
		v := t.get(r, col)
		if v == "" {
			continue
		}
		amount, err := ParseMoney(v)
		if err != nil {
			c.fail(r.line, "%s: %v", strings.ToLower(col), err)
			return d, false
		}
		fees = append(fees, amount.Abs())
	}
	d.Fees = SumFees(fees...)

	if id := t.get(r, "Id"); id != "" {
		d.ExternalID = keygen.PlatformID(p.Platform(), id)
	} else {
		d.ExternalID = keygen.ExternalID(p.Platform(), t.get(r, "ContractName"), rawType,
			t.get(r, "EntryPrice"), t.get(r, "Size"), rawEntered, t.get(r, "ExitPrice"))
	}

	return d, true
}

type topstepOrder struct {
	kind   string // stop, limit, market
	side   models.Direction
	status string
	stop   *decimal.Decimal
	limit  *decimal.Decimal
}

func (o topstepOrder) filled() bool {
	return o.status == "filled"
}

func topstepOrders(raw string) (map[string][]topstepOrder, error) {
	t, err := readTable(raw)
	if err != nil {
		return nil, err
	}
	if !t.has("TradeId") || !t.has("Type") || !t.has("Side") {
		return nil, fmt.Errorf("orders file needs TradeId, Type and Side columns")
	}

	orders := make(map[string][]topstepOrder)
	for _, r := range t.rows {
		tradeID := t.get(r, "TradeId")
		if tradeID == "" {
			continue
		}
		side, _ := NormalizeDirection(t.get(r, "Side"))
		o := topstepOrder{
			kind:   topstepOrderKind(t.get(r, "Type")),
			side:   side,
			status: strings.ToLower(t.get(r, "Status")),
		}
		o.stop, _ = optionalLevel(t.get(r, "StopPrice"))
		o.limit, _ = optionalLevel(t.get(r, "LimitPrice"))
		orders[tradeID] = append(orders[tradeID], o)
	}
	return orders, nil
}

func topstepOrderKind(raw string) string {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "stop"):
		return "stop"
	case strings.Contains(s, "limit"):
		return "limit"
	default:
		return "market"
	}
}

// applyTopstepOrders derives stop and target levels from the exit orders of a
// trade. An exit order is one on the opposite side of the position. A filled
// stop means the stop was hit and a filled limit means the target was hit;
// these flags are authoritative and are not recomputed from prices later.
func applyTopstepOrders(d *Draft, orders []topstepOrder) {
	var triggers pnl.Triggers
	seen := false

	for _, o := range orders {
		if o.side == d.Direction {
			continue
		}
		switch o.kind {
		case "stop":
			if o.stop != nil {
				d.StopLoss = o.stop
				seen = true
			}
			if o.filled() {
				triggers.StopLossHit = true
			}
		case "limit":
			if o.limit != nil {
				d.TakeProfit = o.limit
				seen = true
			}
			if o.filled() {
				triggers.TakeProfitHit = true
			}
		}
	}

	if seen && d.HasExit() {
		d.ExitTriggers = &triggers
	}
}
