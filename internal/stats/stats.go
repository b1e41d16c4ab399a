package stats

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DefaultBreakevenThreshold is used when a user has not configured one
var DefaultBreakevenThreshold = decimal.RequireFromString("3.00")

var hundred = decimal.NewFromInt(100)

// Outcome is the classification of a closed trade
type Outcome string

const (
	OutcomeWin       Outcome = "win"
	OutcomeLoss      Outcome = "loss"
	OutcomeBreakeven Outcome = "breakeven"
)

// Sample is the minimal view of a closed trade the aggregator needs
type Sample struct {
	Symbol string
	NetPnl decimal.Decimal
	Fees   decimal.Decimal
}

// Totals holds the aggregate figures shared by the portfolio snapshot and
// each per-symbol breakdown
type Totals struct {
	TotalTrades  int             `json:"total_trades"`
	Wins         int             `json:"wins"`
	Losses       int             `json:"losses"`
	Breakevens   int             `json:"breakevens"`
	GrossProfit  decimal.Decimal `json:"gross_profit"`
	GrossLoss    decimal.Decimal `json:"gross_loss"`
	TotalPnl     decimal.Decimal `json:"total_pnl"`
	TotalFees    decimal.Decimal `json:"total_fees"`
	ProfitFactor decimal.Decimal `json:"profit_factor"`
	WinRate      decimal.Decimal `json:"win_rate"`
	AvgWin       decimal.Decimal `json:"avg_win"`
	AvgLoss      decimal.Decimal `json:"avg_loss"`
	LargestWin   decimal.Decimal `json:"largest_win"`
	LargestLoss  decimal.Decimal `json:"largest_loss"`
	Expectancy   decimal.Decimal `json:"expectancy"`
}

// SymbolTotals is the per-symbol breakdown entry
type SymbolTotals struct {
	Symbol string `json:"symbol"`
	Totals
}

// Snapshot is the statistics summary of a set of closed trades
type Snapshot struct {
	Totals
	BreakevenThreshold decimal.Decimal `json:"breakeven_threshold"`
	BySymbol           []SymbolTotals  `json:"by_symbol"`
}

// Classify returns win when netPnl > threshold, loss when netPnl < -threshold,
// breakeven otherwise (the band is inclusive on both ends)
func Classify(netPnl, threshold decimal.Decimal) Outcome {
	switch {
	case netPnl.GreaterThan(threshold):
		return OutcomeWin
	case netPnl.LessThan(threshold.Neg()):
		return OutcomeLoss
	default:
		return OutcomeBreakeven
	}
}

// Summarize aggregates closed trades into a snapshot. The result depends only
// on the multiset of samples and the threshold, never on input order.
// A negative threshold is treated as zero.
func Summarize(samples []Sample, threshold decimal.Decimal) Snapshot {
	if threshold.IsNegative() {
		threshold = decimal.Zero
	}

	all := newAccumulator()
	bySymbol := make(map[string]*accumulator)

	for _, s := range samples {
		outcome := Classify(s.NetPnl, threshold)
		all.add(s, outcome)

		acc, ok := bySymbol[s.Symbol]
		if !ok {
			acc = newAccumulator()
			bySymbol[s.Symbol] = acc
		}
		acc.add(s, outcome)
	}

	symbols := make([]string, 0, len(bySymbol))
	for sym := range bySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	breakdown := make([]SymbolTotals, 0, len(symbols))
	for _, sym := range symbols {
		breakdown = append(breakdown, SymbolTotals{Symbol: sym, Totals: bySymbol[sym].totals()})
	}

	return Snapshot{
		Totals:             all.totals(),
		BreakevenThreshold: threshold,
		BySymbol:           breakdown,
	}
}

type accumulator struct {
	total, wins, losses, breakevens int

	grossProfit decimal.Decimal
	grossLoss   decimal.Decimal
	totalPnl    decimal.Decimal
	totalFees   decimal.Decimal
	largestWin  decimal.Decimal
	largestLoss decimal.Decimal
}

func newAccumulator() *accumulator {
	return &accumulator{
		grossProfit: decimal.Zero,
		grossLoss:   decimal.Zero,
		totalPnl:    decimal.Zero,
		totalFees:   decimal.Zero,
		largestWin:  decimal.Zero,
		largestLoss: decimal.Zero,
	}
}

func (a *accumulator) add(s Sample, outcome Outcome) {
	a.total++
	a.totalPnl = a.totalPnl.Add(s.NetPnl)
	a.totalFees = a.totalFees.Add(s.Fees)

	switch outcome {
	case OutcomeWin:
		a.wins++
		a.grossProfit = a.grossProfit.Add(s.NetPnl)
		if s.NetPnl.GreaterThan(a.largestWin) {
			a.largestWin = s.NetPnl
		}
	case OutcomeLoss:
		a.losses++
		a.grossLoss = a.grossLoss.Add(s.NetPnl.Abs())
		if s.NetPnl.LessThan(a.largestLoss) {
			a.largestLoss = s.NetPnl
		}
	default:
		a.breakevens++
	}
}

func (a *accumulator) totals() Totals {
	t := Totals{
		TotalTrades:  a.total,
		Wins:         a.wins,
		Losses:       a.losses,
		Breakevens:   a.breakevens,
		GrossProfit:  a.grossProfit,
		GrossLoss:    a.grossLoss,
		TotalPnl:     a.totalPnl,
		TotalFees:    a.totalFees,
		ProfitFactor: decimal.Zero,
		WinRate:      decimal.Zero,
		AvgWin:       decimal.Zero,
		AvgLoss:      decimal.Zero,
		LargestWin:   a.largestWin,
		LargestLoss:  a.largestLoss,
		Expectancy:   decimal.Zero,
	}

	if a.grossLoss.IsPositive() {
		t.ProfitFactor = a.grossProfit.Div(a.grossLoss)
	}
	if decisive := a.wins + a.losses; decisive > 0 {
		t.WinRate = decimal.NewFromInt(int64(a.wins)).Mul(hundred).Div(decimal.NewFromInt(int64(decisive)))
	}
	if a.wins > 0 {
		t.AvgWin = a.grossProfit.Div(decimal.NewFromInt(int64(a.wins)))
	}
	if a.losses > 0 {
		t.AvgLoss = a.grossLoss.Div(decimal.NewFromInt(int64(a.losses)))
	}
	if a.total > 0 {
		t.Expectancy = a.totalPnl.Div(decimal.NewFromInt(int64(a.total)))
	}

	return t
}
