package pnl

import (
	"github.com/shopspring/decimal"
	"github.com/trade-ledger/internal/instrument"
	"github.com/trade-ledger/internal/models"
)

// Money precision for stored P&L values
const moneyPlaces = 2

// Input carries every field that P&L and exit triggers depend on
type Input struct {
	Symbol         string
	InstrumentType models.InstrumentType
	Direction      models.Direction
	EntryPrice     decimal.Decimal
	ExitPrice      decimal.Decimal
	Quantity       decimal.Decimal
	Fees           decimal.Decimal
	StopLoss       *decimal.Decimal
	TakeProfit     *decimal.Decimal
}

// Triggers holds the derived stop-loss/take-profit hit flags
type Triggers struct {
	StopLossHit   bool `json:"stop_loss_hit"`
	TakeProfitHit bool `json:"take_profit_hit"`
}

// Result bundles everything computed for a closed trade
type Result struct {
	Realized decimal.Decimal
	Net      decimal.Decimal
	Triggers Triggers
}

// Compute returns realized P&L, net P&L and exit triggers for a closed trade.
// Every code path that closes or recomputes a trade goes through here.
func Compute(in Input) Result {
	realized := ComputePnl(in.Symbol, in.InstrumentType, in.EntryPrice, in.ExitPrice, in.Quantity, in.Direction)
	return Result{
		Realized: realized,
		Net:      NetPnl(realized, in.Fees),
		Triggers: EvaluateExitTriggers(in.Direction, in.ExitPrice, in.StopLoss, in.TakeProfit),
	}
}

// ComputePnl returns the gross realized P&L scaled by the instrument's
// contract multiplier (futures) or pip value (forex). Unknown symbols
// use a multiplier of 1.
func ComputePnl(
	symbol string,
	instrumentType models.InstrumentType,
	entryPrice, exitPrice, quantity decimal.Decimal,
	direction models.Direction,
) decimal.Decimal {
	if quantity.IsZero() {
		return decimal.Zero
	}

	spec := instrument.Resolve(symbol)
	move := exitPrice.Sub(entryPrice).Mul(direction.Sign())

	var raw decimal.Decimal
	if instrumentType == models.InstrumentForex && spec.IsPipBased() {
		pips := move.Div(spec.PipSize)
		raw = pips.Mul(spec.PipValue).Mul(quantity)
	} else {
		raw = move.Mul(quantity).Mul(spec.Multiplier)
	}

	return raw.Round(moneyPlaces)
}

// NetPnl returns realized minus fees
func NetPnl(realized, fees decimal.Decimal) decimal.Decimal {
	return realized.Sub(fees).Round(moneyPlaces)
}

// EvaluateExitTriggers reports whether the exit price reached the stop-loss
// or take-profit level. Unset levels never trigger. Both flags may be true
// for the same exit; no tie-break is applied.
func EvaluateExitTriggers(direction models.Direction, exitPrice decimal.Decimal, stopLoss, takeProfit *decimal.Decimal) Triggers {
	var t Triggers

	if direction == models.DirectionLong {
		if stopLoss != nil {
			t.StopLossHit = exitPrice.LessThanOrEqual(*stopLoss)
		}
		if takeProfit != nil {
			t.TakeProfitHit = exitPrice.GreaterThanOrEqual(*takeProfit)
		}
		return t
	}

	if stopLoss != nil {
		t.StopLossHit = exitPrice.GreaterThanOrEqual(*stopLoss)
	}
	if takeProfit != nil {
		t.TakeProfitHit = exitPrice.LessThanOrEqual(*takeProfit)
	}
	return t
}

// RMultiple returns the trade outcome in units of initial risk
// (distance from entry to stop). Returns false when no stop is set or the
// stop sits at the entry price.
func RMultiple(direction models.Direction, entryPrice, exitPrice decimal.Decimal, stopLoss *decimal.Decimal) (decimal.Decimal, bool) {
	if stopLoss == nil {
		return decimal.Zero, false
	}
	risk := entryPrice.Sub(*stopLoss).Abs()
	if risk.IsZero() {
		return decimal.Zero, false
	}
	reward := exitPrice.Sub(entryPrice).Mul(direction.Sign())
	return reward.DivRound(risk, moneyPlaces), true
}
