package pnl

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/trade-ledger/internal/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func TestComputePnl_FuturesLongES(t *testing.T) {
	res := Compute(Input{
		Symbol:         "ES",
		InstrumentType: models.InstrumentFutures,
		Direction:      models.DirectionLong,
		EntryPrice:     d("5000.00"),
		ExitPrice:      d("5010.00"),
		Quantity:       d("1"),
		Fees:           d("4.50"),
	})

	assert.True(t, res.Realized.Equal(d("500.00")), "realized: %s", res.Realized)
	assert.True(t, res.Net.Equal(d("495.50")), "net: %s", res.Net)
	assert.False(t, res.Triggers.StopLossHit)
	assert.False(t, res.Triggers.TakeProfitHit)
}

func TestComputePnl_FuturesShortNQ(t *testing.T) {
	got := ComputePnl("NQ", models.InstrumentFutures, d("18000.00"), d("17980.00"), d("1"), models.DirectionShort)
	assert.True(t, got.Equal(d("400.00")), "got %s", got)
}

func TestComputePnl_ContractMonthSymbol(t *testing.T) {
	got := ComputePnl("MESZ4", models.InstrumentFutures, d("5000"), d("4990.25"), d("3"), models.DirectionLong)
	// -9.75 points * 3 contracts * $5
	assert.True(t, got.Equal(d("-146.25")), "got %s", got)
}

func TestComputePnl_Forex(t *testing.T) {
	tests := []struct {
		name      string
		symbol    string
		direction models.Direction
		entry     string
		exit      string
		qty       string
		want      string
	}{
		{"eurusd long 1 lot +25 pips", "EURUSD", models.DirectionLong, "1.08500", "1.08750", "1", "250.00"},
		{"eurusd short 0.5 lot", "EUR/USD", models.DirectionShort, "1.08500", "1.08750", "0.5", "-125.00"},
		{"usdjpy long 2 lots +15.5 pips", "USDJPY", models.DirectionLong, "150.000", "150.155", "2", "207.70"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputePnl(tt.symbol, models.InstrumentForex, d(tt.entry), d(tt.exit), d(tt.qty), tt.direction)
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestComputePnl_UnknownSymbolUsesMultiplierOne(t *testing.T) {
	got := ComputePnl("ZZZ", models.InstrumentFutures, d("10"), d("12.5"), d("4"), models.DirectionLong)
	assert.True(t, got.Equal(d("10")), "got %s", got)

	fx := ComputePnl("ABCXYZ", models.InstrumentForex, d("1.1"), d("1.2"), d("1000"), models.DirectionLong)
	assert.True(t, fx.Equal(d("100")), "got %s", fx)
}

func TestComputePnl_ZeroQuantity(t *testing.T) {
	got := ComputePnl("ES", models.InstrumentFutures, d("5000"), d("5100"), decimal.Zero, models.DirectionLong)
	assert.True(t, got.IsZero())
}

func TestComputePnl_DirectionSymmetry(t *testing.T) {
	cases := []struct {
		symbol string
		typ    models.InstrumentType
		entry  string
		exit   string
		qty    string
	}{
		{"ES", models.InstrumentFutures, "5000.25", "4987.75", "2"},
		{"CL", models.InstrumentFutures, "78.43", "79.01", "1"},
		{"MYM", models.InstrumentFutures, "39000", "39123", "7"},
		{"GBPUSD", models.InstrumentForex, "1.27011", "1.26533", "0.37"},
	}

	for _, c := range cases {
		long := ComputePnl(c.symbol, c.typ, d(c.entry), d(c.exit), d(c.qty), models.DirectionLong)
		short := ComputePnl(c.symbol, c.typ, d(c.entry), d(c.exit), d(c.qty), models.DirectionShort)
		assert.True(t, long.Equal(short.Neg()), "%s: flipping direction must negate (%s vs %s)", c.symbol, long, short)

		swapped := ComputePnl(c.symbol, c.typ, d(c.exit), d(c.entry), d(c.qty), models.DirectionShort)
		assert.True(t, long.Equal(swapped), "%s: flipping direction and swapping prices must match (%s vs %s)", c.symbol, long, swapped)
	}
}

func TestNetPnl(t *testing.T) {
	assert.True(t, NetPnl(d("100"), decimal.Zero).Equal(d("100")))
	assert.True(t, NetPnl(d("-20.10"), d("2.05")).Equal(d("-22.15")))
}

func TestEvaluateExitTriggers(t *testing.T) {
	tests := []struct {
		name      string
		direction models.Direction
		exit      string
		stop      *decimal.Decimal
		target    *decimal.Decimal
		want      Triggers
	}{
		{"long no levels", models.DirectionLong, "100", nil, nil, Triggers{}},
		{"long stop hit at level", models.DirectionLong, "95", dp("95"), dp("110"), Triggers{StopLossHit: true}},
		{"long stop hit below", models.DirectionLong, "90", dp("95"), nil, Triggers{StopLossHit: true}},
		{"long target hit", models.DirectionLong, "110", dp("95"), dp("110"), Triggers{TakeProfitHit: true}},
		{"long neither", models.DirectionLong, "100", dp("95"), dp("110"), Triggers{}},
		{"short stop hit", models.DirectionShort, "105", dp("105"), dp("90"), Triggers{StopLossHit: true}},
		{"short target hit", models.DirectionShort, "89", dp("105"), dp("90"), Triggers{TakeProfitHit: true}},
		{"short neither", models.DirectionShort, "100", dp("105"), dp("90"), Triggers{}},
		{"ambiguous both true", models.DirectionLong, "100", dp("100"), dp("100"), Triggers{StopLossHit: true, TakeProfitHit: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateExitTriggers(tt.direction, d(tt.exit), tt.stop, tt.target))
		})
	}
}

func TestRMultiple(t *testing.T) {
	r, ok := RMultiple(models.DirectionLong, d("100"), d("110"), dp("95"))
	assert.True(t, ok)
	assert.True(t, r.Equal(d("2")), "got %s", r)

	r, ok = RMultiple(models.DirectionShort, d("100"), d("104"), dp("102"))
	assert.True(t, ok)
	assert.True(t, r.Equal(d("-2")), "got %s", r)

	_, ok = RMultiple(models.DirectionLong, d("100"), d("110"), nil)
	assert.False(t, ok)

	_, ok = RMultiple(models.DirectionLong, d("100"), d("110"), dp("100"))
	assert.False(t, ok)
}
