package instrument

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestResolve_KnownFutures(t *testing.T) {
	tests := []struct {
		symbol     string
		root       string
		multiplier string
	}{
		{"ES", "ES", "50"},
		{"es", "ES", "50"},
		{"ESZ4", "ES", "50"},
		{"/ESH25", "ES", "50"},
		{"MES", "MES", "5"},
		{"MESM5", "MES", "5"},
		{"NQ", "NQ", "20"},
		{"MNQU4", "MNQ", "2"},
		{"SILZ4", "SIL", "1000"},
		{"6EH5", "6E", "125000"},
		{"NQ 12-24", "NQ", "20"},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			res := Resolve(tt.symbol)
			assert.True(t, res.Known)
			assert.Equal(t, tt.root, res.Root)
			assert.Equal(t, ClassFutures, res.Class)
			assert.True(t, decimal.RequireFromString(tt.multiplier).Equal(res.Multiplier),
				"multiplier for %s: got %s", tt.symbol, res.Multiplier)
			assert.False(t, res.IsPipBased())
		})
	}
}

func TestResolve_Forex(t *testing.T) {
	for _, symbol := range []string{"EURUSD", "EUR/USD", "eurusd.m", "EURUSDm"} {
		res := Resolve(symbol)
		assert.True(t, res.Known, symbol)
		assert.Equal(t, "EURUSD", res.Root, symbol)
		assert.True(t, res.IsPipBased(), symbol)
		assert.Equal(t, "0.0001", res.PipSize.String())
	}

	jpy := Resolve("USDJPY")
	assert.Equal(t, "0.01", jpy.PipSize.String())
}

func TestResolve_UnknownFallsBackToOne(t *testing.T) {
	res := Resolve("FOOBAR")
	assert.False(t, res.Known)
	assert.Equal(t, "FOOBAR", res.Root)
	assert.True(t, res.Multiplier.Equal(decimal.NewFromInt(1)))
	assert.False(t, res.IsPipBased())

	empty := Resolve("")
	assert.False(t, empty.Known)
	assert.True(t, empty.Multiplier.Equal(decimal.NewFromInt(1)))

	// equity tickers that merely start with a futures root
	for _, symbol := range []string{"PLUG", "SIRI", "LEVI", "CLSK", "ESPR", "ESZ", "EURUSDPRO"} {
		res := Resolve(symbol)
		assert.False(t, res.Known, symbol)
		assert.Equal(t, canonical(symbol), res.Root, symbol)
		assert.True(t, res.Multiplier.Equal(decimal.NewFromInt(1)), symbol)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	first := Resolve("MGCZ4")
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Resolve("MGCZ4"))
	}
	assert.Equal(t, "MGC", first.Root)
}

func TestList_SortedByRoot(t *testing.T) {
	specs := List()
	assert.NotEmpty(t, specs)
	for i := 1; i < len(specs); i++ {
		assert.Less(t, specs[i-1].Root, specs[i].Root)
	}
}
