package importer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trade-ledger/internal/models"
)

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestNormalizeSymbol(t *testing.T) {
	tests := map[string]string{
		"ESZ4":     "ES",
		"mnqh25":   "MNQ",
		"/ESH25":   "ES",
		"NQ 12-24": "NQ",
		"MESZ4":    "MES",
		"M2KZ4":    "M2K",
		"SILZ4":    "SIL",
		"6EH5":     "6E",
		"CME:ESZ4": "ES",
		"EUR/USD":  "EURUSD",
		"EURUSD.m": "EURUSD",
		"USDJPY":   "USDJPY",
		"ES":       "ES",
		"US30":     "US30",
		"SPX500":   "SPX500",
		"":         "",
	}

	for in, want := range tests {
		assert.Equal(t, want, NormalizeSymbol(in), "input %q", in)
	}
}

func TestNormalizeDirection(t *testing.T) {
	tests := []struct {
		in         string
		want       models.Direction
		recognized bool
	}{
		{"Buy", models.DirectionLong, true},
		{"LONG", models.DirectionLong, true},
		{"b", models.DirectionLong, true},
		{"sell", models.DirectionShort, true},
		{"Short", models.DirectionShort, true},
		{"S", models.DirectionShort, true},
		{"flat", models.DirectionShort, false},
		{"", models.DirectionShort, false},
	}

	for _, tt := range tests {
		dir, ok := NormalizeDirection(tt.in)
		assert.Equal(t, tt.want, dir, "input %q", tt.in)
		assert.Equal(t, tt.recognized, ok, "input %q", tt.in)
	}
}

func TestParseTimestamp(t *testing.T) {
	fixed := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()

	got, ok := ParseTimestamp("2024.01.02 10:00:00", "2006.01.02 15:04:05")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), got)

	// native layout misses, generic layout matches
	got, ok = ParseTimestamp("2024-03-04T05:06:07Z", "01/02/2006 15:04:05")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC), got)

	got, ok = ParseTimestamp("12/2/2024 9:30:00 AM")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 12, 2, 9, 30, 0, 0, time.UTC), got)

	got, ok = ParseTimestamp("1704189600")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), got)

	got, ok = ParseTimestamp("not a date")
	assert.False(t, ok)
	assert.Equal(t, fixed, got)
}

func TestParseMoney(t *testing.T) {
	tests := map[string]string{
		"$1,234.50":  "1234.50",
		"(25.00)":    "-25",
		"($400.00)":  "-400",
		"-$12.5":     "-12.5",
		"-$1,000.25": "-1000.25",
		"1.08500":    "1.085",
		" 42 ":       "42",
	}
	for in, want := range tests {
		got, err := ParseMoney(in)
		require.NoError(t, err, "input %q", in)
		assertDec(t, want, got)
	}

	_, err := ParseMoney("abc")
	assert.Error(t, err)
	_, err = ParseMoney("")
	assert.Error(t, err)
}

func TestSumFees(t *testing.T) {
	assertDec(t, "3.31", SumFees(decimal.RequireFromString("1.295"), decimal.RequireFromString("2.01")))
	assertDec(t, "0", SumFees())
}

func TestOptionalLevel_ZeroIsUnset(t *testing.T) {
	v, err := optionalLevel("0.00000")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = optionalLevel("1.0830")
	require.NoError(t, err)
	require.NotNil(t, v)
	assertDec(t, "1.083", *v)
}
