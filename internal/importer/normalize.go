package importer

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trade-ledger/internal/instrument"
	"github.com/trade-ledger/internal/models"
)

// now is the last-resort timestamp for unparseable dates
var now = time.Now

// contract month code plus a one or two digit year, e.g. ESZ4, MNQH25
var contractSuffix = regexp.MustCompile(`^([A-Z0-9]{2,}?)([FGHJKMNQUVXZ])(\d{1,2})$`)

// genericLayouts are tried after a platform's native layouts
var genericLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04:05",
	"01/02/2006 03:04:05 PM",
	"1/2/2006 3:04:05 PM",
	"01/02/2006 15:04",
	"1/2/2006 3:04 PM",
	"01/02/2006",
	"1/2/2006",
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
	"2006.01.02",
}

// NormalizeSymbol reduces a platform ticker to its uppercase root: contract
// month and year suffixes, exchange suffixes and separators are dropped
func NormalizeSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	}
	s = strings.TrimPrefix(s, "/")
	if i := strings.IndexByte(s, '.'); i > 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.ReplaceAll(s, "/", "")

	if m := contractSuffix.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// NormalizeDirection maps platform vocabulary onto long/short. buy, long and b
// are long and everything else is short. recognized is false when the token
// was not a known short spelling either, so callers can warn about the default.
func NormalizeDirection(raw string) (dir models.Direction, recognized bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy", "long", "b":
		return models.DirectionLong, true
	case "sell", "short", "s", "sold", "sld":
		return models.DirectionShort, true
	default:
		return models.DirectionShort, false
	}
}

// ParseTimestamp tries the native layouts, then common date-time layouts and
// unix epochs. When nothing matches it returns the current time and false.
func ParseTimestamp(raw string, native ...string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return now().UTC(), false
	}

	for _, layout := range native {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	for _, layout := range genericLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		// epoch milliseconds from 2001 onwards, otherwise seconds
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}

	return now().UTC(), false
}

// ParseMoney parses a price or money amount: currency symbols, thousands
// separators and parenthesized negatives are accepted
func ParseMoney(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, errors.New("empty value")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = strings.NewReplacer("$", "", ",", "", " ", "", "USD", "", "usd", "").Replace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q", raw)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// optionalMoney returns nil for an empty cell
func optionalMoney(raw string) (*decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := ParseMoney(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// optionalLevel treats empty and zero stop/target cells as unset
func optionalLevel(raw string) (*decimal.Decimal, error) {
	d, err := optionalMoney(raw)
	if err != nil || d == nil || d.IsZero() {
		return nil, err
	}
	return d, nil
}

// SumFees adds every fee-like amount and rounds to cents
func SumFees(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total.Round(2)
}

// InferInstrumentType classifies a symbol from the reference table, returning
// fallback for unknown symbols
func InferInstrumentType(symbol string, fallback models.InstrumentType) models.InstrumentType {
	res := instrument.Resolve(symbol)
	if !res.Known {
		return fallback
	}
	if res.Class == instrument.ClassForex {
		return models.InstrumentForex
	}
	return models.InstrumentFutures
}
