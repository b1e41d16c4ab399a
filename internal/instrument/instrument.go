package instrument

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Class represents the instrument class used for P&L scaling
type Class string

const (
	ClassFutures Class = "futures"
	ClassForex   Class = "forex"
)

// Spec describes how one point of price movement converts to account currency
type Spec struct {
	Root       string          `json:"root"`
	Class      Class           `json:"class"`
	Multiplier decimal.Decimal `json:"multiplier"`
	PipSize    decimal.Decimal `json:"pip_size,omitempty"`
	PipValue   decimal.Decimal `json:"pip_value,omitempty"`
	Currency   string          `json:"currency"`
}

// IsPipBased reports whether P&L for this spec is expressed in pips
func (s Spec) IsPipBased() bool {
	return s.Class == ClassForex && s.PipSize.IsPositive()
}

// Resolution is the result of a table lookup
type Resolution struct {
	Spec
	Known bool `json:"known"`
}

var defaultMultiplier = decimal.NewFromInt(1)

func futures(root, multiplier string) Spec {
	return Spec{
		Root:       root,
		Class:      ClassFutures,
		Multiplier: decimal.RequireFromString(multiplier),
		Currency:   "USD",
	}
}

// pip value is per standard lot (100,000 units of base currency), quoted in USD
func forex(root, pipSize, pipValue string) Spec {
	return Spec{
		Root:       root,
		Class:      ClassForex,
		Multiplier: defaultMultiplier,
		PipSize:    decimal.RequireFromString(pipSize),
		PipValue:   decimal.RequireFromString(pipValue),
		Currency:   "USD",
	}
}

var table = map[string]Spec{}

func register(specs ...Spec) {
	for _, s := range specs {
		table[s.Root] = s
	}
}

func init() {
	register(
		// Equity index
		futures("ES", "50"),
		futures("MES", "5"),
		futures("NQ", "20"),
		futures("MNQ", "2"),
		futures("YM", "5"),
		futures("MYM", "0.5"),
		futures("RTY", "50"),
		futures("M2K", "5"),
		futures("EMD", "100"),

		// Energy
		futures("CL", "1000"),
		futures("MCL", "100"),
		futures("QM", "500"),
		futures("NG", "10000"),
		futures("RB", "42000"),
		futures("HO", "42000"),

		// Metals
		futures("GC", "100"),
		futures("MGC", "10"),
		futures("SI", "5000"),
		futures("SIL", "1000"),
		futures("HG", "25000"),
		futures("PL", "50"),

		// Rates
		futures("ZB", "1000"),
		futures("UB", "1000"),
		futures("ZN", "1000"),
		futures("ZF", "1000"),
		futures("ZT", "2000"),

		// Agricultural
		futures("ZC", "50"),
		futures("ZS", "50"),
		futures("ZW", "50"),
		futures("LE", "400"),
		futures("HE", "400"),

		// Currency futures
		futures("6E", "125000"),
		futures("M6E", "12500"),
		futures("6J", "12500000"),
		futures("6B", "62500"),
		futures("6A", "100000"),
		futures("6C", "100000"),
		futures("6S", "125000"),

		// Crypto futures
		futures("BTC", "5"),
		futures("MBT", "0.1"),
		futures("ETH", "50"),
		futures("MET", "0.1"),

		// Forex majors and crosses
		forex("EURUSD", "0.0001", "10"),
		forex("GBPUSD", "0.0001", "10"),
		forex("AUDUSD", "0.0001", "10"),
		forex("NZDUSD", "0.0001", "10"),
		forex("USDCAD", "0.0001", "7.40"),
		forex("USDCHF", "0.0001", "11.10"),
		forex("EURGBP", "0.0001", "12.70"),
		forex("EURCHF", "0.0001", "11.10"),
		forex("EURAUD", "0.0001", "6.60"),
		forex("GBPAUD", "0.0001", "6.60"),
		forex("USDJPY", "0.01", "6.70"),
		forex("EURJPY", "0.01", "6.70"),
		forex("GBPJPY", "0.01", "6.70"),
		forex("AUDJPY", "0.01", "6.70"),
		forex("CADJPY", "0.01", "6.70"),
		forex("CHFJPY", "0.01", "6.70"),
		forex("XAUUSD", "0.1", "10"),
		forex("XAGUSD", "0.01", "50"),
	)
}

// Resolve looks up the contract specification of a symbol. Unknown symbols resolve to a
// futures spec with multiplier 1 and Known=false; Resolve never fails.
func Resolve(symbol string) Resolution {
	key := canonical(symbol)

	if spec, ok := table[key]; ok {
		return Resolution{Spec: spec, Known: true}
	}

	// Longest registered root that prefixes the symbol with a contract or
	// broker suffix after it (e.g. "ESZ4", "NQ 12-24", "EURUSDm")
	var best Spec
	found := false
	for root, spec := range table {
		if len(root) <= len(best.Root) || !strings.HasPrefix(key, root) {
			continue
		}
		if validSuffix(spec.Class, key[len(root):]) {
			best = spec
			found = true
		}
	}
	if found {
		return Resolution{Spec: best, Known: true}
	}

	return Resolution{
		Spec: Spec{
			Root:       key,
			Class:      ClassFutures,
			Multiplier: defaultMultiplier,
			Currency:   "USD",
		},
		Known: false,
	}
}

// Multiplier returns the contract multiplier for a symbol (1 when unknown)
func Multiplier(symbol string) decimal.Decimal {
	return Resolve(symbol).Multiplier
}

// List returns every registered spec sorted by root
func List() []Spec {
	specs := make([]Spec, 0, len(table))
	for _, s := range table {
		specs = append(specs, s)
	}
	sort.Slice(specs, func(i, j int) bool {
		return specs[i].Root < specs[j].Root
	})
	return specs
}

var (
	// month code plus a one or two digit year, or a "12-24" style expiry
	futuresSuffix = regexp.MustCompile(`^(?:[FGHJKMNQUVXZ]\d{1,2}| ?\d{2}-\d{2})$`)
	// single letter account-type tag some forex brokers append
	forexSuffix = regexp.MustCompile(`^[A-Z]$`)
)

func validSuffix(class Class, rest string) bool {
	if class == ClassForex {
		return forexSuffix.MatchString(rest)
	}
	return futuresSuffix.MatchString(rest)
}

func canonical(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.TrimPrefix(s, "/")
	if i := strings.IndexByte(s, '.'); i > 0 {
		s = s[:i]
	}
	return strings.ReplaceAll(s, "/", "")
}
