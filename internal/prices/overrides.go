package prices

// Universal sanity bounds: a quote outside this range is discarded before it
// can contribute to consensus.
const (
	MinSanePrice = 0.01
	MaxSanePrice = 50000.0
)

// SymbolOverride narrows the acceptable price range for one known-problematic
// symbol. This is configuration, not control flow: sources that habitually
// misquote a ticker (wrong exchange, stale split) get a tighter band here.
type SymbolOverride struct {
	MinPrice float64
	MaxPrice float64
}

// Overrides maps symbol to its narrowed acceptable range.
type Overrides map[string]SymbolOverride

// DefaultOverrides holds the known-problematic symbols. Taiwan-listed
// tickers are quoted in TWD on the TWSE; a US ADR quote for the same symbol
// lands far outside these bands and gets discarded.
func DefaultOverrides() Overrides {
	return Overrides{
		"2330": {MinPrice: 300, MaxPrice: 3000},
	}
}

// Accept reports whether price is within the acceptable range for symbol.
func (o Overrides) Accept(symbol string, price float64) bool {
	if price < MinSanePrice || price > MaxSanePrice {
		return false
	}
	ov, ok := o[symbol]
	if !ok {
		return true
	}
	if ov.MinPrice > 0 && price < ov.MinPrice {
		return false
	}
	if ov.MaxPrice > 0 && price > ov.MaxPrice {
		return false
	}
	return true
}
