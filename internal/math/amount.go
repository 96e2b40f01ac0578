package math

import (
	stdmath "math"

	"github.com/shopspring/decimal"
)

// Ledger amounts are arbitrary-precision decimals. Prices, volumes, fees,
// balances and funding rates share the type, so sums and products are exact
// and a float input is booked at its shortest decimal representation.

// ToAmount converts a real to an exact amount.
// NaN and infinities map to ok=false.
func ToAmount(v float64) (decimal.Decimal, bool) {
	if stdmath.IsNaN(v) || stdmath.IsInf(v, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(v), true
}

// MustAmount is ToAmount for values already known to be finite.
func MustAmount(v float64) decimal.Decimal {
	d, _ := ToAmount(v)
	return d
}

// FromAmount converts an amount back to the nearest real.
func FromAmount(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

// ComputeNotional returns price * volume in counter-asset units.
func ComputeNotional(price, volume decimal.Decimal) decimal.Decimal {
	return price.Mul(volume)
}
