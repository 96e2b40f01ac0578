package math

import (
	"github.com/shopspring/decimal"
)

// ComputeFundingPnL returns the funding transfer for one position at one boundary.
// pnl = -positionSize * referencePrice * rate, so a long pays when rate > 0.
func ComputeFundingPnL(positionSize, referencePrice, rate decimal.Decimal) decimal.Decimal {
	return positionSize.Neg().Mul(referencePrice).Mul(rate)
}

// SideSign returns +1 for a long (positive) position and -1 for a short.
func SideSign(positionSize decimal.Decimal) int64 {
	if positionSize.IsNegative() {
		return -1
	}
	return 1
}
