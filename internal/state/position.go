package state

import (
	fpmath "QuoteLedger/internal/math"

	"github.com/shopspring/decimal"
)

// PositionKey identifies a perpetual position
type PositionKey struct {
	Venue string
	Pair  string
}

// Position is a signed perpetual exposure on one venue.
type Position struct {
	Venue               string
	Pair                string
	Size                decimal.Decimal // Positive = long, negative = short
	Funded              bool            // At least one boundary settled
	LastFundingBoundary int64           // Meaningful only when Funded
	FundingPaid         decimal.Decimal // Cumulative funding pnl credited
	Version             int64
}

// IsFlat returns true if position has zero size
func (p *Position) IsFlat() bool {
	return p.Size.IsZero()
}

// SideSign returns +1 for long, -1 for short
func (p *Position) SideSign() int64 {
	return fpmath.SideSign(p.Size)
}

// SizeFloat returns the size as a real.
func (p *Position) SizeFloat() float64 {
	return fpmath.FromAmount(p.Size)
}

// settledAt reports whether boundary was already booked for this position.
func (p *Position) settledAt(boundary int64) bool {
	return p.Funded && p.LastFundingBoundary >= boundary
}
