package state

import (
	"QuoteLedger/internal/event"
	fpmath "QuoteLedger/internal/math"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultFundingInterval is the settlement period when none is configured.
const DefaultFundingInterval = time.Hour

// FundingScheduler owns the funding clock. Boundaries are multiples of the
// interval since the Unix epoch, in event time.
type FundingScheduler struct {
	interval int64 // Nanoseconds
	next     int64
	started  bool
}

// FundingSettlement is the computed transfer for one position at one boundary.
type FundingSettlement struct {
	Boundary       int64
	Venue          string
	Pair           string
	PositionSize   decimal.Decimal
	Rate           decimal.Decimal
	ReferencePrice decimal.Decimal
	PnL            decimal.Decimal // Credited to the settlement asset
}

func NewFundingScheduler(interval time.Duration) *FundingScheduler {
	if interval <= 0 {
		interval = DefaultFundingInterval
	}
	return &FundingScheduler{
		interval: interval.Nanoseconds(),
	}
}

// Interval returns the settlement period.
func (fs *FundingScheduler) Interval() time.Duration {
	return time.Duration(fs.interval)
}

// NextBoundary returns the next unsettled boundary; false before the first event.
func (fs *FundingScheduler) NextBoundary() (int64, bool) {
	return fs.next, fs.started
}

// Advance returns every boundary <= ts that has not been returned before, in
// ascending order, and moves the pointer past them. The first call anchors
// the clock at the first aligned boundary at or after ts.
func (fs *FundingScheduler) Advance(ts int64) []int64 {
	if !fs.started {
		fs.next = AlignUp(ts, fs.interval)
		fs.started = true
	}

	var due []int64
	for fs.next <= ts {
		due = append(due, fs.next)
		fs.next += fs.interval
	}
	return due
}

// Settle computes funding for every open position at boundary.
// Positions lacking a funding rate or a reference price are skipped for this
// boundary and never revisited. Settled positions are stamped with boundary.
func (fs *FundingScheduler) Settle(boundary int64, pm *PositionManager, market View) ([]FundingSettlement, []event.FundingSkip) {
	var settlements []FundingSettlement
	var skips []event.FundingSkip

	for _, pos := range pm.OpenPositions() {
		if pos.settledAt(boundary) {
			continue
		}

		t, _ := market.Ticker(pos.Venue, pos.Pair)

		if !t.FundingRate.Valid {
			skips = append(skips, fundingSkip(boundary, pos, event.FundingSkipNoRate))
			continue
		}

		// Pay convention: a long closes against the bid, a short against the ask
		ref := t.Bid
		if pos.Size.IsNegative() {
			ref = t.Ask
		}
		if !ref.Valid {
			skips = append(skips, fundingSkip(boundary, pos, event.FundingSkipNoPrice))
			continue
		}

		rate, okRate := fpmath.ToAmount(t.FundingRate.Value)
		price, okPrice := fpmath.ToAmount(ref.Value)
		if !okRate {
			skips = append(skips, fundingSkip(boundary, pos, event.FundingSkipNoRate))
			continue
		}
		if !okPrice {
			skips = append(skips, fundingSkip(boundary, pos, event.FundingSkipNoPrice))
			continue
		}

		pnl := fpmath.ComputeFundingPnL(pos.Size, price, rate)

		pos.Funded = true
		pos.LastFundingBoundary = boundary
		pos.FundingPaid = pos.FundingPaid.Add(pnl)
		pos.Version++

		settlements = append(settlements, FundingSettlement{
			Boundary:       boundary,
			Venue:          pos.Venue,
			Pair:           pos.Pair,
			PositionSize:   pos.Size,
			Rate:           rate,
			ReferencePrice: price,
			PnL:            pnl,
		})
	}

	return settlements, skips
}

func fundingSkip(boundary int64, pos *Position, reason event.FundingSkipReason) event.FundingSkip {
	return event.FundingSkip{
		Boundary:     boundary,
		Venue:        pos.Venue,
		Pair:         pos.Pair,
		PositionSize: pos.SizeFloat(),
		Reason:       reason,
	}
}

// AlignUp returns the smallest multiple of interval that is >= ts.
func AlignUp(ts, interval int64) int64 {
	mod := ts % interval
	if mod < 0 {
		mod += interval
	}
	if mod == 0 {
		return ts
	}
	return ts - mod + interval
}
