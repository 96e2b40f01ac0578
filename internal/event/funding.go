package event

import (
	"fmt"

	"github.com/google/uuid"
)

// FundingEvent is one settled perpetual position at one boundary.
type FundingEvent struct {
	FundingID       uuid.UUID `json:"funding_id"`
	Boundary        int64     `json:"boundary"` // Nanoseconds, aligned to the funding interval
	Venue           string    `json:"venue"`
	Pair            string    `json:"pair"`
	PositionSize    float64   `json:"position_size"`
	Rate            float64   `json:"rate"`
	ReferencePrice  float64   `json:"reference_price"` // Bid for a long, ask for a short
	PnL             float64   `json:"pnl"`             // Credited to SettlementAsset; negative means paid
	SettlementAsset string    `json:"settlement_asset"`
}

func (f FundingEvent) IdempotencyKey() string {
	return f.FundingID.String()
}

func (f FundingEvent) EventType() EventType {
	return EventTypeFunding
}

func (f FundingEvent) MarketID() string {
	return MarketKey(f.Venue, f.Pair)
}

// FundingSkipReason explains why a position was not settled at a boundary
type FundingSkipReason string

const (
	FundingSkipNoPrice FundingSkipReason = "no_reference_price"
	FundingSkipNoRate  FundingSkipReason = "no_funding_rate"
)

// FundingSkip records a position left unsettled at a boundary.
// Skipped boundaries are never backfilled.
type FundingSkip struct {
	Boundary     int64             `json:"boundary"`
	Venue        string            `json:"venue"`
	Pair         string            `json:"pair"`
	PositionSize float64           `json:"position_size"`
	Reason       FundingSkipReason `json:"reason"`
}

func (f FundingSkip) IdempotencyKey() string {
	return fmt.Sprintf("%s:funding_skip:%d", f.MarketID(), f.Boundary)
}

func (f FundingSkip) EventType() EventType {
	return EventTypeFundingSkip
}

func (f FundingSkip) MarketID() string {
	return MarketKey(f.Venue, f.Pair)
}
