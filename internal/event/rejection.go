package event

import (
	"fmt"
)

// RejectReason classifies a dropped intent
type RejectReason string

const (
	// Stale decisions
	RejectNoQuote    RejectReason = "no_quote"
	RejectMissingFee RejectReason = "missing_fee"

	// Data quality
	RejectEmptyBook     RejectReason = "empty_book"
	RejectMalformedPair RejectReason = "malformed_pair"
	RejectInvalidIntent RejectReason = "invalid_intent"
)

// Rejection is an intent the engine dropped without applying.
type Rejection struct {
	Sequence  int64        `json:"sequence"`
	Leg       int          `json:"leg"`
	Timestamp int64        `json:"timestamp"`
	Intent    TradeIntent  `json:"intent"`
	Reason    RejectReason `json:"reason"`
	Detail    string       `json:"detail"`
}

func (r Rejection) IdempotencyKey() string {
	return fmt.Sprintf("%s:rejection:%d:%d", r.MarketID(), r.Sequence, r.Leg)
}

func (r Rejection) EventType() EventType {
	return EventTypeRejection
}

func (r Rejection) MarketID() string {
	return MarketKey(r.Intent.Venue, r.Intent.Pair)
}

func (r Rejection) Error() string {
	return fmt.Sprintf("%s %s %s rejected: %s (%s)", r.Intent.Venue, r.Intent.Pair, r.Intent.Side, r.Reason, r.Detail)
}
