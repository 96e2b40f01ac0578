package event

import (
	"fmt"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeQuote
	EventTypeTrade
	EventTypeRejection
	EventTypeFunding
	EventTypeFundingSkip
)

// Envelope wraps every engine output handed to downstream sinks
type Envelope struct {
	// Engine sequence of the quote that produced this output
	Sequence int64

	// Event type discriminator
	EventType EventType

	// Event time in nanoseconds (NOT wall-clock)
	Timestamp int64

	// Chain tip after the producing quote was fully applied
	StateHash [32]byte

	Payload Event
}

// Event is the interface all engine payloads implement
type Event interface {
	// IdempotencyKey returns a key that is stable across identical replays
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// MarketID returns "venue:pair"
	MarketID() string
}

func (et EventType) String() string {
	switch et {
	case EventTypeQuote:
		return "quote"
	case EventTypeTrade:
		return "trade"
	case EventTypeRejection:
		return "rejection"
	case EventTypeFunding:
		return "funding"
	case EventTypeFundingSkip:
		return "funding_skip"
	default:
		return "unknown"
	}
}

// MarketKey formats the venue/pair partition key.
func MarketKey(venue, pair string) string {
	return fmt.Sprintf("%s:%s", venue, pair)
}
