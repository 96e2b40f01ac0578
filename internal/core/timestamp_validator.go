package core

import (
	"QuoteLedger/internal/event"
	"errors"
	"fmt"
)

// ErrNonMonotonic is returned when the merged stream goes back in time.
var ErrNonMonotonic = errors.New("non-monotonic quote timestamp")

// TimestampValidator enforces non-decreasing event time across the merged
// stream. Equal timestamps are legal; they are counted per market.
// Not thread-safe; only accessed from the single-threaded engine loop.
type TimestampValidator struct {
	last    int64
	started bool
	metrics *TimestampMetrics
}

func NewTimestampValidator() *TimestampValidator {
	return &TimestampValidator{
		metrics: NewTimestampMetrics(),
	}
}

// Validate checks q against the last accepted timestamp and advances it.
func (tv *TimestampValidator) Validate(q event.Quote) error {
	market := q.MarketID()

	if !tv.started {
		tv.started = true
		tv.last = q.Timestamp
		return nil
	}

	if q.Timestamp < tv.last {
		tv.metrics.RecordOutOfOrder(market)
		return fmt.Errorf("%w: %s at %d after %d", ErrNonMonotonic, market, q.Timestamp, tv.last)
	}

	if q.Timestamp == tv.last {
		tv.metrics.RecordTie(market)
	}

	tv.last = q.Timestamp
	return nil
}

// Last returns the last accepted timestamp; false before the first quote.
func (tv *TimestampValidator) Last() (int64, bool) {
	return tv.last, tv.started
}

// Metrics exposes the validator counters.
func (tv *TimestampValidator) Metrics() *TimestampMetrics {
	return tv.metrics
}

// --- Metrics ---

// TimestampMetrics tracks ordering stats per market.
// Not thread-safe; only accessed from the single-threaded engine loop.
type TimestampMetrics struct {
	outOfOrder map[string]int64 // market -> quotes older than the clock
	ties       map[string]int64 // market -> quotes sharing the clock's instant
}

func NewTimestampMetrics() *TimestampMetrics {
	return &TimestampMetrics{
		outOfOrder: make(map[string]int64),
		ties:       make(map[string]int64),
	}
}

func (m *TimestampMetrics) RecordOutOfOrder(market string) {
	m.outOfOrder[market]++
}

func (m *TimestampMetrics) RecordTie(market string) {
	m.ties[market]++
}

func (m *TimestampMetrics) GetOutOfOrder(market string) int64 {
	return m.outOfOrder[market]
}

func (m *TimestampMetrics) GetTies(market string) int64 {
	return m.ties[market]
}
