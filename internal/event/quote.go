package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// OptFloat is an optional real. The zero value is absent.
type OptFloat struct {
	Value float64
	Valid bool
}

// Some returns a present value. NaN is treated as absent.
func Some(v float64) OptFloat {
	if math.IsNaN(v) {
		return OptFloat{}
	}
	return OptFloat{Value: v, Valid: true}
}

// None returns an absent value.
func None() OptFloat {
	return OptFloat{}
}

// FromPtr converts a nullable column value.
func FromPtr(v *float64) OptFloat {
	if v == nil {
		return OptFloat{}
	}
	return Some(*v)
}

// Equal treats two absent values as equal.
func (o OptFloat) Equal(other OptFloat) bool {
	if o.Valid != other.Valid {
		return false
	}
	return !o.Valid || o.Value == other.Value
}

// Ptr returns nil when absent.
func (o OptFloat) Ptr() *float64 {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}

// MarshalJSON encodes an absent value as null.
func (o OptFloat) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *OptFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = None()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

func (o OptFloat) String() string {
	if !o.Valid {
		return "-"
	}
	return fmt.Sprintf("%g", o.Value)
}

// Quote is an immutable top-of-book record from a historical log.
// An absent price means the side is empty, not zero.
type Quote struct {
	Venue       string   `json:"venue"`
	Pair        string   `json:"pair"`
	Timestamp   int64    `json:"timestamp"` // Nanoseconds since epoch
	Bid         OptFloat `json:"bid"`
	Ask         OptFloat `json:"ask"`
	BidSize     OptFloat `json:"bid_size"`
	AskSize     OptFloat `json:"ask_size"`
	FundingRate OptFloat `json:"funding_rate"` // Perpetual contracts only
}

// Validate rejects negative prices and sizes.
func (q *Quote) Validate() error {
	if q.Venue == "" {
		return fmt.Errorf("quote has empty venue")
	}
	if q.Pair == "" {
		return fmt.Errorf("quote has empty pair")
	}
	for _, f := range []struct {
		name string
		v    OptFloat
	}{
		{"bid", q.Bid},
		{"ask", q.Ask},
		{"bid_size", q.BidSize},
		{"ask_size", q.AskSize},
	} {
		if f.v.Valid && (f.v.Value < 0 || math.IsInf(f.v.Value, 0)) {
			return fmt.Errorf("%s %s: %s is invalid: %v", q.Venue, q.Pair, f.name, f.v.Value)
		}
	}
	return nil
}

// SameTopOfBook reports whether both bid and ask prices are unchanged.
func (q *Quote) SameTopOfBook(other *Quote) bool {
	return q.Bid.Equal(other.Bid) && q.Ask.Equal(other.Ask)
}

func (q Quote) IdempotencyKey() string {
	return fmt.Sprintf("%s:quote:%d", q.MarketID(), q.Timestamp)
}

func (q Quote) EventType() EventType {
	return EventTypeQuote
}

func (q Quote) MarketID() string {
	return MarketKey(q.Venue, q.Pair)
}
