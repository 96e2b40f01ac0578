package event

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// Side represents trade direction
type Side int32

const (
	SideBuy Side = iota
	SideSell
)

// Sign returns +1 for a buy and -1 for a sell.
func (s Side) Sign() int64 {
	if s == SideSell {
		return -1
	}
	return 1
}

func (s Side) String() string {
	if s == SideSell {
		return "sell"
	}
	return "buy"
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	parsed, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSide accepts "buy" or "sell".
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	}
	return SideBuy, fmt.Errorf("unknown side %q", s)
}

// Instrument distinguishes spot pairs from perpetual contracts
type Instrument int32

const (
	InstrumentSpot Instrument = iota
	InstrumentPerpetual
)

func (i Instrument) String() string {
	if i == InstrumentPerpetual {
		return "perpetual"
	}
	return "spot"
}

func (i Instrument) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Instrument) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "spot", "":
		*i = InstrumentSpot
	case "perpetual", "perp":
		*i = InstrumentPerpetual
	default:
		return fmt.Errorf("unknown instrument %q", text)
	}
	return nil
}

// TradeIntent is a leg returned by a strategy.
// Fee is an absolute amount in the counter asset, never a rate.
type TradeIntent struct {
	Venue      string     `json:"venue"`
	Pair       string     `json:"pair"`
	Side       Side       `json:"side"`
	Price      float64    `json:"price"`
	Volume     float64    `json:"volume"`
	Fee        float64    `json:"fee"`
	Instrument Instrument `json:"instrument"`
	PnL        OptFloat   `json:"pnl"` // Strategy-reported realized pnl, optional
}

// Validate checks the numeric fields of an intent.
func (ti *TradeIntent) Validate() error {
	if ti.Venue == "" || ti.Pair == "" {
		return fmt.Errorf("intent has empty venue or pair")
	}
	if !(ti.Price > 0) || math.IsInf(ti.Price, 0) {
		return fmt.Errorf("price must be positive, got %v", ti.Price)
	}
	if !(ti.Volume > 0) || math.IsInf(ti.Volume, 0) {
		return fmt.Errorf("volume must be positive, got %v", ti.Volume)
	}
	if !(ti.Fee >= 0) || math.IsInf(ti.Fee, 0) {
		return fmt.Errorf("fee must be non-negative, got %v", ti.Fee)
	}
	return nil
}

// SplitPair splits "BASE/QUOTE" into exactly two non-empty parts.
func SplitPair(pair string) (base, quote string, ok bool) {
	parts := strings.Split(pair, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// TradeRecord is an executed intent as stamped by the engine.
type TradeRecord struct {
	TradeID    uuid.UUID          `json:"trade_id"`
	Sequence   int64              `json:"sequence"`
	Leg        int                `json:"leg"` // Position of the intent in its batch
	Timestamp  int64              `json:"timestamp"`
	Intent     TradeIntent        `json:"intent"`
	BaseAsset  string             `json:"base_asset"`
	QuoteAsset string             `json:"quote_asset"`
	Notional   float64            `json:"notional"`
	Unsized    bool               `json:"unsized,omitempty"` // Filled against a price whose size was absent
	Balances   map[string]float64 `json:"balances"`          // Venue balances right after application
}

func (t TradeRecord) IdempotencyKey() string {
	return t.TradeID.String()
}

func (t TradeRecord) EventType() EventType {
	return EventTypeTrade
}

func (t TradeRecord) MarketID() string {
	return MarketKey(t.Intent.Venue, t.Intent.Pair)
}
