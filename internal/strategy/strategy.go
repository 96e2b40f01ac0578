package strategy

import (
	"QuoteLedger/internal/event"
	"QuoteLedger/internal/ledger"
	"QuoteLedger/internal/state"
)

// Snapshot is everything a strategy may read at one instant.
// Both views are read-only and valid only for the duration of Decide.
type Snapshot struct {
	Timestamp int64
	Market    state.View
	Ledger    ledger.View
}

// Strategy turns a snapshot into an ordered list of trade legs.
// Legs are applied sequentially: a later leg observes the book impact and
// balances of earlier legs in the same list.
type Strategy interface {
	Name() string
	Decide(snap Snapshot) []event.TradeIntent
}

// Func adapts a plain function to Strategy.
type Func struct {
	Label string
	Fn    func(snap Snapshot) []event.TradeIntent
}

func (f Func) Name() string {
	if f.Label == "" {
		return "func"
	}
	return f.Label
}

func (f Func) Decide(snap Snapshot) []event.TradeIntent {
	if f.Fn == nil {
		return nil
	}
	return f.Fn(snap)
}

// Noop never trades. Useful to replay data and settle nothing.
type Noop struct{}

func (Noop) Name() string                        { return "noop" }
func (Noop) Decide(Snapshot) []event.TradeIntent { return nil }
