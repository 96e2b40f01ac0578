package state

import (
	"QuoteLedger/internal/event"
)

// Ticker is the latest known top-of-book for one venue/pair.
type Ticker struct {
	Bid         event.OptFloat
	Ask         event.OptFloat
	BidSize     event.OptFloat
	AskSize     event.OptFloat
	FundingRate event.OptFloat
	Timestamp   int64 // Timestamp of the quote that last replaced it
}

// View is read-only access to market state. Strategies only ever see a View.
type View interface {
	// Ticker returns the zero Ticker and false for a never-observed venue/pair.
	Ticker(venue, pair string) (Ticker, bool)

	// Venues returns venues in first-observed order.
	Venues() []string

	// Pairs returns pairs of a venue in first-observed order.
	Pairs(venue string) []string

	// Range visits every ticker in deterministic order until fn returns false.
	Range(fn func(venue, pair string, t Ticker) bool)
}

type venueBook struct {
	tickers map[string]*Ticker
	pairs   []string
}

// MarketState holds per-venue, per-pair tickers.
// Not thread-safe; only accessed from the single-threaded engine loop.
type MarketState struct {
	venues map[string]*venueBook
	order  []string
}

func NewMarketState() *MarketState {
	return &MarketState{
		venues: make(map[string]*venueBook),
	}
}

// Update replaces the ticker for the quote's venue/pair wholesale.
func (ms *MarketState) Update(q event.Quote) {
	t := ms.getOrCreate(q.Venue, q.Pair)
	*t = Ticker{
		Bid:         q.Bid,
		Ask:         q.Ask,
		BidSize:     q.BidSize,
		AskSize:     q.AskSize,
		FundingRate: q.FundingRate,
		Timestamp:   q.Timestamp,
	}
}

// ConsumeAsk clears ask price and size after a buy took the top of book.
func (ms *MarketState) ConsumeAsk(venue, pair string) {
	if t := ms.lookup(venue, pair); t != nil {
		t.Ask = event.None()
		t.AskSize = event.None()
	}
}

// ConsumeBid clears bid price and size after a sell took the top of book.
func (ms *MarketState) ConsumeBid(venue, pair string) {
	if t := ms.lookup(venue, pair); t != nil {
		t.Bid = event.None()
		t.BidSize = event.None()
	}
}

// Consume clears the side a trade of the given direction executes against.
func (ms *MarketState) Consume(venue, pair string, side event.Side) {
	if side == event.SideBuy {
		ms.ConsumeAsk(venue, pair)
		return
	}
	ms.ConsumeBid(venue, pair)
}

func (ms *MarketState) Ticker(venue, pair string) (Ticker, bool) {
	if t := ms.lookup(venue, pair); t != nil {
		return *t, true
	}
	return Ticker{}, false
}

func (ms *MarketState) Venues() []string {
	out := make([]string, len(ms.order))
	copy(out, ms.order)
	return out
}

func (ms *MarketState) Pairs(venue string) []string {
	vb := ms.venues[venue]
	if vb == nil {
		return nil
	}
	out := make([]string, len(vb.pairs))
	copy(out, vb.pairs)
	return out
}

func (ms *MarketState) Range(fn func(venue, pair string, t Ticker) bool) {
	for _, venue := range ms.order {
		vb := ms.venues[venue]
		for _, pair := range vb.pairs {
			if !fn(venue, pair, *vb.tickers[pair]) {
				return
			}
		}
	}
}

// View returns a read-only wrapper that cannot be type-asserted back to *MarketState.
func (ms *MarketState) View() View {
	return marketView{ms: ms}
}

func (ms *MarketState) lookup(venue, pair string) *Ticker {
	vb := ms.venues[venue]
	if vb == nil {
		return nil
	}
	return vb.tickers[pair]
}

func (ms *MarketState) getOrCreate(venue, pair string) *Ticker {
	vb := ms.venues[venue]
	if vb == nil {
		vb = &venueBook{tickers: make(map[string]*Ticker)}
		ms.venues[venue] = vb
		ms.order = append(ms.order, venue)
	}
	t := vb.tickers[pair]
	if t == nil {
		t = &Ticker{}
		vb.tickers[pair] = t
		vb.pairs = append(vb.pairs, pair)
	}
	return t
}

type marketView struct {
	ms *MarketState
}

func (v marketView) Ticker(venue, pair string) (Ticker, bool) { return v.ms.Ticker(venue, pair) }
func (v marketView) Venues() []string                        { return v.ms.Venues() }
func (v marketView) Pairs(venue string) []string             { return v.ms.Pairs(venue) }
func (v marketView) Range(fn func(venue, pair string, t Ticker) bool) {
	v.ms.Range(fn)
}
