package strategy

import (
	"QuoteLedger/internal/event"
	"QuoteLedger/internal/state"
	"fmt"
)

// TriangleArbitrage looks for a three-leg cycle on a single venue through
// base/quote, mid/base and mid/quote (BTC/USDC, ETH/BTC, ETH/USDC by default).
//
//	Cycle A: quote -> base -> mid -> quote (buy base/quote, buy mid/base, sell mid/quote)
//	Cycle B: quote -> mid -> base -> quote (buy mid/quote, sell mid/base, sell base/quote)
type TriangleArbitrage struct {
	fees      FeeTable
	baseQuote string
	midBase   string
	midQuote  string
	minPnL    float64
}

// NewTriangleArbitrage reads base, mid and quote asset names plus min_pnl.
func NewTriangleArbitrage(params Params) (Strategy, error) {
	base, err := params.String("base", "BTC")
	if err != nil {
		return nil, err
	}
	mid, err := params.String("mid", "ETH")
	if err != nil {
		return nil, err
	}
	quote, err := params.String("quote", "USDC")
	if err != nil {
		return nil, err
	}
	if base == "" || mid == "" || quote == "" || base == mid || mid == quote || base == quote {
		return nil, fmt.Errorf("triangle assets must be three distinct names, got %s/%s/%s", base, mid, quote)
	}
	minPnL, err := params.Float("min_pnl", 0)
	if err != nil {
		return nil, err
	}
	return &TriangleArbitrage{
		fees:      params.Fees,
		baseQuote: base + "/" + quote,
		midBase:   mid + "/" + base,
		midQuote:  mid + "/" + quote,
		minPnL:    minPnL,
	}, nil
}

func (s *TriangleArbitrage) Name() string { return "triangle" }

// Pairs returns the three pairs the cycle trades.
func (s *TriangleArbitrage) Pairs() [3]string {
	return [3]string{s.baseQuote, s.midBase, s.midQuote}
}

// book is a ticker with every price and size present.
type book struct {
	bid, ask, bidSize, askSize float64
}

func fullBook(t state.Ticker, ok bool) (book, bool) {
	if !ok || !t.Bid.Valid || !t.Ask.Valid || !t.BidSize.Valid || !t.AskSize.Valid {
		return book{}, false
	}
	return book{bid: t.Bid.Value, ask: t.Ask.Value, bidSize: t.BidSize.Value, askSize: t.AskSize.Value}, true
}

func (s *TriangleArbitrage) Decide(snap Snapshot) []event.TradeIntent {
	var best []event.TradeIntent
	bestPnL := s.minPnL

	for _, venue := range snap.Market.Venues() {
		feeBQ, ok1 := s.fees.Rate(venue, s.baseQuote)
		feeMB, ok2 := s.fees.Rate(venue, s.midBase)
		feeMQ, ok3 := s.fees.Rate(venue, s.midQuote)
		if !ok1 || !ok2 || !ok3 {
			continue
		}

		bq, ok1 := fullBook(snap.Market.Ticker(venue, s.baseQuote))
		mb, ok2 := fullBook(snap.Market.Ticker(venue, s.midBase))
		mq, ok3 := fullBook(snap.Market.Ticker(venue, s.midQuote))
		if !ok1 || !ok2 || !ok3 {
			continue
		}

		if pnl, legs, ok := s.cycleA(venue, bq, mb, mq, feeBQ, feeMB, feeMQ); ok && pnl > bestPnL {
			bestPnL = pnl
			best = legs
		}
		if pnl, legs, ok := s.cycleB(venue, bq, mb, mq, feeBQ, feeMB, feeMQ); ok && pnl > bestPnL {
			bestPnL = pnl
			best = legs
		}
	}
	return best
}

// cycleA: buy base with quote, buy mid with base, sell mid for quote.
func (s *TriangleArbitrage) cycleA(venue string, bq, mb, mq book, feeBQ, feeMB, feeMQ float64) (float64, []event.TradeIntent, bool) {
	if mb.ask <= 0 || bq.ask <= 0 || mq.bid <= 0 {
		return 0, nil, false
	}
	volMid := min(bq.askSize/mb.ask, mq.bidSize, mb.askSize)
	if volMid <= 0 {
		return 0, nil, false
	}
	volBase := volMid * mb.ask

	quoteIn := volBase * bq.ask
	quoteOut := volMid * mq.bid
	fee1 := feeBQ * bq.ask * volBase
	fee2 := feeMB * mb.ask * volMid // Denominated in base
	fee3 := feeMQ * mq.bid * volMid
	pnl := quoteOut - quoteIn - fee1 - fee2*bq.ask - fee3

	return pnl, []event.TradeIntent{
		{Venue: venue, Pair: s.baseQuote, Side: event.SideBuy, Price: bq.ask, Volume: volBase, Fee: fee1},
		{Venue: venue, Pair: s.midBase, Side: event.SideBuy, Price: mb.ask, Volume: volMid, Fee: fee2},
		{Venue: venue, Pair: s.midQuote, Side: event.SideSell, Price: mq.bid, Volume: volMid, Fee: fee3, PnL: event.Some(pnl)},
	}, true
}

// cycleB: buy mid with quote, sell mid for base, sell base for quote.
func (s *TriangleArbitrage) cycleB(venue string, bq, mb, mq book, feeBQ, feeMB, feeMQ float64) (float64, []event.TradeIntent, bool) {
	if mb.bid <= 0 || mq.ask <= 0 || bq.bid <= 0 {
		return 0, nil, false
	}
	volBase := min(mq.askSize*mb.bid, bq.bidSize, mb.bidSize*mb.bid)
	if volBase <= 0 {
		return 0, nil, false
	}
	volMid := volBase / mb.bid

	quoteIn := volMid * mq.ask
	quoteOut := volBase * bq.bid
	fee1 := feeMQ * mq.ask * volMid
	fee2 := feeMB * mb.bid * volMid // Denominated in base
	fee3 := feeBQ * bq.bid * volBase
	pnl := quoteOut - quoteIn - fee1 - fee2*bq.bid - fee3

	return pnl, []event.TradeIntent{
		{Venue: venue, Pair: s.midQuote, Side: event.SideBuy, Price: mq.ask, Volume: volMid, Fee: fee1},
		{Venue: venue, Pair: s.midBase, Side: event.SideSell, Price: mb.bid, Volume: volMid, Fee: fee2},
		{Venue: venue, Pair: s.baseQuote, Side: event.SideSell, Price: bq.bid, Volume: volBase, Fee: fee3, PnL: event.Some(pnl)},
	}, true
}
