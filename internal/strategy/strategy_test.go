package strategy_test

import (
	"QuoteLedger/internal/event"
	"QuoteLedger/internal/ledger"
	"QuoteLedger/internal/state"
	"QuoteLedger/internal/strategy"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quote(venue, pair string, bid, ask, bidSize, askSize float64) event.Quote {
	return event.Quote{
		Venue:   venue,
		Pair:    pair,
		Bid:     event.Some(bid),
		Ask:     event.Some(ask),
		BidSize: event.Some(bidSize),
		AskSize: event.Some(askSize),
	}
}

func snapshot(quotes ...event.Quote) strategy.Snapshot {
	ms := state.NewMarketState()
	for _, q := range quotes {
		ms.Update(q)
	}
	return strategy.Snapshot{
		Market: ms.View(),
		Ledger: ledger.NewBalanceTracker().View(),
	}
}

func zeroFees(venues ...string) strategy.FeeTable {
	ft := strategy.FeeTable{}
	for _, v := range venues {
		ft[v] = map[string]float64{"BTC/USDT": 0}
	}
	return ft
}

func TestRegistry_DuplicateAndUnknown(t *testing.T) {
	r := strategy.NewRegistry()
	noop := func(strategy.Params) (strategy.Strategy, error) { return strategy.Noop{}, nil }
	require.NoError(t, r.Register("x", noop))
	assert.Error(t, r.Register("x", noop))

	_, err := r.New("missing", strategy.Params{})
	assert.ErrorContains(t, err, "unknown strategy")
}

func TestDefaultRegistry_Names(t *testing.T) {
	r := strategy.DefaultRegistry()
	assert.Equal(t, []string{"cross_venue", "noop", "triangle"}, r.Names())

	s, err := r.New("cross_venue", strategy.Params{})
	require.NoError(t, err)
	assert.Equal(t, "cross_venue", s.Name())
}

func TestParams_TypeMismatch(t *testing.T) {
	_, err := strategy.NewCrossVenueArbitrage(strategy.Params{Values: map[string]any{"volume_scale": "big"}})
	assert.Error(t, err)

	_, err = strategy.NewCrossVenueArbitrage(strategy.Params{Values: map[string]any{"volume_scale": 2}})
	assert.Error(t, err)
}

func TestFeeTable(t *testing.T) {
	ft := strategy.FeeTable{"A": {"BTC/USDT": 0.001}}
	rate, ok := ft.Rate("A", "BTC/USDT")
	assert.True(t, ok)
	assert.Equal(t, 0.001, rate)

	_, ok = ft.Rate("A", "ETH/USDT")
	assert.False(t, ok)
	_, ok = strategy.FeeTable(nil).Rate("A", "BTC/USDT")
	assert.False(t, ok)

	fee, ok := ft.Fee("A", "BTC/USDT", 100, 2)
	assert.True(t, ok)
	assert.InDelta(t, 0.2, fee, 1e-12)
}

func TestFunc(t *testing.T) {
	called := false
	f := strategy.Func{Fn: func(strategy.Snapshot) []event.TradeIntent {
		called = true
		return nil
	}}
	assert.Equal(t, "func", f.Name())
	assert.Nil(t, f.Decide(snapshot()))
	assert.True(t, called)
}

func TestCrossVenue_BuysCheapSellsRich(t *testing.T) {
	s, err := strategy.NewCrossVenueArbitrage(strategy.Params{Fees: zeroFees("A", "B")})
	require.NoError(t, err)

	intents := s.Decide(snapshot(
		quote("A", "BTC/USDT", 99, 100, 1, 1),
		quote("B", "BTC/USDT", 105, 106, 2, 2),
	))
	require.Len(t, intents, 2)

	buy, sell := intents[0], intents[1]
	assert.Equal(t, "A", buy.Venue)
	assert.Equal(t, event.SideBuy, buy.Side)
	assert.Equal(t, 100.0, buy.Price)
	assert.Equal(t, 1.0, buy.Volume)
	assert.Equal(t, event.InstrumentSpot, buy.Instrument)

	assert.Equal(t, "B", sell.Venue)
	assert.Equal(t, event.SideSell, sell.Side)
	assert.Equal(t, 105.0, sell.Price)
	assert.Equal(t, 1.0, sell.Volume)
	require.True(t, sell.PnL.Valid)
	assert.InDelta(t, 5.0, sell.PnL.Value, 1e-12)
}

func TestCrossVenue_FeesReducePnL(t *testing.T) {
	fees := strategy.FeeTable{
		"A": {"BTC/USDT": 0.001},
		"B": {"BTC/USDT": 0.001},
	}
	s, err := strategy.NewCrossVenueArbitrage(strategy.Params{Fees: fees})
	require.NoError(t, err)

	intents := s.Decide(snapshot(
		quote("A", "BTC/USDT", 99, 100, 1, 1),
		quote("B", "BTC/USDT", 105, 106, 1, 1),
	))
	require.Len(t, intents, 2)
	assert.InDelta(t, 0.1, intents[0].Fee, 1e-12)
	assert.InDelta(t, 0.105, intents[1].Fee, 1e-12)
	assert.InDelta(t, 4.795, intents[1].PnL.Value, 1e-9)
}

func TestCrossVenue_NoTradeWhenFeeMissing(t *testing.T) {
	fees := strategy.FeeTable{"A": {"BTC/USDT": 0}}
	s, err := strategy.NewCrossVenueArbitrage(strategy.Params{Fees: fees})
	require.NoError(t, err)

	intents := s.Decide(snapshot(
		quote("A", "BTC/USDT", 99, 100, 1, 1),
		quote("B", "BTC/USDT", 105, 106, 1, 1),
	))
	assert.Empty(t, intents)
}

func TestCrossVenue_NoTradeWhenSizeAbsent(t *testing.T) {
	s, err := strategy.NewCrossVenueArbitrage(strategy.Params{Fees: zeroFees("A", "B")})
	require.NoError(t, err)

	a := quote("A", "BTC/USDT", 99, 100, 1, 1)
	a.AskSize = event.None()
	intents := s.Decide(snapshot(a, quote("B", "BTC/USDT", 105, 106, 1, 1)))
	assert.Empty(t, intents)
}

func TestCrossVenue_NoTradeWithoutSpread(t *testing.T) {
	s, err := strategy.NewCrossVenueArbitrage(strategy.Params{Fees: zeroFees("A", "B")})
	require.NoError(t, err)

	intents := s.Decide(snapshot(
		quote("A", "BTC/USDT", 99, 100, 1, 1),
		quote("B", "BTC/USDT", 99.5, 100.5, 1, 1),
	))
	assert.Empty(t, intents)
}

func TestCrossVenue_PerpetualPairs(t *testing.T) {
	s, err := strategy.NewCrossVenueArbitrage(strategy.Params{
		Fees:       zeroFees("A", "B"),
		Perpetuals: map[string]bool{"BTC/USDT": true},
	})
	require.NoError(t, err)

	intents := s.Decide(snapshot(
		quote("A", "BTC/USDT", 99, 100, 1, 1),
		quote("B", "BTC/USDT", 105, 106, 1, 1),
	))
	require.Len(t, intents, 2)
	assert.Equal(t, event.InstrumentPerpetual, intents[0].Instrument)
	assert.Equal(t, event.InstrumentPerpetual, intents[1].Instrument)
}

func TestTriangle_PicksProfitableCycle(t *testing.T) {
	fees := strategy.FeeTable{"X": {"BTC/USDC": 0, "ETH/BTC": 0, "ETH/USDC": 0}}
	s, err := strategy.NewTriangleArbitrage(strategy.Params{Fees: fees})
	require.NoError(t, err)

	intents := s.Decide(snapshot(
		quote("X", "BTC/USDC", 100, 100, 10, 10),
		quote("X", "ETH/BTC", 0.0625, 0.0625, 100, 100),
		quote("X", "ETH/USDC", 7, 7, 100, 100),
	))
	require.Len(t, intents, 3)

	assert.Equal(t, "BTC/USDC", intents[0].Pair)
	assert.Equal(t, event.SideBuy, intents[0].Side)
	assert.Equal(t, 6.25, intents[0].Volume)

	assert.Equal(t, "ETH/BTC", intents[1].Pair)
	assert.Equal(t, event.SideBuy, intents[1].Side)
	assert.Equal(t, 100.0, intents[1].Volume)

	assert.Equal(t, "ETH/USDC", intents[2].Pair)
	assert.Equal(t, event.SideSell, intents[2].Side)
	assert.Equal(t, 100.0, intents[2].Volume)
	assert.Equal(t, 75.0, intents[2].PnL.Value)
}

func TestTriangle_ReverseCycle(t *testing.T) {
	fees := strategy.FeeTable{"X": {"BTC/USDC": 0, "ETH/BTC": 0, "ETH/USDC": 0}}
	s, err := strategy.NewTriangleArbitrage(strategy.Params{Fees: fees})
	require.NoError(t, err)

	intents := s.Decide(snapshot(
		quote("X", "BTC/USDC", 100, 100, 10, 10),
		quote("X", "ETH/BTC", 0.0625, 0.0625, 100, 100),
		quote("X", "ETH/USDC", 5, 5, 100, 100),
	))
	require.Len(t, intents, 3)
	assert.Equal(t, "ETH/USDC", intents[0].Pair)
	assert.Equal(t, event.SideBuy, intents[0].Side)
	assert.Equal(t, "ETH/BTC", intents[1].Pair)
	assert.Equal(t, event.SideSell, intents[1].Side)
	assert.Equal(t, "BTC/USDC", intents[2].Pair)
	assert.Equal(t, event.SideSell, intents[2].Side)
	assert.Equal(t, 125.0, intents[2].PnL.Value)
}

func TestTriangle_RequiresAllBooks(t *testing.T) {
	fees := strategy.FeeTable{"X": {"BTC/USDC": 0, "ETH/BTC": 0, "ETH/USDC": 0}}
	s, err := strategy.NewTriangleArbitrage(strategy.Params{Fees: fees})
	require.NoError(t, err)

	intents := s.Decide(snapshot(
		quote("X", "BTC/USDC", 100, 100, 10, 10),
		quote("X", "ETH/USDC", 7, 7, 100, 100),
	))
	assert.Empty(t, intents)
}

func TestTriangle_RejectsDuplicateAssets(t *testing.T) {
	_, err := strategy.NewTriangleArbitrage(strategy.Params{Values: map[string]any{"mid": "BTC"}})
	assert.Error(t, err)
}
