package event_test

import (
	"QuoteLedger/internal/event"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptFloat_NaNIsAbsent(t *testing.T) {
	assert.False(t, event.Some(math.NaN()).Valid)
	assert.True(t, event.Some(0).Valid)
	assert.True(t, event.None().Equal(event.Some(math.NaN())))
	assert.False(t, event.Some(1).Equal(event.None()))
	assert.Nil(t, event.None().Ptr())
}

func TestOptFloat_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A event.OptFloat `json:"a"`
		B event.OptFloat `json:"b"`
	}{A: event.Some(1.5), B: event.None()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1.5,"b":null}`, string(data))

	var back struct {
		A event.OptFloat `json:"a"`
		B event.OptFloat `json:"b"`
	}
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, event.Some(1.5), back.A)
	assert.False(t, back.B.Valid)
}

func TestSplitPair(t *testing.T) {
	base, quote, ok := event.SplitPair("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, "BTC", base)
	assert.Equal(t, "USDT", quote)

	for _, bad := range []string{"BTCUSDT", "BTC/", "/USDT", "A/B/C", ""} {
		_, _, ok := event.SplitPair(bad)
		assert.False(t, ok, bad)
	}
}

func TestTradeIntent_Validate(t *testing.T) {
	good := event.TradeIntent{Venue: "A", Pair: "BTC/USDT", Price: 100, Volume: 1}
	assert.NoError(t, good.Validate())

	cases := map[string]func(*event.TradeIntent){
		"zero price":    func(ti *event.TradeIntent) { ti.Price = 0 },
		"nan volume":    func(ti *event.TradeIntent) { ti.Volume = math.NaN() },
		"negative fee":  func(ti *event.TradeIntent) { ti.Fee = -0.1 },
		"infinite fee":  func(ti *event.TradeIntent) { ti.Fee = math.Inf(1) },
		"missing venue": func(ti *event.TradeIntent) { ti.Venue = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			ti := good
			mutate(&ti)
			assert.Error(t, ti.Validate())
		})
	}
}

func TestQuote_Validate(t *testing.T) {
	q := event.Quote{Venue: "A", Pair: "BTC/USDT", Bid: event.Some(1), Ask: event.None()}
	assert.NoError(t, q.Validate())

	q.BidSize = event.Some(-1)
	assert.ErrorContains(t, q.Validate(), "bid_size")
}

func TestQuote_SameTopOfBook(t *testing.T) {
	a := event.Quote{Bid: event.Some(1), Ask: event.None(), BidSize: event.Some(3)}
	b := event.Quote{Bid: event.Some(1), Ask: event.None(), BidSize: event.Some(9)}
	assert.True(t, a.SameTopOfBook(&b))

	b.Ask = event.Some(2)
	assert.False(t, a.SameTopOfBook(&b))
}

func TestSideAndInstrumentText(t *testing.T) {
	data, err := json.Marshal(event.TradeIntent{Side: event.SideSell, Instrument: event.InstrumentPerpetual})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"side":"sell"`)
	assert.Contains(t, string(data), `"instrument":"perpetual"`)

	var ti event.TradeIntent
	require.NoError(t, json.Unmarshal(data, &ti))
	assert.Equal(t, event.SideSell, ti.Side)
	assert.Equal(t, event.InstrumentPerpetual, ti.Instrument)

	_, err = event.ParseSide("hold")
	assert.Error(t, err)
	assert.Equal(t, int64(-1), event.SideSell.Sign())
}

func TestEventTypeAndKeys(t *testing.T) {
	r := event.Rejection{Sequence: 4, Leg: 1, Intent: event.TradeIntent{Venue: "A", Pair: "BTC/USDT"}, Reason: event.RejectNoQuote}
	assert.Equal(t, "rejection", r.EventType().String())
	assert.Equal(t, "A:BTC/USDT:rejection:4:1", r.IdempotencyKey())
	assert.Contains(t, r.Error(), "no_quote")
}
