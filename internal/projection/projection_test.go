package projection_test

import (
	"QuoteLedger/internal/event"
	"QuoteLedger/internal/ledger"
	"QuoteLedger/internal/projection"
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticView is a fixed set of venue balances.
type staticView map[string]map[string]float64

func (v staticView) Balance(venue, asset string) float64 { return v[venue][asset] }

func (v staticView) Balances(venue string) map[string]float64 {
	out := make(map[string]float64)
	for asset, b := range v[venue] {
		out[asset] = b
	}
	return out
}

func (v staticView) Venues() []string {
	var out []string
	for _, venue := range []string{"A", "B", "C"} {
		if _, ok := v[venue]; ok {
			out = append(out, venue)
		}
	}
	return out
}

var _ ledger.View = staticView{}

func trade(venue string, side event.Side, fee float64, pnl event.OptFloat) event.TradeRecord {
	return event.TradeRecord{
		Intent: event.TradeIntent{
			Venue: venue, Pair: "BTC/USDT", Side: side,
			Price: 100, Volume: 1, Fee: fee, PnL: pnl,
		},
		BaseAsset:  "BTC",
		QuoteAsset: "USDT",
		Notional:   100,
	}
}

func TestParsePnLMetric(t *testing.T) {
	m, err := projection.ParsePnLMetric("")
	require.NoError(t, err)
	assert.Equal(t, projection.PnLSettlementDelta, m)

	m, err = projection.ParsePnLMetric("strategy")
	require.NoError(t, err)
	assert.Equal(t, projection.PnLStrategy, m)

	_, err = projection.ParsePnLMetric("sharpe")
	require.Error(t, err)
}

func TestAccumulator_SettlementDelta(t *testing.T) {
	acc := projection.NewAccumulator(projection.PnLSettlementDelta, "USDT",
		map[string]map[string]float64{"A": {"USDT": 1000}, "B": {"BTC": 1}})

	acc.RecordTick(1, staticView{"A": {"USDT": 1000}, "B": {"BTC": 1}})
	acc.RecordTrade(trade("A", event.SideBuy, 0.1, event.None()))
	acc.RecordTrade(trade("B", event.SideSell, 0.2, event.Some(4.7)))
	acc.RecordTick(2, staticView{"A": {"USDT": 899.9, "BTC": 1}, "B": {"USDT": 104.8}})
	acc.RecordTick(3, staticView{"A": {"USDT": 899.9, "BTC": 1}, "B": {"USDT": 104.8}})

	series := acc.Series()
	require.Len(t, series, 2)
	assert.Equal(t, int64(1), series[0].Timestamp)
	assert.InDelta(t, 0.0, series[0].Cumulative, 1e-9)
	assert.Equal(t, int64(2), series[1].Timestamp)
	assert.InDelta(t, 4.7, series[1].Cumulative, 1e-9)

	report := acc.Report("cross_venue", "abc", 3, staticView{"A": {"USDT": 899.9}})
	assert.Equal(t, int64(3), report.Quotes)
	assert.Equal(t, int64(1), report.FirstTimestamp)
	assert.Equal(t, int64(3), report.LastTimestamp)
	assert.InDelta(t, 4.7, report.TotalPnL, 1e-9)
	assert.InDelta(t, 0.1, report.Fees["A"]["USDT"], 1e-12)
	assert.InDelta(t, 0.2, report.Fees["B"]["USDT"], 1e-12)
	assert.Len(t, report.Trades, 2)
	assert.InDelta(t, 899.9, report.Balances["A"]["USDT"], 1e-9)
}

func TestAccumulator_StrategyMetric(t *testing.T) {
	acc := projection.NewAccumulator(projection.PnLStrategy, "USDT", nil)

	acc.RecordTrade(trade("A", event.SideBuy, 0, event.None()))
	acc.RecordTrade(trade("B", event.SideSell, 0, event.Some(5)))
	acc.RecordTick(10, staticView{})
	acc.RecordTrade(trade("B", event.SideSell, 0, event.Some(-1.5)))
	acc.RecordTick(20, staticView{})

	series := acc.Series()
	require.Len(t, series, 2)
	assert.InDelta(t, 5.0, series[0].Cumulative, 1e-12)
	assert.InDelta(t, 3.5, series[1].Cumulative, 1e-12)
}

func TestAccumulator_RejectionsAndFunding(t *testing.T) {
	acc := projection.NewAccumulator(projection.PnLSettlementDelta, "USDT", nil)

	acc.RecordRejection(event.Rejection{Reason: event.RejectNoQuote})
	acc.RecordRejection(event.Rejection{Reason: event.RejectNoQuote})
	acc.RecordRejection(event.Rejection{Reason: event.RejectMissingFee})
	acc.RecordFunding(event.FundingEvent{Boundary: 1, Venue: "A", Pair: "BTC-PERP", PnL: -0.5})
	acc.RecordFunding(event.FundingEvent{Boundary: 2, Venue: "A", Pair: "ETH-PERP", PnL: 0.2})
	acc.RecordFunding(event.FundingEvent{Boundary: 2, Venue: "A", Pair: "BTC-PERP", PnL: -0.25})
	acc.RecordFundingSkip(event.FundingSkip{Boundary: 2, Venue: "B", Pair: "BTC-PERP", Reason: event.FundingSkipNoPrice})

	report := acc.Report("noop", "", 0, staticView{})
	assert.Equal(t, int64(2), report.RejectionsByCause["no_quote"])
	assert.Equal(t, int64(1), report.RejectionsByCause["missing_fee"])
	assert.Len(t, report.FundingSkips, 1)
	assert.InDelta(t, -0.55, report.FundingPnL, 1e-12)

	history := acc.Funding()
	btc := history.QueryByMarket("A", "BTC-PERP", 10)
	require.Len(t, btc, 2)
	assert.Equal(t, int64(2), btc[0].Boundary)
	assert.Len(t, history.QueryByMarket("A", "BTC-PERP", 1), 1)
	assert.InDelta(t, -0.55, history.VenueTotal("A"), 1e-12)

	summary := report.Summary("run-1", 2*time.Second)
	assert.Equal(t, int64(3), summary.Rejections)
	assert.Equal(t, int64(3), summary.FundingEvents)
	assert.Equal(t, "noop", summary.Strategy)
}

func TestReport_WriteJSON(t *testing.T) {
	acc := projection.NewAccumulator(projection.PnLStrategy, "USDT", nil)
	acc.RecordTrade(trade("A", event.SideBuy, 0, event.Some(1.25)))
	acc.RecordTick(7, staticView{})
	report := acc.Report("cross_venue", "deadbeef", 1, staticView{"A": {"BTC": 1}})

	var buf bytes.Buffer
	require.NoError(t, report.WriteJSON(&buf))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "cross_venue", decoded["strategy"])
	assert.Equal(t, "strategy", decoded["pnl_metric"])
	assert.Equal(t, "deadbeef", decoded["state_hash"])
	trades := decoded["trades"].([]any)
	require.Len(t, trades, 1)
	intent := trades[0].(map[string]any)["intent"].(map[string]any)
	assert.Equal(t, "buy", intent["side"])
	assert.Equal(t, 1.25, intent["pnl"])

	path := filepath.Join(t.TempDir(), "out", "report.json")
	require.NoError(t, report.WriteJSONFile(path))
}

func TestFanout_BlockingAndLossySubscribers(t *testing.T) {
	in := make(chan event.Envelope)
	fanout := projection.NewFanout(in)
	durable := fanout.Subscribe("durable", 0, true)
	lossy := fanout.Subscribe("lossy", 1, false)

	done := make(chan error, 1)
	go func() { done <- fanout.Run(context.Background()) }()

	var got []int64
	consumed := make(chan struct{})
	go func() {
		for env := range durable {
			got = append(got, env.Sequence)
		}
		close(consumed)
	}()

	for seq := int64(1); seq <= 3; seq++ {
		in <- event.Envelope{Sequence: seq}
	}
	close(in)

	require.NoError(t, <-done)
	<-consumed
	assert.Equal(t, []int64{1, 2, 3}, got)

	var lossyGot []int64
	for env := range lossy {
		lossyGot = append(lossyGot, env.Sequence)
	}
	require.NotEmpty(t, lossyGot)
	assert.Equal(t, int64(1), lossyGot[0])
	assert.Equal(t, int64(3-len(lossyGot)), fanout.Dropped())
}
