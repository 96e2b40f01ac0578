package projection

import (
	"QuoteLedger/internal/event"
	"QuoteLedger/internal/ledger"
	"fmt"
)

// PnLMetric selects how cumulative pnl is derived
type PnLMetric string

const (
	// Sum of settlement-asset venue balances minus the initial sum
	PnLSettlementDelta PnLMetric = "settlement_delta"
	// Running sum of the pnl strategies report on their legs
	PnLStrategy PnLMetric = "strategy"
)

// ParsePnLMetric accepts the metric names; empty selects settlement_delta.
func ParsePnLMetric(s string) (PnLMetric, error) {
	switch PnLMetric(s) {
	case "", PnLSettlementDelta:
		return PnLSettlementDelta, nil
	case PnLStrategy:
		return PnLStrategy, nil
	}
	return "", fmt.Errorf("unknown pnl metric %q (want %s or %s)", s, PnLSettlementDelta, PnLStrategy)
}

// PnLPoint is one step of the cumulative pnl curve.
type PnLPoint struct {
	Timestamp  int64   `json:"timestamp"`
	Cumulative float64 `json:"cumulative"`
}

// Accumulator collects engine outcomes into an append-only timeline.
// Not thread-safe; fed from the single-threaded engine loop.
type Accumulator struct {
	metric          PnLMetric
	settlementAsset string
	initialSettle   float64

	trades     []event.TradeRecord
	rejections []event.Rejection
	skips      []event.FundingSkip
	funding    *FundingHistoryProjection

	fees        map[string]map[string]float64 // venue -> asset -> paid
	rejectCount map[event.RejectReason]int64
	strategyPnL float64
	ticks       int64
	lastTs      int64
	firstTs     int64
	series      []PnLPoint
}

// NewAccumulator prepares an accumulator. initial is the seeded venue ->
// asset -> amount table, used as the settlement_delta baseline.
func NewAccumulator(metric PnLMetric, settlementAsset string, initial map[string]map[string]float64) *Accumulator {
	var baseline float64
	for _, assets := range initial {
		baseline += assets[settlementAsset]
	}

	return &Accumulator{
		metric:          metric,
		settlementAsset: settlementAsset,
		initialSettle:   baseline,
		funding:         NewFundingHistoryProjection(),
		fees:            make(map[string]map[string]float64),
		rejectCount:     make(map[event.RejectReason]int64),
	}
}

func (a *Accumulator) RecordTrade(t event.TradeRecord) {
	a.trades = append(a.trades, t)

	if t.Intent.Fee > 0 {
		venueFees := a.fees[t.Intent.Venue]
		if venueFees == nil {
			venueFees = make(map[string]float64)
			a.fees[t.Intent.Venue] = venueFees
		}
		venueFees[t.QuoteAsset] += t.Intent.Fee
	}

	if t.Intent.PnL.Valid {
		a.strategyPnL += t.Intent.PnL.Value
	}
}

func (a *Accumulator) RecordFunding(f event.FundingEvent) {
	a.funding.AddEntry(f)
}

func (a *Accumulator) RecordFundingSkip(s event.FundingSkip) {
	a.skips = append(a.skips, s)
}

func (a *Accumulator) RecordRejection(r event.Rejection) {
	a.rejections = append(a.rejections, r)
	a.rejectCount[r.Reason]++
}

// RecordTick appends a pnl point when the cumulative value moved.
func (a *Accumulator) RecordTick(ts int64, balances ledger.View) {
	if a.ticks == 0 {
		a.firstTs = ts
	}
	a.ticks++
	a.lastTs = ts

	cumulative := a.cumulative(balances)
	if n := len(a.series); n > 0 && a.series[n-1].Cumulative == cumulative {
		return
	}
	a.series = append(a.series, PnLPoint{Timestamp: ts, Cumulative: cumulative})
}

func (a *Accumulator) cumulative(balances ledger.View) float64 {
	if a.metric == PnLStrategy {
		return a.strategyPnL
	}

	var total float64
	for _, venue := range balances.Venues() {
		total += balances.Balance(venue, a.settlementAsset)
	}
	return total - a.initialSettle
}

// Trades returns executed legs in execution order.
func (a *Accumulator) Trades() []event.TradeRecord { return a.trades }

// Rejections returns dropped intents in processing order.
func (a *Accumulator) Rejections() []event.Rejection { return a.rejections }

// Funding returns settled funding in processing order.
func (a *Accumulator) Funding() *FundingHistoryProjection { return a.funding }

// Series returns the cumulative pnl curve.
func (a *Accumulator) Series() []PnLPoint { return a.series }

// Report freezes the accumulated results together with the final ledger.
func (a *Accumulator) Report(strategyName, stateHash string, sequence int64, balances ledger.View) *Report {
	finalBalances := make(map[string]map[string]float64)
	for _, venue := range balances.Venues() {
		finalBalances[venue] = balances.Balances(venue)
	}

	rejections := make(map[string]int64, len(a.rejectCount))
	for reason, n := range a.rejectCount {
		rejections[string(reason)] = n
	}

	var total float64
	if n := len(a.series); n > 0 {
		total = a.series[n-1].Cumulative
	}

	return &Report{
		Strategy:          strategyName,
		PnLMetric:         a.metric,
		SettlementAsset:   a.settlementAsset,
		Quotes:            a.ticks,
		Sequence:          sequence,
		FirstTimestamp:    a.firstTs,
		LastTimestamp:     a.lastTs,
		StateHash:         stateHash,
		TotalPnL:          total,
		FundingPnL:        a.funding.Total(),
		Trades:            a.trades,
		Funding:           a.funding.Entries(),
		FundingSkips:      a.skips,
		Rejections:        a.rejections,
		RejectionsByCause: rejections,
		Balances:          finalBalances,
		Fees:              copyNested(a.fees),
		PnL:               a.series,
	}
}

func copyNested(in map[string]map[string]float64) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(in))
	for venue, assets := range in {
		inner := make(map[string]float64, len(assets))
		for asset, v := range assets {
			inner[asset] = v
		}
		out[venue] = inner
	}
	return out
}
