package persistence

import (
	"QuoteLedger/internal/event"

	"github.com/google/uuid"
)

// TradeRow is one executed leg as stored in replay.trades and in the
// parquet trade log.
type TradeRow struct {
	RunID      string   `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	TradeID    string   `parquet:"name=trade_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sequence   int64    `parquet:"name=sequence, type=INT64"`
	Leg        int32    `parquet:"name=leg, type=INT32"`
	Timestamp  int64    `parquet:"name=ts_ns, type=INT64"`
	Venue      string   `parquet:"name=venue, type=BYTE_ARRAY, convertedtype=UTF8"`
	Pair       string   `parquet:"name=pair, type=BYTE_ARRAY, convertedtype=UTF8"`
	Side       string   `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Instrument string   `parquet:"name=instrument, type=BYTE_ARRAY, convertedtype=UTF8"`
	BaseAsset  string   `parquet:"name=base_asset, type=BYTE_ARRAY, convertedtype=UTF8"`
	QuoteAsset string   `parquet:"name=quote_asset, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price      float64  `parquet:"name=price, type=DOUBLE"`
	Volume     float64  `parquet:"name=volume, type=DOUBLE"`
	Fee        float64  `parquet:"name=fee, type=DOUBLE"`
	Notional   float64  `parquet:"name=notional, type=DOUBLE"`
	PnL        *float64 `parquet:"name=pnl, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// FundingRow represents a row in replay.funding
type FundingRow struct {
	FundingID       uuid.UUID
	Boundary        int64
	Venue           string
	Pair            string
	PositionSize    float64
	Rate            float64
	ReferencePrice  float64
	PnL             float64
	SettlementAsset string
}

// FundingSkipRow represents a row in replay.funding_skips
type FundingSkipRow struct {
	Boundary     int64
	Venue        string
	Pair         string
	PositionSize float64
	Reason       string
}

// RejectionRow represents a row in replay.rejections
type RejectionRow struct {
	Sequence  int64
	Leg       int
	Timestamp int64
	Venue     string
	Pair      string
	Side      string
	Price     float64
	Volume    float64
	Fee       float64
	Reason    string
	Detail    string
}

// NewTradeRow flattens an executed leg.
func NewTradeRow(runID uuid.UUID, t event.TradeRecord) TradeRow {
	return TradeRow{
		RunID:      runID.String(),
		TradeID:    t.TradeID.String(),
		Sequence:   t.Sequence,
		Leg:        int32(t.Leg),
		Timestamp:  t.Timestamp,
		Venue:      t.Intent.Venue,
		Pair:       t.Intent.Pair,
		Side:       t.Intent.Side.String(),
		Instrument: t.Intent.Instrument.String(),
		BaseAsset:  t.BaseAsset,
		QuoteAsset: t.QuoteAsset,
		Price:      t.Intent.Price,
		Volume:     t.Intent.Volume,
		Fee:        t.Intent.Fee,
		Notional:   t.Notional,
		PnL:        t.Intent.PnL.Ptr(),
	}
}

// NewTradeRows flattens a trade log in order.
func NewTradeRows(runID uuid.UUID, trades []event.TradeRecord) []TradeRow {
	rows := make([]TradeRow, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, NewTradeRow(runID, t))
	}
	return rows
}

// Batch groups pending rows by destination table.
type Batch struct {
	Trades       []TradeRow
	Funding      []FundingRow
	FundingSkips []FundingSkipRow
	Rejections   []RejectionRow

	lastSequence int64
}

// Add converts an engine envelope into its table row. Unknown payloads are
// ignored and reported as false.
func (b *Batch) Add(runID uuid.UUID, env event.Envelope) bool {
	switch p := env.Payload.(type) {
	case event.TradeRecord:
		b.Trades = append(b.Trades, NewTradeRow(runID, p))
	case event.FundingEvent:
		b.Funding = append(b.Funding, FundingRow{
			FundingID:       p.FundingID,
			Boundary:        p.Boundary,
			Venue:           p.Venue,
			Pair:            p.Pair,
			PositionSize:    p.PositionSize,
			Rate:            p.Rate,
			ReferencePrice:  p.ReferencePrice,
			PnL:             p.PnL,
			SettlementAsset: p.SettlementAsset,
		})
	case event.FundingSkip:
		b.FundingSkips = append(b.FundingSkips, FundingSkipRow{
			Boundary:     p.Boundary,
			Venue:        p.Venue,
			Pair:         p.Pair,
			PositionSize: p.PositionSize,
			Reason:       string(p.Reason),
		})
	case event.Rejection:
		b.Rejections = append(b.Rejections, RejectionRow{
			Sequence:  p.Sequence,
			Leg:       p.Leg,
			Timestamp: p.Timestamp,
			Venue:     p.Intent.Venue,
			Pair:      p.Intent.Pair,
			Side:      p.Intent.Side.String(),
			Price:     p.Intent.Price,
			Volume:    p.Intent.Volume,
			Fee:       p.Intent.Fee,
			Reason:    string(p.Reason),
			Detail:    p.Detail,
		})
	default:
		return false
	}

	b.lastSequence = env.Sequence
	return true
}

// Len returns the number of pending rows across all tables.
func (b *Batch) Len() int {
	return len(b.Trades) + len(b.Funding) + len(b.FundingSkips) + len(b.Rejections)
}

// LastSequence is the engine sequence of the newest row added.
func (b *Batch) LastSequence() int64 {
	return b.lastSequence
}

// Reset empties the batch, keeping its capacity.
func (b *Batch) Reset() {
	b.Trades = b.Trades[:0]
	b.Funding = b.Funding[:0]
	b.FundingSkips = b.FundingSkips[:0]
	b.Rejections = b.Rejections[:0]
}
