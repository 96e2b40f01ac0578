package ledger

import (
	"QuoteLedger/internal/event"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JournalGenerator creates balanced journal batches from engine events.
// IDs are derived from the run namespace so identical replays produce
// identical journals.
type JournalGenerator struct {
	namespace uuid.UUID
}

// TradeLeg is a validated intent expressed in ledger amounts
type TradeLeg struct {
	EventRef   string
	Sequence   int64
	Timestamp  int64
	Venue      string
	BaseAsset  string
	QuoteAsset string
	Side       event.Side
	Volume     decimal.Decimal
	Notional   decimal.Decimal
	Fee        decimal.Decimal
}

func NewJournalGenerator(namespace uuid.UUID) *JournalGenerator {
	return &JournalGenerator{
		namespace: namespace,
	}
}

func (jg *JournalGenerator) newBatch(ref string, seq, ts int64, capacity int) *Batch {
	return &Batch{
		BatchID:   uuid.NewSHA1(jg.namespace, []byte("batch:"+ref)),
		EventRef:  ref,
		Sequence:  seq,
		Timestamp: ts,
		Journals:  make([]Journal, 0, capacity),
	}
}

func (jg *JournalGenerator) appendJournal(b *Batch, debit, credit AccountKey, amount decimal.Decimal, jt JournalType) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.NewSHA1(jg.namespace, []byte(fmt.Sprintf("%s:%d", b.EventRef, len(b.Journals)))),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		Asset:         debit.Asset,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// GenerateTrade creates journals for one executed leg.
// Buy:  market:base → venue:base (volume), venue:quote → market:quote (notional)
// Sell: venue:base → market:base (volume), market:quote → venue:quote (notional)
// Fee:  venue:quote → fees:quote, skipped when zero
func (jg *JournalGenerator) GenerateTrade(leg TradeLeg) (*Batch, error) {
	if !leg.Volume.IsPositive() {
		return nil, fmt.Errorf("trade %s: volume must be positive, got %s", leg.EventRef, leg.Volume)
	}
	if !leg.Notional.IsPositive() {
		return nil, fmt.Errorf("trade %s: notional must be positive, got %s", leg.EventRef, leg.Notional)
	}
	if leg.Fee.IsNegative() {
		return nil, fmt.Errorf("trade %s: fee must be non-negative, got %s", leg.EventRef, leg.Fee)
	}
	if leg.BaseAsset == leg.QuoteAsset {
		return nil, fmt.Errorf("trade %s: base and quote asset are both %s", leg.EventRef, leg.BaseAsset)
	}

	batch := jg.newBatch(leg.EventRef, leg.Sequence, leg.Timestamp, 3)

	venueBase := NewVenueAccountKey(leg.Venue, leg.BaseAsset)
	marketBase := NewMarketAccountKey(leg.Venue, leg.BaseAsset)
	venueQuote := NewVenueAccountKey(leg.Venue, leg.QuoteAsset)
	marketQuote := NewMarketAccountKey(leg.Venue, leg.QuoteAsset)

	switch leg.Side {
	case event.SideBuy:
		jg.appendJournal(batch, venueBase, marketBase, leg.Volume, JournalTypeTradeBase)
		jg.appendJournal(batch, marketQuote, venueQuote, leg.Notional, JournalTypeTradeQuote)
	case event.SideSell:
		jg.appendJournal(batch, marketBase, venueBase, leg.Volume, JournalTypeTradeBase)
		jg.appendJournal(batch, venueQuote, marketQuote, leg.Notional, JournalTypeTradeQuote)
	default:
		return nil, fmt.Errorf("trade %s: unknown side %d", leg.EventRef, leg.Side)
	}

	if leg.Fee.IsPositive() {
		jg.appendJournal(batch, NewFeeAccountKey(leg.Venue, leg.QuoteAsset), venueQuote, leg.Fee, JournalTypeTradeFee)
	}

	return batch, nil
}

// GenerateFunding creates the journal crediting pnl to venue:asset.
// Returns nil for a zero transfer.
func (jg *JournalGenerator) GenerateFunding(ref string, seq, ts int64, venue, asset string, pnl decimal.Decimal) *Batch {
	if pnl.IsZero() {
		return nil
	}

	batch := jg.newBatch(ref, seq, ts, 1)
	venueKey := NewVenueAccountKey(venue, asset)
	fundingKey := NewFundingAccountKey(venue, asset)

	if pnl.IsPositive() {
		jg.appendJournal(batch, venueKey, fundingKey, pnl, JournalTypeFundingSettle)
	} else {
		jg.appendJournal(batch, fundingKey, venueKey, pnl.Neg(), JournalTypeFundingSettle)
	}

	return batch
}

// GenerateInitialBalance seeds venue:asset from the external boundary account.
// Negative amounts start the venue in debt. Returns nil for zero.
func (jg *JournalGenerator) GenerateInitialBalance(venue, asset string, amount decimal.Decimal) *Batch {
	if amount.IsZero() {
		return nil
	}

	ref := fmt.Sprintf("initial:%s:%s", venue, asset)
	batch := jg.newBatch(ref, 0, 0, 1)
	venueKey := NewVenueAccountKey(venue, asset)
	external := NewExternalAccountKey(asset)

	if amount.IsPositive() {
		jg.appendJournal(batch, venueKey, external, amount, JournalTypeInitialBalance)
	} else {
		jg.appendJournal(batch, external, venueKey, amount.Neg(), JournalTypeInitialBalance)
	}

	return batch
}
