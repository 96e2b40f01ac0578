package core

import (
	"QuoteLedger/internal/event"
	"QuoteLedger/internal/ledger"
	fpmath "QuoteLedger/internal/math"
	"QuoteLedger/internal/observability"
	"QuoteLedger/internal/state"
	"QuoteLedger/internal/strategy"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Recorder receives every outcome the engine produces, in processing order.
type Recorder interface {
	RecordTrade(t event.TradeRecord)
	RecordFunding(f event.FundingEvent)
	RecordFundingSkip(s event.FundingSkip)
	RecordRejection(r event.Rejection)

	// RecordTick is called once per quote after all its outcomes.
	RecordTick(ts int64, balances ledger.View)
}

// QuoteSource yields quotes in merged order; io.EOF ends the run.
type QuoteSource interface {
	Next() (event.Quote, error)
}

// Config holds everything the engine needs besides the strategy.
type Config struct {
	// Namespace for deterministic trade, funding and journal IDs
	RunID uuid.UUID

	// Counter asset of perpetual legs and the asset funding is paid in
	SettlementAsset string

	// Zero means state.DefaultFundingInterval
	FundingInterval time.Duration

	// When set, an intent on a venue/pair without an entry is rejected
	Fees strategy.FeeTable

	// venue -> asset -> amount, seeded before the first quote
	InitialBalances map[string]map[string]float64

	Recorder Recorder

	// Blocking send; the engine stalls until the consumer drains.
	// The caller owns the channel and closes it after Run returns.
	Output chan<- event.Envelope

	Metrics *observability.Metrics
}

// Engine is the single-threaded replay processor.
// Not thread-safe; one goroutine drives Run or ProcessQuote.
type Engine struct {
	cfg             Config
	strategy        strategy.Strategy
	sequence        int64
	hasher          *StateHasher
	tsValidator     *TimestampValidator
	market          *state.MarketState
	balanceTracker  *ledger.BalanceTracker
	journalGen      *ledger.JournalGenerator
	validator       *ledger.InvariantValidator
	positionManager *state.PositionManager
	funding         *state.FundingScheduler
	metrics         *observability.Metrics
	logger          zerolog.Logger
}

func NewEngine(cfg Config, strat strategy.Strategy) (*Engine, error) {
	if strat == nil {
		return nil, errors.New("engine: strategy is required")
	}
	if cfg.SettlementAsset == "" {
		return nil, errors.New("engine: settlement asset is required")
	}

	balanceTracker := ledger.NewBalanceTracker()

	e := &Engine{
		cfg:             cfg,
		strategy:        strat,
		hasher:          NewStateHasher(),
		tsValidator:     NewTimestampValidator(),
		market:          state.NewMarketState(),
		balanceTracker:  balanceTracker,
		journalGen:      ledger.NewJournalGenerator(cfg.RunID),
		validator:       ledger.NewInvariantValidator(balanceTracker),
		positionManager: state.NewPositionManager(),
		funding:         state.NewFundingScheduler(cfg.FundingInterval),
		metrics:         cfg.Metrics,
		logger:          observability.NewLogger("engine"),
	}

	if err := e.seedBalances(cfg.InitialBalances); err != nil {
		return nil, err
	}

	return e, nil
}

// seedBalances applies initial balances in sorted venue/asset order.
func (e *Engine) seedBalances(initial map[string]map[string]float64) error {
	venues := make([]string, 0, len(initial))
	for venue := range initial {
		venues = append(venues, venue)
	}
	sort.Strings(venues)

	for _, venue := range venues {
		assets := make([]string, 0, len(initial[venue]))
		for asset := range initial[venue] {
			assets = append(assets, asset)
		}
		sort.Strings(assets)

		for _, asset := range assets {
			amount, ok := fpmath.ToAmount(initial[venue][asset])
			if !ok {
				return fmt.Errorf("initial balance %s:%s is not finite", venue, asset)
			}
			batch := e.journalGen.GenerateInitialBalance(venue, asset, amount)
			if batch == nil {
				continue
			}
			if err := e.applyBatch(batch); err != nil {
				return fmt.Errorf("seed %s:%s: %w", venue, asset, err)
			}
		}
	}

	return e.validator.ValidateGlobalBalance()
}

// Run processes quotes until the source is exhausted, the context is
// cancelled, or a fatal error occurs.
func (e *Engine) Run(ctx context.Context, src QuoteSource) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		q, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read quote: %w", err)
		}

		if err := e.ProcessQuote(ctx, q); err != nil {
			return err
		}
	}
}

// ProcessQuote is the main processing pipeline for one quote.
// Errors are fatal for the run; rejected intents are not errors.
func (e *Engine) ProcessQuote(ctx context.Context, q event.Quote) error {
	start := time.Now()

	// Step 1: Event time must not go backwards
	if err := e.tsValidator.Validate(q); err != nil {
		return err
	}

	e.sequence++
	seq := e.sequence

	var batches []*ledger.Batch
	var payloads []event.Event

	// Step 2: Settle every funding boundary at or before this quote,
	// against the market as it stood before the quote
	for _, boundary := range e.funding.Advance(q.Timestamp) {
		fb, fp, err := e.settleFunding(seq, boundary)
		if err != nil {
			return fmt.Errorf("funding settlement at %d failed: %w", boundary, err)
		}
		batches = append(batches, fb...)
		payloads = append(payloads, fp...)
	}

	// Step 3: Market update
	e.market.Update(q)

	// Step 4: Strategy sees read-only views only
	decideStart := time.Now()
	intents := e.strategy.Decide(strategy.Snapshot{
		Timestamp: q.Timestamp,
		Market:    e.market.View(),
		Ledger:    e.balanceTracker.View(),
	})
	if e.metrics != nil {
		e.metrics.StrategyDecideDur.Observe(time.Since(decideStart).Seconds())
	}

	// Step 5: Apply intents in order; later legs see earlier legs' impact
	for leg, intent := range intents {
		payload, batch, err := e.applyIntent(seq, leg, q.Timestamp, intent)
		if err != nil {
			return fmt.Errorf("apply intent %d at sequence %d: %w", leg, seq, err)
		}
		if batch != nil {
			batches = append(batches, batch)
		}
		payloads = append(payloads, payload)
	}

	// Step 6: Post-checks
	if err := e.validator.ValidateGlobalBalance(); err != nil {
		return fmt.Errorf("ledger invariant violated at sequence %d: %w", seq, err)
	}
	if err := e.validator.ValidateFeesNonNegative(); err != nil {
		return fmt.Errorf("ledger invariant violated at sequence %d: %w", seq, err)
	}

	// Step 7: Chain state hash
	stateHash := e.hasher.Chain(seq, e.computeStateDigest(q, batches))

	if e.cfg.Recorder != nil {
		e.cfg.Recorder.RecordTick(q.Timestamp, e.balanceTracker.View())
	}

	// Step 8: Emit outputs
	for _, payload := range payloads {
		env := event.Envelope{
			Sequence:  seq,
			EventType: payload.EventType(),
			Timestamp: q.Timestamp,
			StateHash: stateHash,
			Payload:   payload,
		}
		if err := e.emit(ctx, env); err != nil {
			return err
		}
		if e.metrics != nil {
			e.metrics.CoreEventsApplied.WithLabelValues(env.EventType.String()).Inc()
		}
	}

	if e.metrics != nil {
		e.metrics.CoreEventsApplied.WithLabelValues(q.EventType().String()).Inc()
		e.metrics.CoreEventDuration.Observe(time.Since(start).Seconds())
		e.metrics.CoreSequence.Set(float64(seq))
		e.metrics.CoreReplayTime.Set(float64(q.Timestamp) / float64(time.Second))
	}

	return nil
}

// applyIntent executes one leg or turns it into a rejection.
// The returned error is reserved for ledger failures that end the run.
func (e *Engine) applyIntent(seq int64, leg int, ts int64, intent event.TradeIntent) (event.Event, *ledger.Batch, error) {
	if err := intent.Validate(); err != nil {
		return e.reject(seq, leg, ts, intent, event.RejectInvalidIntent, err.Error()), nil, nil
	}

	// A buy lifts the ask, a sell hits the bid
	t, seen := e.market.Ticker(intent.Venue, intent.Pair)
	price, size, sideName := t.Ask, t.AskSize, "ask"
	if intent.Side == event.SideSell {
		price, size, sideName = t.Bid, t.BidSize, "bid"
	}
	if !seen || !price.Valid {
		return e.reject(seq, leg, ts, intent, event.RejectNoQuote,
			fmt.Sprintf("no %s on %s", sideName, event.MarketKey(intent.Venue, intent.Pair))), nil, nil
	}
	if size.Valid && size.Value <= 0 {
		return e.reject(seq, leg, ts, intent, event.RejectEmptyBook,
			fmt.Sprintf("%s size is %v", sideName, size.Value)), nil, nil
	}

	if e.cfg.Fees != nil {
		if _, ok := e.cfg.Fees.Rate(intent.Venue, intent.Pair); !ok {
			return e.reject(seq, leg, ts, intent, event.RejectMissingFee,
				fmt.Sprintf("no fee configured for %s", event.MarketKey(intent.Venue, intent.Pair))), nil, nil
		}
	}

	base, quote, ok := e.splitAssets(intent)
	if !ok {
		return e.reject(seq, leg, ts, intent, event.RejectMalformedPair,
			fmt.Sprintf("cannot split %q", intent.Pair)), nil, nil
	}

	// Validate guarantees finite values; the fee booked is the fee reported
	volume := fpmath.MustAmount(intent.Volume)
	fee := fpmath.MustAmount(intent.Fee)
	notional := fpmath.ComputeNotional(fpmath.MustAmount(intent.Price), volume)

	tradeID := uuid.NewSHA1(e.cfg.RunID, []byte(fmt.Sprintf("trade:%d:%d", seq, leg)))

	batch, err := e.journalGen.GenerateTrade(ledger.TradeLeg{
		EventRef:   tradeID.String(),
		Sequence:   seq,
		Timestamp:  ts,
		Venue:      intent.Venue,
		BaseAsset:  base,
		QuoteAsset: quote,
		Side:       intent.Side,
		Volume:     volume,
		Notional:   notional,
		Fee:        fee,
	})
	if err != nil {
		return e.reject(seq, leg, ts, intent, event.RejectInvalidIntent, err.Error()), nil, nil
	}

	if err := e.applyBatch(batch); err != nil {
		return nil, nil, err
	}

	// Book impact
	e.market.Consume(intent.Venue, intent.Pair, intent.Side)

	if !size.Valid {
		e.logger.Warn().
			Int64("sequence", seq).
			Int("leg", leg).
			Str("market", event.MarketKey(intent.Venue, intent.Pair)).
			Str("side", sideName).
			Msg("filled against a price with no size")
		if e.metrics != nil {
			e.metrics.UnsizedFills.WithLabelValues(intent.Venue).Inc()
		}
	}

	if intent.Instrument == event.InstrumentPerpetual {
		e.positionManager.ApplyFill(intent.Venue, intent.Pair, intent.Side, volume)
	}

	record := event.TradeRecord{
		TradeID:    tradeID,
		Sequence:   seq,
		Leg:        leg,
		Timestamp:  ts,
		Intent:     intent,
		BaseAsset:  base,
		QuoteAsset: quote,
		Notional:   fpmath.FromAmount(notional),
		Unsized:    !size.Valid,
		Balances:   e.balanceTracker.View().Balances(intent.Venue),
	}

	if e.cfg.Recorder != nil {
		e.cfg.Recorder.RecordTrade(record)
	}
	if e.metrics != nil {
		e.metrics.IntentsApplied.WithLabelValues(intent.Venue, intent.Side.String()).Inc()
	}

	return record, batch, nil
}

// splitAssets resolves the ledger assets of a leg. A perpetual books the
// contract itself against the settlement asset.
func (e *Engine) splitAssets(intent event.TradeIntent) (base, quote string, ok bool) {
	if intent.Instrument == event.InstrumentPerpetual {
		if intent.Pair == e.cfg.SettlementAsset {
			return "", "", false
		}
		return intent.Pair, e.cfg.SettlementAsset, true
	}
	return event.SplitPair(intent.Pair)
}

func (e *Engine) reject(seq int64, leg int, ts int64, intent event.TradeIntent, reason event.RejectReason, detail string) event.Rejection {
	r := event.Rejection{
		Sequence:  seq,
		Leg:       leg,
		Timestamp: ts,
		Intent:    intent,
		Reason:    reason,
		Detail:    detail,
	}

	e.logger.Warn().
		Int64("sequence", seq).
		Int("leg", leg).
		Str("venue", intent.Venue).
		Str("pair", intent.Pair).
		Str("side", intent.Side.String()).
		Str("reason", string(reason)).
		Str("detail", detail).
		Msg("intent rejected")

	if e.cfg.Recorder != nil {
		e.cfg.Recorder.RecordRejection(r)
	}
	if e.metrics != nil {
		e.metrics.IntentsRejected.WithLabelValues(string(reason)).Inc()
	}

	return r
}

// settleFunding books one boundary for every open perpetual position.
func (e *Engine) settleFunding(seq, boundary int64) ([]*ledger.Batch, []event.Event, error) {
	settlements, skips := e.funding.Settle(boundary, e.positionManager, e.market.View())

	var batches []*ledger.Batch
	payloads := make([]event.Event, 0, len(settlements)+len(skips))

	for _, s := range settlements {
		fundingID := uuid.NewSHA1(e.cfg.RunID,
			[]byte(fmt.Sprintf("funding:%s:%s:%d", s.Venue, s.Pair, s.Boundary)))

		batch := e.journalGen.GenerateFunding(fundingID.String(), seq, boundary, s.Venue, e.cfg.SettlementAsset, s.PnL)
		if batch != nil {
			if err := e.applyBatch(batch); err != nil {
				return nil, nil, err
			}
			batches = append(batches, batch)
		}

		fe := event.FundingEvent{
			FundingID:       fundingID,
			Boundary:        s.Boundary,
			Venue:           s.Venue,
			Pair:            s.Pair,
			PositionSize:    fpmath.FromAmount(s.PositionSize),
			Rate:            fpmath.FromAmount(s.Rate),
			ReferencePrice:  fpmath.FromAmount(s.ReferencePrice),
			PnL:             fpmath.FromAmount(s.PnL),
			SettlementAsset: e.cfg.SettlementAsset,
		}

		if e.cfg.Recorder != nil {
			e.cfg.Recorder.RecordFunding(fe)
		}
		if e.metrics != nil {
			e.metrics.FundingSettled.WithLabelValues(s.Venue).Inc()
		}
		payloads = append(payloads, fe)
	}

	for _, skip := range skips {
		e.logger.Info().
			Int64("boundary", skip.Boundary).
			Str("venue", skip.Venue).
			Str("pair", skip.Pair).
			Str("reason", string(skip.Reason)).
			Msg("funding skipped")

		if e.cfg.Recorder != nil {
			e.cfg.Recorder.RecordFundingSkip(skip)
		}
		if e.metrics != nil {
			e.metrics.FundingSkipped.WithLabelValues(string(skip.Reason)).Inc()
		}
		payloads = append(payloads, skip)
	}

	return batches, payloads, nil
}

// applyBatch validates a batch in full before touching any balance.
func (e *Engine) applyBatch(batch *ledger.Batch) error {
	if err := e.validator.ValidateBatchBalance(batch); err != nil {
		return fmt.Errorf("unbalanced batch: %w", err)
	}
	if err := e.balanceTracker.ApplyBatch(batch); err != nil {
		return fmt.Errorf("apply batch failed: %w", err)
	}
	if e.metrics != nil {
		for _, j := range batch.Journals {
			e.metrics.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
		}
	}
	return nil
}

func (e *Engine) emit(ctx context.Context, env event.Envelope) error {
	if e.cfg.Output == nil {
		return nil
	}

	select {
	case e.cfg.Output <- env:
	case <-ctx.Done():
		return ctx.Err()
	}

	if e.metrics != nil {
		e.metrics.OutputChannelSize.Set(float64(len(e.cfg.Output)))
	}
	return nil
}

// computeStateDigest creates canonical bytes for the state hash: the quote
// identity followed by every account touched while processing it.
func (e *Engine) computeStateDigest(q event.Quote, batches []*ledger.Batch) []byte {
	affectedAccounts := make(map[ledger.AccountKey]bool)
	for _, batch := range batches {
		for _, j := range batch.Journals {
			affectedAccounts[j.DebitAccount] = true
			affectedAccounts[j.CreditAccount] = true
		}
	}

	accounts := make([]ledger.AccountKey, 0, len(affectedAccounts))
	for key := range affectedAccounts {
		accounts = append(accounts, key)
	}

	// Sort by AccountPath (deterministic string ordering)
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make(stateDigest, 0, 64+len(accounts)*48).
		text(q.MarketID()).
		num(q.Timestamp)

	for _, key := range accounts {
		digest = digest.
			text(key.AccountPath()).
			amount(e.balanceTracker.GetBalance(key))
	}

	return digest
}

// Sequence returns the sequence of the last processed quote.
func (e *Engine) Sequence() int64 {
	return e.sequence
}

// StateHash returns the current state hash (chain tip).
func (e *Engine) StateHash() [32]byte {
	return e.hasher.Tip()
}

// StateHashHex returns the chain tip hex-encoded.
func (e *Engine) StateHashHex() string {
	return e.hasher.Hex()
}

// Market returns a read-only view of the consolidated book.
func (e *Engine) Market() state.View {
	return e.market.View()
}

// Ledger returns a read-only view of venue balances.
func (e *Engine) Ledger() ledger.View {
	return e.balanceTracker.View()
}

// Balances returns every account balance as an exact amount.
func (e *Engine) Balances() map[ledger.AccountKey]decimal.Decimal {
	return e.balanceTracker.Snapshot()
}

// Positions returns every perpetual position ever opened.
func (e *Engine) Positions() []*state.Position {
	return e.positionManager.GetAllPositions()
}
