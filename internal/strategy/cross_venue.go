package strategy

import (
	"QuoteLedger/internal/event"
	"QuoteLedger/internal/state"
	"fmt"
)

// CrossVenueArbitrage buys a pair on one venue and sells it on another when
// the bid across venues exceeds the ask net of both taker fees.
// Only the single most profitable opportunity per snapshot is emitted.
type CrossVenueArbitrage struct {
	fees        FeeTable
	perpetuals  map[string]bool
	volumeScale float64
	minPnL      float64
}

// NewCrossVenueArbitrage reads volume_scale (default 1) and min_pnl (default 0).
func NewCrossVenueArbitrage(params Params) (Strategy, error) {
	scale, err := params.Float("volume_scale", 1.0)
	if err != nil {
		return nil, err
	}
	if !(scale > 0) || scale > 1 {
		return nil, fmt.Errorf("volume_scale must be in (0, 1], got %v", scale)
	}
	minPnL, err := params.Float("min_pnl", 0)
	if err != nil {
		return nil, err
	}
	return &CrossVenueArbitrage{
		fees:        params.Fees,
		perpetuals:  params.Perpetuals,
		volumeScale: scale,
		minPnL:      minPnL,
	}, nil
}

func (s *CrossVenueArbitrage) Name() string { return "cross_venue" }

type crossOpportunity struct {
	pair            string
	buyVenue        string
	sellVenue       string
	askPrice        float64
	bidPrice        float64
	volume          float64
	buyFee, sellFee float64
	pnl             float64
}

func (s *CrossVenueArbitrage) Decide(snap Snapshot) []event.TradeIntent {
	var best *crossOpportunity
	bestPnL := s.minPnL
	venues := snap.Market.Venues()

	snap.Market.Range(func(buyVenue, pair string, buy state.Ticker) bool {
		if !buy.Ask.Valid || !buy.AskSize.Valid || buy.AskSize.Value <= 0 {
			return true
		}
		for _, sellVenue := range venues {
			if sellVenue == buyVenue {
				continue
			}
			sell, ok := snap.Market.Ticker(sellVenue, pair)
			if !ok || !sell.Bid.Valid || !sell.BidSize.Valid || sell.BidSize.Value <= 0 {
				continue
			}

			buyRate, ok := s.fees.Rate(buyVenue, pair)
			if !ok {
				continue
			}
			sellRate, ok := s.fees.Rate(sellVenue, pair)
			if !ok {
				continue
			}

			ask, bid := buy.Ask.Value, sell.Bid.Value
			volume := min(buy.AskSize.Value, sell.BidSize.Value) * s.volumeScale
			buyFee := buyRate * ask * volume
			sellFee := sellRate * bid * volume
			pnl := (bid-ask)*volume - buyFee - sellFee

			if pnl > bestPnL {
				bestPnL = pnl
				best = &crossOpportunity{
					pair:      pair,
					buyVenue:  buyVenue,
					sellVenue: sellVenue,
					askPrice:  ask,
					bidPrice:  bid,
					volume:    volume,
					buyFee:    buyFee,
					sellFee:   sellFee,
					pnl:       pnl,
				}
			}
		}
		return true
	})

	if best == nil {
		return nil
	}

	instrument := event.InstrumentSpot
	if s.perpetuals[best.pair] {
		instrument = event.InstrumentPerpetual
	}

	return []event.TradeIntent{
		{
			Venue:      best.buyVenue,
			Pair:       best.pair,
			Side:       event.SideBuy,
			Price:      best.askPrice,
			Volume:     best.volume,
			Fee:        best.buyFee,
			Instrument: instrument,
		},
		{
			Venue:      best.sellVenue,
			Pair:       best.pair,
			Side:       event.SideSell,
			Price:      best.bidPrice,
			Volume:     best.volume,
			Fee:        best.sellFee,
			Instrument: instrument,
			PnL:        event.Some(best.pnl),
		},
	}
}
