package projection

import (
	"QuoteLedger/internal/event"
)

// FundingHistoryProjection keeps settled funding in boundary order and
// answers per-market queries for the report.
type FundingHistoryProjection struct {
	entries []event.FundingEvent
	byVenue map[string]float64 // venue -> cumulative funding pnl
}

func NewFundingHistoryProjection() *FundingHistoryProjection {
	return &FundingHistoryProjection{
		entries: make([]event.FundingEvent, 0),
		byVenue: make(map[string]float64),
	}
}

// AddEntry records a funding settlement
func (p *FundingHistoryProjection) AddEntry(entry event.FundingEvent) {
	p.entries = append(p.entries, entry)
	p.byVenue[entry.Venue] += entry.PnL
}

// QueryByMarket returns the most recent settlements of venue/pair, newest first
func (p *FundingHistoryProjection) QueryByMarket(venue, pair string, limit int) []event.FundingEvent {
	result := make([]event.FundingEvent, 0)

	for i := len(p.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if p.entries[i].Venue == venue && p.entries[i].Pair == pair {
			result = append(result, p.entries[i])
		}
	}

	return result
}

// Entries returns every settlement in processing order.
func (p *FundingHistoryProjection) Entries() []event.FundingEvent {
	return p.entries
}

// VenueTotal returns cumulative funding pnl credited on venue.
func (p *FundingHistoryProjection) VenueTotal(venue string) float64 {
	return p.byVenue[venue]
}

// Total returns cumulative funding pnl across venues.
func (p *FundingHistoryProjection) Total() float64 {
	var total float64
	for _, e := range p.entries {
		total += e.PnL
	}
	return total
}
