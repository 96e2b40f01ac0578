package ingestion

import (
	"QuoteLedger/internal/event"
	"fmt"
)

type streamKey struct {
	venue string
	pair  string
}

// Catalog groups loaded quotes into per-(venue, pair) streams.
// Streams keep registration order: first appearance across Add calls.
type Catalog struct {
	streams map[streamKey][]event.Quote
	order   []streamKey
	pairs   map[string]bool
	symbols *SymbolMap
	dropped int
}

// NewCatalog creates a catalog. A non-empty pairs list keeps only those pairs.
func NewCatalog(pairs []string, symbols *SymbolMap) *Catalog {
	c := &Catalog{
		streams: make(map[streamKey][]event.Quote),
		symbols: symbols,
	}
	if len(pairs) > 0 {
		c.pairs = make(map[string]bool, len(pairs))
		for _, p := range pairs {
			c.pairs[p] = true
		}
	}
	return c
}

// Add appends quotes to their streams, dropping filtered pairs.
func (c *Catalog) Add(quotes []event.Quote) {
	for _, q := range quotes {
		if c.pairs != nil && !c.pairs[q.Pair] {
			c.dropped++
			continue
		}
		key := streamKey{venue: q.Venue, pair: q.Pair}
		if _, ok := c.streams[key]; !ok {
			c.order = append(c.order, key)
		}
		c.streams[key] = append(c.streams[key], q)
	}
}

// Require fails when a requested stream has no data. Pairs explicitly
// unsupported on the venue by the symbol map are not required.
func (c *Catalog) Require(venue, pair string) error {
	if !c.symbols.Supported(pair, venue) {
		return nil
	}
	if len(c.streams[streamKey{venue: venue, pair: pair}]) == 0 {
		return fmt.Errorf("no quotes for %s on %s", pair, venue)
	}
	return nil
}

// Streams returns the per-stream quote slices in registration order.
func (c *Catalog) Streams() [][]event.Quote {
	out := make([][]event.Quote, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.streams[key])
	}
	return out
}

// Venues returns venues in registration order.
func (c *Catalog) Venues() []string {
	seen := make(map[string]bool)
	var out []string
	for _, key := range c.order {
		if !seen[key.venue] {
			seen[key.venue] = true
			out = append(out, key.venue)
		}
	}
	return out
}

// Len returns the number of quotes held.
func (c *Catalog) Len() int {
	n := 0
	for _, s := range c.streams {
		n += len(s)
	}
	return n
}

// Filtered returns the number of quotes dropped by the pair filter.
func (c *Catalog) Filtered() int {
	return c.dropped
}
