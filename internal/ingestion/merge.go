package ingestion

import (
	"QuoteLedger/internal/event"
	"container/heap"
	"fmt"
	"io"
	"sort"
)

// TieBreak orders quotes with equal timestamps from different streams.
type TieBreak string

const (
	// TieBreakInsertion keeps stream registration order.
	TieBreakInsertion TieBreak = "insertion"
	// TieBreakLexical orders by venue, then pair.
	TieBreakLexical TieBreak = "lexical"
)

// ParseTieBreak accepts "" (insertion), "insertion" or "lexical".
func ParseTieBreak(s string) (TieBreak, error) {
	switch TieBreak(s) {
	case "", TieBreakInsertion:
		return TieBreakInsertion, nil
	case TieBreakLexical:
		return TieBreakLexical, nil
	}
	return "", fmt.Errorf("unknown tie_break %q (want insertion or lexical)", s)
}

// MergeOptions configures Merge.
type MergeOptions struct {
	// ChangesOnly drops a quote whose bid and ask equal the previous quote
	// emitted from the same stream.
	ChangesOnly bool
	TieBreak    TieBreak
}

type cursor struct {
	quotes  []event.Quote
	pos     int
	rank    int
	prev    event.Quote
	hasPrev bool
}

func (c *cursor) head() *event.Quote {
	return &c.quotes[c.pos]
}

type cursorHeap []*cursor

func (h cursorHeap) Len() int { return len(h) }
func (h cursorHeap) Less(i, j int) bool {
	a, b := h[i].head().Timestamp, h[j].head().Timestamp
	if a != b {
		return a < b
	}
	return h[i].rank < h[j].rank
}
func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x any)   { *h = append(*h, x.(*cursor)) }
func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return c
}

// Stream is a single-pass, time-ordered sequence of quotes.
type Stream struct {
	heap    cursorHeap
	opts    MergeOptions
	emitted int
	dropped int
}

// Merge stable-sorts each stream by timestamp and merges them into one Stream.
// The input slices are not modified.
func Merge(streams [][]event.Quote, opts MergeOptions) *Stream {
	if opts.TieBreak == "" {
		opts.TieBreak = TieBreakInsertion
	}

	cursors := make([]*cursor, 0, len(streams))
	for _, quotes := range streams {
		if len(quotes) == 0 {
			continue
		}
		sorted := make([]event.Quote, len(quotes))
		copy(sorted, quotes)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp < sorted[j].Timestamp
		})
		cursors = append(cursors, &cursor{quotes: sorted})
	}

	for i, c := range cursors {
		c.rank = i
	}
	if opts.TieBreak == TieBreakLexical {
		byName := make([]*cursor, len(cursors))
		copy(byName, cursors)
		sort.SliceStable(byName, func(i, j int) bool {
			a, b := byName[i].quotes[0], byName[j].quotes[0]
			if a.Venue != b.Venue {
				return a.Venue < b.Venue
			}
			return a.Pair < b.Pair
		})
		for i, c := range byName {
			c.rank = i
		}
	}

	s := &Stream{heap: cursors, opts: opts}
	heap.Init(&s.heap)
	return s
}

// Next returns the next quote, or io.EOF when every stream is exhausted.
func (s *Stream) Next() (event.Quote, error) {
	for s.heap.Len() > 0 {
		c := s.heap[0]
		q := *c.head()
		c.pos++
		if c.pos < len(c.quotes) {
			heap.Fix(&s.heap, 0)
		} else {
			heap.Pop(&s.heap)
		}

		if s.opts.ChangesOnly && c.hasPrev && q.SameTopOfBook(&c.prev) {
			s.dropped++
			continue
		}
		c.prev, c.hasPrev = q, true
		s.emitted++
		return q, nil
	}
	return event.Quote{}, io.EOF
}

// Emitted returns the number of quotes returned so far.
func (s *Stream) Emitted() int { return s.emitted }

// Dropped returns the number of quotes suppressed by ChangesOnly.
func (s *Stream) Dropped() int { return s.dropped }
