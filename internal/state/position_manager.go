package state

import (
	"QuoteLedger/internal/event"

	"github.com/shopspring/decimal"
)

// PositionManager tracks perpetual positions per venue/pair.
// Not thread-safe; only accessed from the single-threaded engine loop.
type PositionManager struct {
	positions map[PositionKey]*Position
	order     []PositionKey
}

func NewPositionManager() *PositionManager {
	return &PositionManager{
		positions: make(map[PositionKey]*Position),
	}
}

// GetPosition returns existing position or nil
func (pm *PositionManager) GetPosition(venue, pair string) *Position {
	return pm.positions[PositionKey{Venue: venue, Pair: pair}]
}

// GetOrCreatePosition returns existing or creates new flat position
func (pm *PositionManager) GetOrCreatePosition(venue, pair string) *Position {
	key := PositionKey{Venue: venue, Pair: pair}
	pos := pm.positions[key]

	if pos == nil {
		pos = &Position{Venue: venue, Pair: pair}
		pm.positions[key] = pos
		pm.order = append(pm.order, key)
	}

	return pos
}

// ApplyFill moves a position by qty in the fill direction.
func (pm *PositionManager) ApplyFill(venue, pair string, side event.Side, qty decimal.Decimal) *Position {
	pos := pm.GetOrCreatePosition(venue, pair)
	if side == event.SideSell {
		pos.Size = pos.Size.Sub(qty)
	} else {
		pos.Size = pos.Size.Add(qty)
	}
	pos.Version++
	return pos
}

// OpenPositions returns non-flat positions in first-opened order.
func (pm *PositionManager) OpenPositions() []*Position {
	out := make([]*Position, 0, len(pm.order))
	for _, key := range pm.order {
		if pos := pm.positions[key]; !pos.IsFlat() {
			out = append(out, pos)
		}
	}
	return out
}

// GetAllPositions returns every position ever opened, including flat ones
func (pm *PositionManager) GetAllPositions() []*Position {
	out := make([]*Position, 0, len(pm.order))
	for _, key := range pm.order {
		out = append(out, pm.positions[key])
	}
	return out
}
