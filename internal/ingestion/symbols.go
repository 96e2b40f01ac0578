package ingestion

// SymbolMap translates venue-native pair identifiers to canonical pairs.
// A nil native entry marks the canonical pair as unsupported on that venue.
type SymbolMap struct {
	native  map[string]map[string]*string // canonical -> venue -> native
	reverse map[string]map[string]string  // venue -> native -> canonical
}

// NewSymbolMap indexes a canonical -> venue -> native table.
func NewSymbolMap(table map[string]map[string]*string) *SymbolMap {
	sm := &SymbolMap{
		native:  make(map[string]map[string]*string),
		reverse: make(map[string]map[string]string),
	}
	for canonical, venues := range table {
		sm.native[canonical] = make(map[string]*string, len(venues))
		for venue, native := range venues {
			sm.native[canonical][venue] = native
			if native == nil {
				continue
			}
			if sm.reverse[venue] == nil {
				sm.reverse[venue] = make(map[string]string)
			}
			sm.reverse[venue][*native] = canonical
		}
	}
	return sm
}

// Canonical returns the canonical pair for a venue-native identifier.
// Unmapped identifiers are returned unchanged.
func (sm *SymbolMap) Canonical(venue, native string) string {
	if sm == nil {
		return native
	}
	if canonical, ok := sm.reverse[venue][native]; ok {
		return canonical
	}
	return native
}

// Native returns the venue-native identifier for a canonical pair.
// ok is false when the pair is explicitly unsupported on the venue.
func (sm *SymbolMap) Native(canonical, venue string) (string, bool) {
	if sm == nil {
		return canonical, true
	}
	venues, known := sm.native[canonical]
	if !known {
		return canonical, true
	}
	native, listed := venues[venue]
	if !listed {
		return canonical, true
	}
	if native == nil {
		return "", false
	}
	return *native, true
}

// Supported reports whether canonical is not explicitly marked unsupported on venue.
func (sm *SymbolMap) Supported(canonical, venue string) bool {
	_, ok := sm.Native(canonical, venue)
	return ok
}
