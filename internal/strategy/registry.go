package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Params carries static configuration into a strategy constructor.
type Params struct {
	Fees       FeeTable
	Perpetuals map[string]bool // Pairs traded as perpetual contracts
	Values     map[string]any  // Strategy-specific settings from config
}

// Float returns a numeric setting or def when absent.
func (p Params) Float(key string, def float64) (float64, error) {
	raw, ok := p.Values[key]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("param %s: expected number, got %T", key, raw)
}

// String returns a string setting or def when absent.
func (p Params) String(key, def string) (string, error) {
	raw, ok := p.Values[key]
	if !ok {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("param %s: expected string, got %T", key, raw)
	}
	return s, nil
}

// Constructor builds a strategy from params
type Constructor func(params Params) (Strategy, error)

// Registry resolves strategies by name. Assembled once at startup.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
	}
}

// DefaultRegistry returns a registry with the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister("noop", func(Params) (Strategy, error) { return Noop{}, nil })
	r.MustRegister("cross_venue", NewCrossVenueArbitrage)
	r.MustRegister("triangle", NewTriangleArbitrage)
	return r
}

// Register adds a constructor under name.
func (r *Registry) Register(name string, constructor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.constructors[name]; exists {
		return fmt.Errorf("strategy constructor already registered for name: %s", name)
	}
	r.constructors[name] = constructor
	return nil
}

// MustRegister panics on duplicate names; for static wiring only.
func (r *Registry) MustRegister(name string, constructor Constructor) {
	if err := r.Register(name, constructor); err != nil {
		panic(err)
	}
}

// New builds the named strategy.
func (r *Registry) New(name string, params Params) (Strategy, error) {
	r.mu.RLock()
	constructor, exists := r.constructors[name]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("unknown strategy: %s (known: %v)", name, r.Names())
	}
	s, err := constructor(params)
	if err != nil {
		return nil, fmt.Errorf("build strategy %s: %w", name, err)
	}
	return s, nil
}

// Names returns registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
