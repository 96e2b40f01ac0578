package ledger

import (
	fpmath "QuoteLedger/internal/math"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// View is read-only access to the trader's venue balances.
type View interface {
	// Balance returns 0 for an asset never touched on venue.
	Balance(venue, asset string) float64

	// Balances returns every asset held on venue.
	Balances(venue string) map[string]float64

	// Venues returns venues with at least one balance, sorted.
	Venues() []string
}

// BalanceTracker maintains in-memory account balances.
// Not thread-safe; only accessed from the single-threaded engine loop.
type BalanceTracker struct {
	balances map[AccountKey]decimal.Decimal
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]decimal.Decimal),
	}
}

// ApplyJournal applies a single journal entry to balances.
// Decimal sums are exact, so balances never wrap or round.
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] = bt.balances[j.DebitAccount].Add(j.Amount)
	bt.balances[j.CreditAccount] = bt.balances[j.CreditAccount].Sub(j.Amount)
}

// ApplyBatch validates the whole batch before applying any journal
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) decimal.Decimal {
	return bt.balances[key]
}

// GetVenueBalance returns the trader's exact balance of asset on venue
func (bt *BalanceTracker) GetVenueBalance(venue, asset string) decimal.Decimal {
	return bt.balances[NewVenueAccountKey(venue, asset)]
}

// ScopeBalances returns venue -> asset -> balance for one scope
func (bt *BalanceTracker) ScopeBalances(scope AccountScope) map[string]map[string]decimal.Decimal {
	out := make(map[string]map[string]decimal.Decimal)
	for key, balance := range bt.balances {
		if key.Scope != scope {
			continue
		}
		if out[key.Venue] == nil {
			out[key.Venue] = make(map[string]decimal.Decimal)
		}
		out[key.Venue][key.Asset] = balance
	}
	return out
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal)

	for key, balance := range bt.balances {
		totals[key.Asset] = totals[key.Asset].Add(balance)
	}

	return totals
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]decimal.Decimal {
	snapshot := make(map[AccountKey]decimal.Decimal, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// View returns a read-only wrapper for strategies and reports.
func (bt *BalanceTracker) View() View {
	return trackerView{bt: bt}
}

type trackerView struct {
	bt *BalanceTracker
}

func (v trackerView) Balance(venue, asset string) float64 {
	return fpmath.FromAmount(v.bt.GetVenueBalance(venue, asset))
}

func (v trackerView) Balances(venue string) map[string]float64 {
	out := make(map[string]float64)
	for key, balance := range v.bt.balances {
		if key.Scope == AccountScopeVenue && key.Venue == venue {
			out[key.Asset] = fpmath.FromAmount(balance)
		}
	}
	return out
}

func (v trackerView) Venues() []string {
	seen := make(map[string]bool)
	for key := range v.bt.balances {
		if key.Scope == AccountScopeVenue {
			seen[key.Venue] = true
		}
	}
	out := make([]string, 0, len(seen))
	for venue := range seen {
		out = append(out, venue)
	}
	sort.Strings(out)
	return out
}
