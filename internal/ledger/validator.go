package ledger

import (
	"fmt"
	"sort"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateGlobalBalance verifies every asset sums to zero across all scopes
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	assets := make([]string, 0, len(totals))
	for asset := range totals {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	for _, asset := range assets {
		if total := totals[asset]; !total.IsZero() {
			return fmt.Errorf("global balance for %s is non-zero: %s", asset, total)
		}
	}

	return nil
}

// ValidateFeesNonNegative checks no venue fee account was ever debited below zero
func (v *InvariantValidator) ValidateFeesNonNegative() error {
	for venue, assets := range v.tracker.ScopeBalances(AccountScopeFees) {
		for asset, balance := range assets {
			if balance.IsNegative() {
				return fmt.Errorf("fee account %s has negative balance: %s",
					NewFeeAccountKey(venue, asset).AccountPath(), balance)
			}
		}
	}
	return nil
}
