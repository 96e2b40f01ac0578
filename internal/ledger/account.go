package ledger

import (
	"fmt"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	// Balances owned by the simulated trader on a venue
	AccountScopeVenue AccountScope = iota
	// Counterparty side of every fill on a venue
	AccountScopeMarket
	// Fees collected by a venue
	AccountScopeFees
	// Funding counterparty for perpetual settlements on a venue
	AccountScopeFunding
	// Boundary account funding initial balances
	AccountScopeExternal
)

// AccountKey is the in-memory key for balance tracking
type AccountKey struct {
	Scope AccountScope
	Venue string // Empty for external accounts
	Asset string
}

// NewVenueAccountKey creates a key for the trader's balance on a venue
func NewVenueAccountKey(venue, asset string) AccountKey {
	return AccountKey{Scope: AccountScopeVenue, Venue: venue, Asset: asset}
}

// NewMarketAccountKey creates the fill counterparty key for a venue
func NewMarketAccountKey(venue, asset string) AccountKey {
	return AccountKey{Scope: AccountScopeMarket, Venue: venue, Asset: asset}
}

// NewFeeAccountKey creates the fee collection key for a venue
func NewFeeAccountKey(venue, asset string) AccountKey {
	return AccountKey{Scope: AccountScopeFees, Venue: venue, Asset: asset}
}

// NewFundingAccountKey creates the funding counterparty key for a venue
func NewFundingAccountKey(venue, asset string) AccountKey {
	return AccountKey{Scope: AccountScopeFunding, Venue: venue, Asset: asset}
}

// NewExternalAccountKey creates the boundary key used for initial balances
func NewExternalAccountKey(asset string) AccountKey {
	return AccountKey{Scope: AccountScopeExternal, Asset: asset}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeVenue:
		return fmt.Sprintf("venue:%s:%s", k.Venue, k.Asset)
	case AccountScopeMarket:
		return fmt.Sprintf("market:%s:%s", k.Venue, k.Asset)
	case AccountScopeFees:
		return fmt.Sprintf("fees:%s:%s", k.Venue, k.Asset)
	case AccountScopeFunding:
		return fmt.Sprintf("funding:%s:%s", k.Venue, k.Asset)
	case AccountScopeExternal:
		return fmt.Sprintf("external:deposits:%s", k.Asset)
	}
	return "unknown"
}

func (s AccountScope) String() string {
	switch s {
	case AccountScopeVenue:
		return "venue"
	case AccountScopeMarket:
		return "market"
	case AccountScopeFees:
		return "fees"
	case AccountScopeFunding:
		return "funding"
	case AccountScopeExternal:
		return "external"
	default:
		return "unknown"
	}
}
