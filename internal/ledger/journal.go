package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeInitialBalance JournalType = iota
	JournalTypeTradeBase
	JournalTypeTradeQuote
	JournalTypeTradeFee
	JournalTypeFundingSettle
)

func (jt JournalType) String() string {
	switch jt {
	case JournalTypeInitialBalance:
		return "initial_balance"
	case JournalTypeTradeBase:
		return "trade_base"
	case JournalTypeTradeQuote:
		return "trade_quote"
	case JournalTypeTradeFee:
		return "trade_fee"
	case JournalTypeFundingSettle:
		return "funding_settle"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID       // Deterministic per (run, event ref, leg)
	BatchID       uuid.UUID       // Groups balanced entries
	EventRef      string          // Trade or funding ID this entry belongs to
	Sequence      int64           // Engine sequence of the producing quote
	DebitAccount  AccountKey      // Account receiving debit (balance increases)
	CreditAccount AccountKey      // Account receiving credit (balance decreases)
	Asset         string          // Asset being transferred
	Amount        decimal.Decimal // ALWAYS positive
	JournalType   JournalType     // Entry type
	Timestamp     int64           // Event time in nanoseconds
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed.
// Each journal moves one positive amount from credit to debit, so every
// entry is balanced on its own and a batch of them is balanced per asset.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if !j.Amount.IsPositive() {
			return fmt.Errorf("journal %s has non-positive amount: %s", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}

		// No cross-asset transfers inside a single entry
		if j.DebitAccount.Asset != j.Asset || j.CreditAccount.Asset != j.Asset {
			return fmt.Errorf("journal %s mixes assets: %s -> %s (%s)",
				j.JournalID, j.CreditAccount.AccountPath(), j.DebitAccount.AccountPath(), j.Asset)
		}
	}

	return nil
}
