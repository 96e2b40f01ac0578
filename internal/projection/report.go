package projection

import (
	"QuoteLedger/internal/event"
	"QuoteLedger/internal/observability"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Report is the final result of one replay.
type Report struct {
	Strategy          string                        `json:"strategy"`
	PnLMetric         PnLMetric                     `json:"pnl_metric"`
	SettlementAsset   string                        `json:"settlement_asset"`
	Quotes            int64                         `json:"quotes"`
	Sequence          int64                         `json:"sequence"`
	FirstTimestamp    int64                         `json:"first_timestamp"`
	LastTimestamp     int64                         `json:"last_timestamp"`
	StateHash         string                        `json:"state_hash"`
	TotalPnL          float64                       `json:"total_pnl"`
	FundingPnL        float64                       `json:"funding_pnl"`
	Trades            []event.TradeRecord           `json:"trades"`
	Funding           []event.FundingEvent          `json:"funding"`
	FundingSkips      []event.FundingSkip           `json:"funding_skips"`
	Rejections        []event.Rejection             `json:"rejections"`
	RejectionsByCause map[string]int64              `json:"rejections_by_cause"`
	Balances          map[string]map[string]float64 `json:"balances"` // venue -> asset
	Fees              map[string]map[string]float64 `json:"fees"`     // venue -> asset
	PnL               []PnLPoint                    `json:"pnl"`
}

// WriteJSON encodes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteJSONFile writes the report to path, creating parent directories.
func (r *Report) WriteJSONFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := r.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Summary condenses the report for the CloudWatch publisher.
func (r *Report) Summary(runName string, elapsed time.Duration) observability.RunSummary {
	var rejections int64
	for _, n := range r.RejectionsByCause {
		rejections += n
	}

	return observability.RunSummary{
		RunName:       runName,
		Strategy:      r.Strategy,
		Quotes:        r.Quotes,
		Trades:        int64(len(r.Trades)),
		Rejections:    rejections,
		FundingEvents: int64(len(r.Funding)),
		FundingSkips:  int64(len(r.FundingSkips)),
		TotalPnL:      r.TotalPnL,
		Duration:      elapsed,
	}
}
