package persistence

import (
	"QuoteLedger/internal/projection"
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Postgres caps bind parameters per statement.
const maxBindParams = 65535

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// RunRow represents a row in replay.runs
type RunRow struct {
	RunID           uuid.UUID
	Name            string
	Strategy        string
	PnLMetric       string
	SettlementAsset string
	StartedAt       time.Time
}

// ReportWriter writes one replay run to the replay schema using multi-row
// INSERTs. Every insert is idempotent, so re-flushing a batch is safe.
type ReportWriter struct {
	db    *sql.DB
	runID uuid.UUID
}

func NewReportWriter(db *sql.DB, runID uuid.UUID) *ReportWriter {
	return &ReportWriter{db: db, runID: runID}
}

// StartRun registers the run so that result rows can reference it.
func (w *ReportWriter) StartRun(ctx context.Context, run RunRow) error {
	_, err := w.db.ExecContext(ctx, `INSERT INTO replay.runs
		(run_id, name, strategy, pnl_metric, settlement_asset, status, started_at)
		VALUES ($1, $2, $3, $4, $5, 'running', $6)
		ON CONFLICT (run_id) DO NOTHING`,
		run.RunID, run.Name, run.Strategy, run.PnLMetric, run.SettlementAsset, run.StartedAt.UTC(),
	)
	return err
}

// WriteBatch writes all pending rows in a single transaction.
func (w *ReportWriter) WriteBatch(ctx context.Context, b *Batch) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := w.writeTrades(ctx, tx, b.Trades); err != nil {
		return fmt.Errorf("write trades: %w", err)
	}
	if err := w.writeFunding(ctx, tx, b.Funding); err != nil {
		return fmt.Errorf("write funding: %w", err)
	}
	if err := w.writeFundingSkips(ctx, tx, b.FundingSkips); err != nil {
		return fmt.Errorf("write funding skips: %w", err)
	}
	if err := w.writeRejections(ctx, tx, b.Rejections); err != nil {
		return fmt.Errorf("write rejections: %w", err)
	}

	return tx.Commit()
}

// FinishRun stores the run totals and final balances.
func (w *ReportWriter) FinishRun(ctx context.Context, report *projection.Report, finishedAt time.Time) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE replay.runs SET
		status = 'completed', quotes = $2, last_sequence = $3, total_pnl = $4,
		funding_pnl = $5, state_hash = $6, finished_at = $7
		WHERE run_id = $1`,
		w.runID, report.Quotes, report.Sequence, report.TotalPnL,
		report.FundingPnL, report.StateHash, finishedAt.UTC(),
	); err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	if err := w.writeBalances(ctx, tx, report.Balances, report.Fees); err != nil {
		return fmt.Errorf("write balances: %w", err)
	}

	return tx.Commit()
}

// FailRun marks the run as aborted.
func (w *ReportWriter) FailRun(ctx context.Context, finishedAt time.Time) error {
	_, err := w.db.ExecContext(ctx,
		`UPDATE replay.runs SET status = 'failed', finished_at = $2 WHERE run_id = $1`,
		w.runID, finishedAt.UTC(),
	)
	return err
}

func (w *ReportWriter) writeTrades(ctx context.Context, ex execer, rows []TradeRow) error {
	columns := []string{
		"trade_id", "run_id", "sequence", "leg", "ts_ns", "venue", "pair", "side", "instrument",
		"base_asset", "quote_asset", "price", "volume", "fee", "notional", "pnl",
	}
	return insertRows(ctx, ex, "replay.trades", columns, "(trade_id)", len(rows), func(i int) []interface{} {
		r := rows[i]
		return []interface{}{
			r.TradeID, r.RunID, r.Sequence, r.Leg, r.Timestamp, r.Venue, r.Pair, r.Side, r.Instrument,
			r.BaseAsset, r.QuoteAsset, r.Price, r.Volume, r.Fee, r.Notional, r.PnL,
		}
	})
}

func (w *ReportWriter) writeFunding(ctx context.Context, ex execer, rows []FundingRow) error {
	columns := []string{
		"funding_id", "run_id", "boundary_ns", "venue", "pair", "position_size",
		"rate", "reference_price", "pnl", "settlement_asset",
	}
	return insertRows(ctx, ex, "replay.funding", columns, "(funding_id)", len(rows), func(i int) []interface{} {
		r := rows[i]
		return []interface{}{
			r.FundingID, w.runID, r.Boundary, r.Venue, r.Pair, r.PositionSize,
			r.Rate, r.ReferencePrice, r.PnL, r.SettlementAsset,
		}
	})
}

func (w *ReportWriter) writeFundingSkips(ctx context.Context, ex execer, rows []FundingSkipRow) error {
	columns := []string{"run_id", "boundary_ns", "venue", "pair", "position_size", "reason"}
	conflict := "(run_id, venue, pair, boundary_ns)"
	return insertRows(ctx, ex, "replay.funding_skips", columns, conflict, len(rows), func(i int) []interface{} {
		r := rows[i]
		return []interface{}{w.runID, r.Boundary, r.Venue, r.Pair, r.PositionSize, r.Reason}
	})
}

func (w *ReportWriter) writeRejections(ctx context.Context, ex execer, rows []RejectionRow) error {
	columns := []string{
		"run_id", "sequence", "leg", "ts_ns", "venue", "pair", "side",
		"price", "volume", "fee", "reason", "detail",
	}
	return insertRows(ctx, ex, "replay.rejections", columns, "(run_id, sequence, leg)", len(rows), func(i int) []interface{} {
		r := rows[i]
		return []interface{}{
			w.runID, r.Sequence, r.Leg, r.Timestamp, r.Venue, r.Pair, r.Side,
			r.Price, r.Volume, r.Fee, r.Reason, r.Detail,
		}
	})
}

func (w *ReportWriter) writeBalances(ctx context.Context, ex execer, balances, fees map[string]map[string]float64) error {
	type balanceRow struct {
		venue, asset  string
		balance, fees float64
	}

	var rows []balanceRow
	for venue, assets := range balances {
		for asset, b := range assets {
			rows = append(rows, balanceRow{venue: venue, asset: asset, balance: b, fees: fees[venue][asset]})
		}
	}
	// Fees paid in an asset that ended at zero still get a row.
	for venue, assets := range fees {
		for asset, f := range assets {
			if _, ok := balances[venue][asset]; !ok {
				rows = append(rows, balanceRow{venue: venue, asset: asset, fees: f})
			}
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].venue != rows[j].venue {
			return rows[i].venue < rows[j].venue
		}
		return rows[i].asset < rows[j].asset
	})

	columns := []string{"run_id", "venue", "asset", "balance", "fees"}
	return insertRows(ctx, ex, "replay.balances", columns, "(run_id, venue, asset)", len(rows), func(i int) []interface{} {
		r := rows[i]
		return []interface{}{w.runID, r.venue, r.asset, r.balance, r.fees}
	})
}

// insertRows builds chunked multi-row INSERTs with $n placeholders.
func insertRows(
	ctx context.Context,
	ex execer,
	table string,
	columns []string,
	conflict string,
	n int,
	row func(i int) []interface{},
) error {
	width := len(columns)
	perStatement := maxBindParams / width

	for start := 0; start < n; start += perStatement {
		end := start + perStatement
		if end > n {
			end = n
		}

		query, args := buildInsert(table, columns, conflict, end-start, func(i int) []interface{} {
			return row(start + i)
		})
		if _, err := ex.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

func buildInsert(table string, columns []string, conflict string, n int, row func(i int) []interface{}) (string, []interface{}) {
	width := len(columns)
	values := make([]string, 0, n)
	args := make([]interface{}, 0, n*width)
	placeholders := make([]string, width)

	for i := 0; i < n; i++ {
		base := i * width
		for c := range placeholders {
			placeholders[c] = fmt.Sprintf("$%d", base+c+1)
		}
		values = append(values, "("+strings.Join(placeholders, ", ")+")")
		args = append(args, row(i)...)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT %s DO NOTHING",
		table, strings.Join(columns, ", "), strings.Join(values, ", "), conflict)
	return query, args
}
