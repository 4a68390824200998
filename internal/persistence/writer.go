package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ResultWriter writes run results to Postgres using batch multi-row INSERT.
// Every statement carries ON CONFLICT DO NOTHING on the natural key, so
// re-persisting a run is idempotent.
type ResultWriter struct {
	db        *sql.DB
	batchSize int
}

// SnapshotRow is one ledger batch of one quarterly snapshot, flattened for
// storage.
type SnapshotRow struct {
	RunID        string
	Jurisdiction string
	Quarter      string
	Account      string
	AuctionType  string
	Category     string
	Vintage      int
	Newness      string
	Status       string
	DateLevel    string
	FirstUnsold  string
	LastUnsold   string
	Quantity     float64
}

// SeriesRow is one reporting year of the banking series.
type SeriesRow struct {
	RunID           string
	Jurisdiction    string
	Year            int
	AuctionSupply   float64
	PrivateHoldings float64
	Retired         float64
	Emissions       float64
	Offsets         float64
	Bank            float64
	ReserveSales    float64
}

func NewResultWriter(db *sql.DB, batchSize int) *ResultWriter {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &ResultWriter{db: db, batchSize: batchSize}
}

// WriteRun records the run header. Must precede snapshot and series rows so
// their foreign keys resolve.
func (w *ResultWriter) WriteRun(ctx context.Context, runID string, started, finished time.Time, violations int) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO wcisim.runs (run_id, started_at, finished_at, violations)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id) DO NOTHING`,
		runID, started, finished, violations)
	if err != nil {
		return fmt.Errorf("write run %s: %w", runID, err)
	}
	return nil
}

// WriteSnapshotBatch writes snapshot rows in batchSize chunks.
func (w *ResultWriter) WriteSnapshotBatch(ctx context.Context, rows []SnapshotRow) error {
	for start := 0; start < len(rows); start += w.batchSize {
		end := start + w.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := w.writeSnapshotChunk(ctx, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (w *ResultWriter) writeSnapshotChunk(ctx context.Context, rows []SnapshotRow) error {
	if len(rows) == 0 {
		return nil
	}
	const cols = 13
	query := `INSERT INTO wcisim.snapshots
		(run_id, jurisdiction, quarter, account, auction_type, category,
		 vintage, newness, status, date_level, first_unsold, last_unsold, quantity)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*cols)
	for i, r := range rows {
		base := i * cols
		ph := make([]string, cols)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
		args = append(args,
			r.RunID, r.Jurisdiction, r.Quarter, r.Account, r.AuctionType,
			r.Category, r.Vintage, r.Newness, r.Status, r.DateLevel,
			r.FirstUnsold, r.LastUnsold, r.Quantity,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (run_id, jurisdiction, quarter, account, auction_type,
		category, vintage, newness, status, date_level, first_unsold, last_unsold)
		DO NOTHING`

	if _, err := w.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("write snapshot batch: %w", err)
	}
	return nil
}

// WriteSeriesBatch writes supply series rows in one statement.
func (w *ResultWriter) WriteSeriesBatch(ctx context.Context, rows []SeriesRow) error {
	if len(rows) == 0 {
		return nil
	}
	const cols = 10
	query := `INSERT INTO wcisim.supply_series
		(run_id, jurisdiction, year, auction_supply, private_holdings,
		 retired, emissions, offsets, bank, reserve_sales)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*cols)
	for i, r := range rows {
		base := i * cols
		ph := make([]string, cols)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
		args = append(args,
			r.RunID, r.Jurisdiction, r.Year, r.AuctionSupply, r.PrivateHoldings,
			r.Retired, r.Emissions, r.Offsets, r.Bank, r.ReserveSales,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (run_id, jurisdiction, year) DO NOTHING"

	if _, err := w.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("write series batch: %w", err)
	}
	return nil
}
