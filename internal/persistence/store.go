package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"wcisim/internal/ledger"
	"wcisim/internal/observability"
	"wcisim/internal/sim"
	"wcisim/internal/supply"
)

// Store persists complete run results. It flattens the per-quarter snapshots
// and the banking series into rows and hands them to the batch writer.
type Store struct {
	writer  *ResultWriter
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewStore(db *sql.DB, batchSize int, metrics *observability.Metrics, log zerolog.Logger) *Store {
	return &Store{
		writer:  NewResultWriter(db, batchSize),
		metrics: metrics,
		log:     log,
	}
}

// SaveResult persists one finished run: the run header, every quarterly
// snapshot of both jurisdictions, and the annual banking series.
func (s *Store) SaveResult(ctx context.Context, res *sim.Result, series []supply.Series) error {
	start := time.Now()

	if err := s.writer.WriteRun(ctx, res.RunID, res.StartedAt, res.FinishedAt, len(res.Violations)); err != nil {
		s.countError("run")
		return err
	}

	var written int
	for j, st := range res.States {
		for _, snap := range st.Snapshots {
			rows := flattenSnapshot(res.RunID, j, snap)
			if err := s.writer.WriteSnapshotBatch(ctx, rows); err != nil {
				s.countError("snapshot")
				return err
			}
			written += len(rows)
		}
	}

	var seriesRows []SeriesRow
	for _, sr := range series {
		for _, p := range sr.Points {
			seriesRows = append(seriesRows, SeriesRow{
				RunID:           res.RunID,
				Jurisdiction:    sr.Jurisdiction,
				Year:            p.Year,
				AuctionSupply:   p.AuctionSupply,
				PrivateHoldings: p.PrivateHoldings,
				Retired:         p.Retired,
				Emissions:       p.Emissions,
				Offsets:         p.Offsets,
				Bank:            p.Bank,
				ReserveSales:    p.ReserveSales,
			})
		}
	}
	if err := s.writer.WriteSeriesBatch(ctx, seriesRows); err != nil {
		s.countError("series")
		return err
	}
	written += len(seriesRows)

	if s.metrics != nil {
		s.metrics.PersistRowsWritten.Add(float64(written))
		s.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
	}
	s.log.Info().Str("run_id", res.RunID).Int("rows", written).
		Dur("elapsed", time.Since(start)).Msg("run persisted")
	return nil
}

func (s *Store) countError(kind string) {
	if s.metrics != nil {
		s.metrics.PersistErrors.WithLabelValues(kind).Inc()
	}
}

func flattenSnapshot(runID string, j ledger.Jurisdiction, snap sim.Snapshot) []SnapshotRow {
	ledgerRows := snap.Ledger.Rows()
	out := make([]SnapshotRow, 0, len(ledgerRows))
	for _, r := range ledgerRows {
		out = append(out, SnapshotRow{
			RunID:        runID,
			Jurisdiction: j.String(),
			Quarter:      snap.Quarter.String(),
			Account:      r.Key.Acct.String(),
			AuctionType:  r.Key.AuctType.String(),
			Category:     r.Key.Cat.String(),
			Vintage:      r.Key.Vintage,
			Newness:      r.Key.New.String(),
			Status:       r.Key.Stat.String(),
			DateLevel:    r.Key.DateLevel.String(),
			FirstUnsold:  r.Key.FirstUnsold.String(),
			LastUnsold:   r.Key.LastUnsold.String(),
			Quantity:     r.Qty,
		})
	}
	return out
}
