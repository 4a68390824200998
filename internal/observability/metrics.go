package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics exported by the simulator.
type Metrics struct {
	// --- Simulation core ---
	QuartersProcessed   *prometheus.CounterVec
	InvariantViolations *prometheus.CounterVec
	AuctionSoldFraction *prometheus.GaugeVec
	LedgerRows          *prometheus.GaugeVec
	RunDuration         prometheus.Histogram
	RunsCompleted       *prometheus.CounterVec

	// --- Persistence ---
	PersistRowsWritten prometheus.Counter
	PersistBatchDur    prometheus.Histogram
	PersistErrors      *prometheus.CounterVec

	// --- Publishing ---
	PublishedResults prometheus.Counter
	PublishErrors    prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		QuartersProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wcisim_quarters_processed_total",
			Help: "Quarterly transitions completed",
		}, []string{"jurisdiction"}),

		InvariantViolations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wcisim_invariant_violations_total",
			Help: "Consistency check failures observed during a run",
		}, []string{"check"}),

		AuctionSoldFraction: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wcisim_auction_sold_fraction",
			Help: "Sold fraction of the most recent auction",
		}, []string{"jurisdiction", "auction_type"}),

		LedgerRows: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wcisim_ledger_rows",
			Help: "Distinct instrument batches currently on the books",
		}, []string{"jurisdiction"}),

		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wcisim_run_duration_seconds",
			Help:    "Wall time of a full simulation run",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),

		RunsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wcisim_runs_completed_total",
			Help: "Simulation runs finished, by outcome",
		}, []string{"status"}),

		PersistRowsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wcisim_persist_rows_written_total",
			Help: "Snapshot rows written to Postgres",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wcisim_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wcisim_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PublishedResults: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wcisim_published_results_total",
			Help: "Result messages published to NATS",
		}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wcisim_publish_errors_total",
			Help: "Failed NATS publishes",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wcisim_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wcisim_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}
