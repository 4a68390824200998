package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wcisim/internal/history"
	"wcisim/internal/ledger"
	"wcisim/internal/observability"
	"wcisim/internal/regs"
	"wcisim/internal/scenario"
)

// Result is the complete output of one run: the final per-jurisdiction states
// with their quarterly snapshot series, plus every invariant violation the
// checker recorded along the way.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Settings   scenario.Settings
	States     map[ledger.Jurisdiction]*State
	Violations []ledger.Violation
}

// Runner executes full simulation runs. Each run gets fresh ledgers and
// state; the regulatory store and scenario settings are shared read-only.
type Runner struct {
	regs     *regs.Store
	settings scenario.Settings
	policy   ledger.Policy
	end      ledger.Quarter
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func NewRunner(
	rs *regs.Store,
	settings scenario.Settings,
	policy ledger.Policy,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Runner {
	return &Runner{
		regs:     rs,
		settings: settings,
		policy:   policy,
		end:      regs.EndQuarter,
		metrics:  metrics,
		log:      log,
	}
}

// SetEnd truncates the run horizon. For tests and partial replays.
func (r *Runner) SetEnd(end ledger.Quarter) { r.end = end }

// Run simulates California first, then Quebec. The two books are independent
// below the linked-market aggregates, so sequential execution keeps every run
// bit-for-bit reproducible. Cancellation is honored between quarters.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Settings:  r.settings,
		States:    make(map[ledger.Jurisdiction]*State, 2),
	}
	log := r.log.With().Str("run_id", res.RunID).Logger()
	log.Info().Stringer("end", r.end).Msg("simulation run started")

	hist := history.NewAdapter()
	sales := history.NewSalesSeries(r.settings.Undersell.YearSet(), r.settings.Undersell.Fraction)

	for _, j := range []ledger.Jurisdiction{ledger.CA, ledger.QC} {
		checker := ledger.NewChecker(r.policy, log)
		if r.metrics != nil {
			checker.SetHook(func(check string) {
				r.metrics.InvariantViolations.WithLabelValues(check).Inc()
			})
		}
		s := NewSimulation(j, r.regs, hist, sales, r.settings, checker, log)

		if err := r.runJurisdiction(ctx, s); err != nil {
			if r.metrics != nil {
				r.metrics.RunsCompleted.WithLabelValues("error").Inc()
			}
			return nil, fmt.Errorf("simulating %s: %w", j, err)
		}
		res.States[j] = s.State()
		res.Violations = append(res.Violations, checker.Violations()...)
	}

	res.FinishedAt = time.Now()
	if r.metrics != nil {
		r.metrics.RunDuration.Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
		r.metrics.RunsCompleted.WithLabelValues("ok").Inc()
	}
	log.Info().
		Dur("elapsed", res.FinishedAt.Sub(res.StartedAt)).
		Int("violations", len(res.Violations)).
		Msg("simulation run finished")
	return res, nil
}

func (r *Runner) runJurisdiction(ctx context.Context, s *Simulation) error {
	cursor := NewCursor(s.Start(), r.end)
	for !cursor.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		q := cursor.Current()
		if err := s.Step(q); err != nil {
			return fmt.Errorf("quarter %s: %w", q, err)
		}
		r.observeQuarter(s, q)
		cursor.Advance()
	}
	return nil
}

func (r *Runner) observeQuarter(s *Simulation, q ledger.Quarter) {
	if r.metrics == nil {
		return
	}
	j := s.juris.String()
	r.metrics.QuartersProcessed.WithLabelValues(j).Inc()
	r.metrics.LedgerRows.WithLabelValues(j).Set(float64(s.led.Len()))
	for _, o := range s.state.Outcomes {
		if o.Quarter == q && o.Available > ledger.Epsilon {
			r.metrics.AuctionSoldFraction.WithLabelValues(j, o.Type.String()).Set(o.Fraction())
		}
	}
}
