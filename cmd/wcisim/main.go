package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	_ "github.com/lib/pq"

	"wcisim/internal/ledger"
	"wcisim/internal/observability"
	"wcisim/internal/persistence"
	"wcisim/internal/publish"
	"wcisim/internal/regs"
	"wcisim/internal/scenario"
	"wcisim/internal/server"
	"wcisim/internal/sim"
	"wcisim/internal/supply"
)

var version = "dev"

// runFlags are shared by `run` and `serve`.
type runFlags struct {
	scenarioPath  string
	overridesPath string
	caVariant     string
	qcVariant     string
	end           string
	strict        bool

	postgresDSN   string
	natsURL       string
	migrationsDir string
	batchSize     int
}

func (f *runFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.scenarioPath, "scenario", "", "scenario YAML file (defaults apply when empty)")
	fl.StringVar(&f.overridesPath, "overrides", "", "regulatory override YAML file")
	fl.StringVar(&f.caVariant, "ca-variant", envOrDefault("WCISIM_CA_VARIANT", "baseline"),
		"CA post-2020 regulation variant (baseline|preliminary_draft|proposed_regs)")
	fl.StringVar(&f.qcVariant, "qc-variant", envOrDefault("WCISIM_QC_VARIANT", "baseline"),
		"QC post-2020 regulation variant")
	fl.StringVar(&f.end, "end", "2030Q4", "last simulated quarter")
	fl.BoolVar(&f.strict, "strict", false, "treat invariant violations as hard errors")

	fl.StringVar(&f.postgresDSN, "postgres-dsn", os.Getenv("WCISIM_POSTGRES_DSN"),
		"Postgres DSN for the results sink (disabled when empty)")
	fl.StringVar(&f.natsURL, "nats-url", os.Getenv("WCISIM_NATS_URL"),
		"NATS URL for result publishing (disabled when empty)")
	fl.StringVar(&f.migrationsDir, "migrations-dir", envOrDefault("WCISIM_MIGRATIONS_DIR", "migrations"),
		"SQL migrations directory")
	fl.IntVar(&f.batchSize, "persist-batch-size", envIntOrDefault("WCISIM_PERSIST_BATCH_SIZE", 500),
		"rows per persistence batch")
}

func main() {
	root := &cobra.Command{
		Use:           "wcisim",
		Short:         "Quarterly WCI cap-and-trade allowance ledger simulator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(), serveCmd(), migrateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		log := observability.NewLogger("main")
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a full simulation and print the banking series",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, series, err := simulate(cmd.Context(), &flags)
			if err != nil {
				return err
			}
			printSeries(series)
			fmt.Printf("run %s: %d invariant violations\n", res.RunID, len(res.Violations))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func serveCmd() *cobra.Command {
	var flags runFlags
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a simulation and serve its results over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := observability.NewLogger("serve")
			metrics := observability.NewMetrics()
			health := observability.NewHealthChecker()
			store := server.NewRunStore()

			srv := server.NewServer(httpAddr, store, metrics, health, log)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(cmd.Context()) }()

			res, series, err := simulateWith(cmd.Context(), &flags, metrics)
			if err != nil {
				return err
			}
			store.Put(server.StoredRun{Result: res, Series: series})
			health.SetReady(true)
			log.Info().Str("run_id", res.RunID).Msg("results ready")

			return <-errCh
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&httpAddr, "http-addr", envOrDefault("WCISIM_HTTP_ADDR", ":8080"),
		"HTTP listen address")
	return cmd
}

func migrateCmd() *cobra.Command {
	var dsn, dir string
	cmd := &cobra.Command{
		Use:       "migrate <up|down>",
		Short:     "Apply or roll back SQL migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			log := observability.NewLogger("migrate")
			db, err := sql.Open("postgres", dsn)
			if err != nil {
				return fmt.Errorf("open postgres: %w", err)
			}
			defer db.Close()

			m := persistence.NewMigrator(db, dir, log)
			if args[0] == "down" {
				return m.Down(cmd.Context())
			}
			return m.Up(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&dsn, "postgres-dsn", os.Getenv("WCISIM_POSTGRES_DSN"), "Postgres DSN")
	cmd.Flags().StringVar(&dir, "migrations-dir", envOrDefault("WCISIM_MIGRATIONS_DIR", "migrations"),
		"SQL migrations directory")
	return cmd
}

func simulate(ctx context.Context, flags *runFlags) (*sim.Result, []supply.Series, error) {
	return simulateWith(ctx, flags, observability.NewMetrics())
}

// simulateWith builds the regulatory store and scenario from flags, runs the
// simulation, derives the banking series, and feeds the optional sinks.
func simulateWith(ctx context.Context, flags *runFlags, metrics *observability.Metrics) (*sim.Result, []supply.Series, error) {
	log := observability.NewLogger("sim")

	caVar, err := regs.ParseVariant(flags.caVariant)
	if err != nil {
		return nil, nil, err
	}
	qcVar, err := regs.ParseVariant(flags.qcVariant)
	if err != nil {
		return nil, nil, err
	}
	store := regs.Build(caVar, qcVar)

	if flags.overridesPath != "" {
		ov, err := regs.LoadOverrides(flags.overridesPath)
		if err != nil {
			return nil, nil, fmt.Errorf("regulatory overrides: %w", err)
		}
		store.Apply(ov)
	}

	settings := scenario.Default()
	if flags.scenarioPath != "" {
		settings = scenario.Load(flags.scenarioPath, log)
	}

	end, err := ledger.ParseQuarter(flags.end)
	if err != nil {
		return nil, nil, err
	}

	policy := ledger.PolicyWarn
	if flags.strict {
		policy = ledger.PolicyStrict
	}

	runner := sim.NewRunner(store, settings, policy, metrics, log)
	runner.SetEnd(end)
	res, err := runner.Run(ctx)
	if err != nil {
		return nil, nil, err
	}

	series := make([]supply.Series, 0, len(res.States))
	for _, j := range []ledger.Jurisdiction{ledger.CA, ledger.QC} {
		if st, ok := res.States[j]; ok {
			series = append(series, supply.Build(j, st, settings))
		}
	}

	if flags.postgresDSN != "" {
		if err := persistResult(ctx, flags, metrics, log, res, series); err != nil {
			return nil, nil, err
		}
	}
	if flags.natsURL != "" {
		publishResult(ctx, flags, metrics, log, res, series)
	}
	return res, series, nil
}

func persistResult(ctx context.Context, flags *runFlags, metrics *observability.Metrics, log zerolog.Logger, res *sim.Result, series []supply.Series) error {
	db, err := sql.Open("postgres", flags.postgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	if err := persistence.NewMigrator(db, flags.migrationsDir, log).Up(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return persistence.NewStore(db, flags.batchSize, metrics, log).SaveResult(ctx, res, series)
}

// publishResult is best-effort: a missing broker logs a warning rather than
// failing a finished run.
func publishResult(ctx context.Context, flags *runFlags, metrics *observability.Metrics, log zerolog.Logger, res *sim.Result, series []supply.Series) {
	nc, err := nats.Connect(flags.natsURL)
	if err != nil {
		log.Warn().Err(err).Msg("nats connect failed, results not published")
		return
	}
	defer nc.Close()
	js, err := jetstream.New(nc)
	if err != nil {
		log.Warn().Err(err).Msg("jetstream init failed, results not published")
		return
	}
	if err := publish.EnsureStream(ctx, js); err != nil {
		log.Warn().Err(err).Msg("stream setup failed, results not published")
		return
	}
	publish.NewPublisher(js, metrics, log).PublishResult(ctx, res, series)
}

func printSeries(series []supply.Series) {
	for _, s := range series {
		fmt.Printf("%s banking series:\n", s.Jurisdiction)
		fmt.Printf("  %4s %14s %12s %14s\n", "year", "auction_supply", "bank", "reserve_sales")
		for _, p := range s.Points {
			fmt.Printf("  %4d %14.3f %12.3f %14.3f\n", p.Year, p.AuctionSupply, p.Bank, p.ReserveSales)
		}
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
		return defaultVal
	}
	return i
}
