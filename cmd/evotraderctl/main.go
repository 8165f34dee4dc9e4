package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"evotrader/internal/config"
	"evotrader/internal/logging"
	"evotrader/internal/metrics"
	"evotrader/internal/storage"
	api "evotrader/pkg/evotrader"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "normalize":
		return runNormalize(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "generations":
		return runGenerations(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "policy":
		return runPolicy(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// commonFlags are shared by every subcommand that needs config or a store.
type commonFlags struct {
	configPath string
	envFile    string
	storeKind  string
	dbPath     string
	resultsDir string
	logLevel   string
}

func bindCommon(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.configPath, "config", "", "YAML config path")
	fs.StringVar(&c.envFile, "env-file", ".env", "dotenv file applied when present")
	fs.StringVar(&c.storeKind, "store", "", "store backend: memory|file|sqlite")
	fs.StringVar(&c.dbPath, "db-path", "", "sqlite database path")
	fs.StringVar(&c.resultsDir, "results-dir", "", "results directory")
	fs.StringVar(&c.logLevel, "log-level", "", "log level: debug|info|warn|error")
	return c
}

// load resolves config in order: defaults, YAML file, dotenv/environment, flags.
func (c *commonFlags) load() (*config.Config, error) {
	cfg := config.Default()
	cfg.Storage.Kind = storage.DefaultStoreKind()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(c.envFile); err != nil {
		return nil, err
	}
	if c.storeKind != "" {
		cfg.Storage.Kind = c.storeKind
	}
	if c.dbPath != "" {
		cfg.Storage.DBPath = c.dbPath
	}
	if c.resultsDir != "" {
		cfg.Storage.ResultsDir = c.resultsDir
	}
	if c.logLevel != "" {
		cfg.App.LogLevel = c.logLevel
	}
	return cfg, nil
}

func newClient(cfg *config.Config, logger *zerolog.Logger, reg prometheus.Registerer) (*api.Client, error) {
	return api.New(api.Options{
		StoreKind:  cfg.Storage.Kind,
		DBPath:     cfg.Storage.DBPath,
		ResultsDir: cfg.Storage.ResultsDir,
		Logger:     logger,
		Registerer: reg,
	})
}

func runNormalize(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	common := bindCommon(fs)
	rawPath := fs.String("raw", "", "raw candles JSON path")
	cachePath := fs.String("cache", "", "normalized dataset output path")
	force := fs.Bool("force", false, "re-normalize even when the cache exists")
	jsonOut := fs.Bool("json", false, "emit summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *rawPath != "" {
		cfg.Data.RawPath = *rawPath
	}
	if *cachePath != "" {
		cfg.Data.CachePath = *cachePath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	client, err := api.New(api.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Normalize(ctx, api.NormalizeRequest{
		RawPath:      cfg.Data.RawPath,
		CachePath:    cfg.Data.CachePath,
		PriceCeiling: cfg.Data.PriceCeiling,
		Epoch:        cfg.Data.Epoch,
		Force:        *force,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(summary)
	}
	fmt.Printf("normalized securities=%d total=%d dropped=%d empty=%d cached=%t cache=%s\n",
		summary.Securities, summary.Report.Total, len(summary.Report.Dropped), len(summary.Report.Empty), summary.Cached, summary.CachePath)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	common := bindCommon(fs)
	runID := fs.String("run-id", "", "run id (random when empty)")
	resume := fs.Bool("resume", false, "continue run-id from its latest stored policy")
	policyFile := fs.String("policy-file", "", "seed the run from a policy JSON file")
	rawPath := fs.String("raw", "", "raw candles JSON path")
	cachePath := fs.String("cache", "", "normalized dataset cache path")
	seed := fs.Int64("seed", 0, "random seed")
	gens := fs.Int("gens", 0, "max generations (0 = until the mutation rate stops the run)")
	bots := fs.Int("bots", 0, "bots per generation")
	workers := fs.Int("workers", 0, "population build workers")
	simWorkers := fs.Int("sim-workers", 0, "bot fan-out workers inside a session")
	lookback := fs.Int("lookback", 0, "candles visible to a policy (0 = all revealed)")
	mode := fs.String("mode", "", "mutation mode: replace|perturb")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	jsonOut := fs.Bool("json", false, "emit summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "raw":
			cfg.Data.RawPath = *rawPath
		case "cache":
			cfg.Data.CachePath = *cachePath
		case "seed":
			cfg.Evolution.Seed = *seed
		case "gens":
			cfg.Evolution.MaxGenerations = *gens
		case "bots":
			cfg.Evolution.BotsCount = *bots
		case "workers":
			cfg.Evolution.Workers = *workers
		case "sim-workers":
			cfg.Simulation.Workers = *simWorkers
		case "lookback":
			cfg.Simulation.Lookback = *lookback
		case "mode":
			cfg.Evolution.MutationMode = *mode
		case "metrics-addr":
			cfg.App.MetricsAddr = *metricsAddr
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(cfg.App.LogLevel, os.Stderr)
	var reg *prometheus.Registry
	if cfg.App.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
		srv := metrics.Serve(cfg.App.MetricsAddr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info().Str("addr", cfg.App.MetricsAddr).Msg("serving metrics")
	}

	var registerer prometheus.Registerer
	if reg != nil {
		registerer = reg
	}
	client, err := newClient(cfg, &logger, registerer)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, api.RunRequest{
		RunID:      *runID,
		Data:       cfg.Data,
		Simulation: cfg.Simulation,
		Evolution:  cfg.Evolution,
		Resume:     *resume,
		PolicyFile: *policyFile,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(summary)
	}
	fmt.Printf("run completed run_id=%s generations=%d winners=%d stop=%s best_efficiency=%.6f final_rate=%.4f\n",
		summary.RunID, summary.Generations, summary.Winners, summary.StopReason, summary.BestEfficiency, summary.FinalRate)
	return nil
}

func runGenerations(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generations", flag.ContinueOnError)
	common := bindCommon(fs)
	runID := fs.String("run-id", "", "run id")
	jsonOut := fs.Bool("json", false, "emit generations as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("generations requires --run-id")
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	client, err := newClient(cfg, nil, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	records, err := client.Generations(ctx, *runID)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(records)
	}
	if len(records) == 0 {
		fmt.Println("no generations found")
		return nil
	}
	for _, r := range records {
		fmt.Printf("generation=%d model=%s efficiency=%.6f wealth=%.2f cash=%.2f rate=%.4f start=%d end=%d trades=%d\n",
			r.Generation, r.ModelName, r.Efficiency, r.Wealth, r.StartingCash, r.MutationRate, r.StartTime, r.EndTime, len(r.Transactions))
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	common := bindCommon(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	client, err := newClient(cfg, nil, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, api.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(items)
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, item := range items {
		if !item.Indexed {
			fmt.Printf("run_id=%s (store only)\n", item.RunID)
			continue
		}
		fmt.Printf("run_id=%s created_at=%s seed=%d generations=%d winners=%d stop=%s best_efficiency=%.6f\n",
			item.RunID, item.CreatedAtUTC, item.Seed, item.Generations, item.Winners, item.StopReason, item.BestEfficiency)
	}
	return nil
}

func runPolicy(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("policy", flag.ContinueOnError)
	common := bindCommon(fs)
	runID := fs.String("run-id", "", "run id")
	name := fs.String("name", "", "policy name (latest generation when empty)")
	file := fs.String("file", "", "policy JSON file")
	jsonOut := fs.Bool("json", false, "emit policy info as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file != "" && *runID != "" {
		return errors.New("use either --file or --run-id")
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	client, err := newClient(cfg, nil, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	info, err := client.Policy(ctx, api.PolicyRequest{RunID: *runID, Name: *name, File: *file})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(info)
	}
	fmt.Printf("policy name=%s run_id=%s generation=%d activation=%s layers=%v state_signals=%d\n",
		info.Name, info.RunID, info.Generation, info.Activation, info.LayerSizes, info.StateSignals)
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	common := bindCommon(fs)
	runID := fs.String("run-id", "", "run id")
	outDir := fs.String("out", "exports", "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("export requires --run-id")
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	client, err := newClient(cfg, nil, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	dst, err := client.Export(ctx, api.ExportRequest{RunID: *runID, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s dir=%s\n", *runID, dst)
	return nil
}

func printJSON(value any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: evotraderctl <normalize|run|generations|runs|policy|export> [flags]", msg)
}
