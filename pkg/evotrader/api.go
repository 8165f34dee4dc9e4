package evotrader

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"evotrader/internal/brain"
	"evotrader/internal/candles"
	"evotrader/internal/config"
	"evotrader/internal/evo"
	"evotrader/internal/exchange"
	"evotrader/internal/metrics"
	"evotrader/internal/model"
	"evotrader/internal/stats"
	"evotrader/internal/storage"
)

const (
	defaultResultsDir = "results"
	defaultDBPath     = "evotrader.db"
)

type Options struct {
	StoreKind  string
	DBPath     string
	ResultsDir string
	Logger     *zerolog.Logger
	// Registerer receives the evotrader metrics; nil disables them.
	Registerer prometheus.Registerer
}

type Client struct {
	store      storage.Store
	resultsDir string
	logger     zerolog.Logger
	metrics    *metrics.Collector
}

type NormalizeRequest struct {
	RawPath      string
	CachePath    string
	PriceCeiling float64
	Epoch        int64
	// Force re-normalizes the raw file even when the cache exists.
	Force bool
}

type NormalizeSummary struct {
	CachePath  string
	Securities int
	Cached     bool
	Report     candles.Report
}

type RunRequest struct {
	// RunID names the run; a random id is generated when empty.
	RunID string
	// Dataset, when set, is used instead of RawPath/CachePath.
	Dataset    *model.Dataset
	RawPath    string
	CachePath  string
	Data       config.Data
	Simulation config.Simulation
	Evolution  config.Evolution
	// Resume continues RunID from its latest stored policy.
	Resume bool
	// PolicyFile seeds the run from a stored policy record.
	PolicyFile string
}

type RunSummary struct {
	RunID           string
	Generations     int
	Winners         int
	StopReason      string
	FinalRate       float64
	BestEfficiency  float64
	StartGeneration int
	DiagnosticsPath string
	SeriesPath      string
	Diagnostics     []stats.GenerationDiagnostics
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID          string
	CreatedAtUTC   string
	Seed           int64
	Generations    int
	Winners        int
	StopReason     string
	BestEfficiency float64
	// Indexed is false for runs found only in the store.
	Indexed bool
}

type PolicyRequest struct {
	RunID string
	// Name selects a stored policy; empty means the latest generation of RunID.
	Name string
	// File loads a policy record from disk instead of the store.
	File string
}

type PolicyInfo struct {
	Name         string
	RunID        string
	Generation   int
	Activation   string
	LayerSizes   []int
	StateSignals int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	resultsDir := opts.ResultsDir
	if resultsDir == "" {
		resultsDir = defaultResultsDir
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	storePath := dbPath
	if storeKind == "file" {
		storePath = resultsDir
	}

	store, err := storage.NewStore(storeKind, storePath)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	var collector *metrics.Collector
	if opts.Registerer != nil {
		collector, err = metrics.NewCollector(opts.Registerer)
		if err != nil {
			_ = storage.CloseIfSupported(store)
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	return &Client{
		store:      store,
		resultsDir: resultsDir,
		logger:     logger,
		metrics:    collector,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Init prepares the store. Store-backed calls run it themselves.
func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) Normalize(_ context.Context, req NormalizeRequest) (NormalizeSummary, error) {
	opts := candles.Options{PriceCeiling: req.PriceCeiling, Epoch: req.Epoch}
	if req.Force {
		if req.RawPath == "" {
			return NormalizeSummary{}, errors.New("normalize requires a raw candle path")
		}
		series, err := candles.LoadRaw(req.RawPath)
		if err != nil {
			return NormalizeSummary{}, err
		}
		ds, report, err := candles.Normalize(series, opts)
		if err != nil {
			return NormalizeSummary{}, err
		}
		if req.CachePath != "" {
			if err := candles.SaveDataset(req.CachePath, ds); err != nil {
				return NormalizeSummary{}, err
			}
		}
		return NormalizeSummary{CachePath: req.CachePath, Securities: ds.Len(), Report: report}, nil
	}

	ds, report, cached, err := candles.LoadOrNormalize(req.RawPath, req.CachePath, opts)
	if err != nil {
		return NormalizeSummary{}, err
	}
	return NormalizeSummary{CachePath: req.CachePath, Securities: ds.Len(), Cached: cached, Report: report}, nil
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Resume && req.RunID == "" {
		return RunSummary{}, errors.New("resume requires a run id")
	}
	if req.Resume && req.PolicyFile != "" {
		return RunSummary{}, errors.New("use either resume or policy file")
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if err := req.Evolution.Validate(); err != nil {
		return RunSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	ds, err := c.dataset(req)
	if err != nil {
		return RunSummary{}, err
	}

	master := rand.New(rand.NewSource(req.Evolution.Seed))
	sim, err := exchange.New(ds, exchange.Config{
		TimeStep: req.Simulation.TimeStep,
		Rand:     rand.New(rand.NewSource(master.Int63())),
		Logger:   c.logger.With().Str("run_id", req.RunID).Logger(),
		Workers:  req.Simulation.Workers,
	})
	if err != nil {
		return RunSummary{}, err
	}

	var (
		seed        *brain.Policy
		startGen    int
		initialRate float64
	)
	switch {
	case req.PolicyFile != "":
		record, err := LoadPolicyFile(req.PolicyFile)
		if err != nil {
			return RunSummary{}, err
		}
		seed, err = brain.FromRecord(record)
		if err != nil {
			return RunSummary{}, fmt.Errorf("policy file %s: %w", req.PolicyFile, err)
		}
	case req.Resume:
		record, last, ok, err := storage.LatestPolicy(ctx, c.store, req.RunID)
		if err != nil {
			return RunSummary{}, err
		}
		if !ok {
			return RunSummary{}, fmt.Errorf("run %s has no stored generations to resume", req.RunID)
		}
		seed, err = brain.FromRecord(record)
		if err != nil {
			return RunSummary{}, fmt.Errorf("resume %s: %w", record.Name, err)
		}
		startGen = last.Generation + 1
		// The stored rate is the one the winner was bred with; the win already lowered it.
		initialRate = last.MutationRate - req.Evolution.SuccessRateStep
		if initialRate <= 0 {
			c.logger.Info().Str("run_id", req.RunID).Int("generation", last.Generation).Msg("run already stopped with an exhausted mutation rate")
			return RunSummary{
				RunID:           req.RunID,
				StopReason:      string(evo.StopRateExhausted),
				StartGeneration: startGen,
			}, nil
		}
	}

	var layerSizes []int
	if seed != nil {
		layerSizes = seed.LayerSizes()
	}
	controller, err := evo.NewController(evo.ControllerConfig{
		Simulator:       sim,
		Store:           c.store,
		Logger:          c.logger,
		Metrics:         c.metrics,
		Rand:            master,
		RunID:           req.RunID,
		Settings:        req.Evolution,
		LayerSizes:      layerSizes,
		Lookback:        req.Simulation.Lookback,
		StartGeneration: startGen,
		InitialRate:     initialRate,
	})
	if err != nil {
		return RunSummary{}, err
	}

	result, err := controller.Run(ctx, seed)
	if err != nil {
		return RunSummary{}, err
	}

	history := result.Diagnostics
	if req.Resume {
		previous, _, err := stats.ReadDiagnostics(c.resultsDir, req.RunID)
		if err != nil {
			return RunSummary{}, err
		}
		history = append(previous, history...)
	}
	diagnosticsPath, err := stats.WriteDiagnostics(c.resultsDir, req.RunID, history)
	if err != nil {
		return RunSummary{}, err
	}
	seriesPath, err := stats.WriteEfficiencySeries(c.resultsDir, req.RunID, history)
	if err != nil {
		return RunSummary{}, err
	}
	winners := 0
	for _, d := range history {
		if d.Improved {
			winners++
		}
	}
	if err := stats.AppendRunIndex(c.resultsDir, stats.RunIndexEntry{
		RunID:             req.RunID,
		Seed:              req.Evolution.Seed,
		BotsCount:         req.Evolution.BotsCount,
		Generations:       startGen + result.Generations,
		Winners:           winners,
		StopReason:        string(result.StopReason),
		BestEfficiency:    result.BestEfficiency,
		FinalMutationRate: result.FinalRate,
		CreatedAtUTC:      time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:           req.RunID,
		Generations:     result.Generations,
		Winners:         result.Winners,
		StopReason:      string(result.StopReason),
		FinalRate:       result.FinalRate,
		BestEfficiency:  result.BestEfficiency,
		StartGeneration: startGen,
		DiagnosticsPath: diagnosticsPath,
		SeriesPath:      seriesPath,
		Diagnostics:     result.Diagnostics,
	}, nil
}

func (c *Client) dataset(req RunRequest) (model.Dataset, error) {
	if req.Dataset != nil {
		return *req.Dataset, nil
	}
	rawPath := req.RawPath
	if rawPath == "" {
		rawPath = req.Data.RawPath
	}
	cachePath := req.CachePath
	if cachePath == "" {
		cachePath = req.Data.CachePath
	}
	ds, report, cached, err := candles.LoadOrNormalize(rawPath, cachePath, candles.Options{
		PriceCeiling: req.Data.PriceCeiling,
		Epoch:        req.Data.Epoch,
	})
	if err != nil {
		return model.Dataset{}, err
	}
	c.logger.Info().
		Int("securities", ds.Len()).
		Int("dropped", len(report.Dropped)).
		Int("empty", len(report.Empty)).
		Bool("cached", cached).
		Msg("dataset loaded")
	return ds, nil
}

// Generations lists the stored winning generations of a run in order.
func (c *Client) Generations(ctx context.Context, runID string) ([]model.GenerationRecord, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c.store.ListGenerations(ctx, runID)
}

// Runs lists indexed runs newest first, followed by runs only the store knows about.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.resultsDir)
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	stored, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]RunItem, 0, len(entries)+len(stored))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		seen[e.RunID] = struct{}{}
		out = append(out, RunItem{
			RunID:          e.RunID,
			CreatedAtUTC:   e.CreatedAtUTC,
			Seed:           e.Seed,
			Generations:    e.Generations,
			Winners:        e.Winners,
			StopReason:     e.StopReason,
			BestEfficiency: e.BestEfficiency,
			Indexed:        true,
		})
	}
	for _, runID := range stored {
		if _, ok := seen[runID]; ok {
			continue
		}
		out = append(out, RunItem{RunID: runID})
	}
	if len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

type ExportRequest struct {
	RunID  string
	OutDir string
}

// Export copies a run's diagnostics, efficiency series and file-store models to OutDir.
func (c *Client) Export(_ context.Context, req ExportRequest) (string, error) {
	if req.OutDir == "" {
		return "", errors.New("export requires an output directory")
	}
	return stats.ExportRun(c.resultsDir, req.RunID, req.OutDir)
}

// Policy loads and validates a policy from a file or the store.
func (c *Client) Policy(ctx context.Context, req PolicyRequest) (PolicyInfo, error) {
	if req.File == "" && req.RunID != "" {
		if err := c.Init(ctx); err != nil {
			return PolicyInfo{}, err
		}
	}

	var record model.PolicyRecord
	switch {
	case req.File != "":
		var err error
		record, err = LoadPolicyFile(req.File)
		if err != nil {
			return PolicyInfo{}, err
		}
	case req.RunID == "":
		return PolicyInfo{}, errors.New("policy requires a run id or a file")
	case req.Name == "":
		latest, _, ok, err := storage.LatestPolicy(ctx, c.store, req.RunID)
		if err != nil {
			return PolicyInfo{}, err
		}
		if !ok {
			return PolicyInfo{}, fmt.Errorf("run %s has no stored policies", req.RunID)
		}
		record = latest
	default:
		stored, ok, err := c.store.GetPolicy(ctx, req.RunID, req.Name)
		if err != nil {
			return PolicyInfo{}, err
		}
		if !ok {
			return PolicyInfo{}, fmt.Errorf("policy %s not found in run %s", req.Name, req.RunID)
		}
		record = stored
	}

	policy, err := brain.FromRecord(record)
	if err != nil {
		return PolicyInfo{}, err
	}
	return PolicyInfo{
		Name:         record.Name,
		RunID:        record.RunID,
		Generation:   record.Generation,
		Activation:   policy.Activation(),
		LayerSizes:   policy.LayerSizes(),
		StateSignals: policy.StateWidth(),
	}, nil
}

func LoadPolicyFile(path string) (model.PolicyRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.PolicyRecord{}, err
	}
	record, err := storage.DecodePolicy(data)
	if err != nil {
		return model.PolicyRecord{}, fmt.Errorf("decode policy %s: %w", path, err)
	}
	return record, nil
}
