// Package config holds the YAML-backed settings for data loading, simulation,
// evolution and storage, with .env and EVOTRADER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

const (
	MutationModeReplace = "replace"
	MutationModePerturb = "perturb"
)

// App captures process-wide settings such as name, logging and the metrics listener.
type App struct {
	Name        string `yaml:"name"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Data locates candle input and the normalized cache.
type Data struct {
	RawPath      string  `yaml:"raw_path"`
	CachePath    string  `yaml:"cache_path"`
	PriceCeiling float64 `yaml:"price_ceiling"`
	Epoch        int64   `yaml:"epoch"`
}

type Simulation struct {
	TimeStep int64 `yaml:"time_step"`
	Workers  int   `yaml:"workers"`
	Lookback int   `yaml:"lookback"`
}

// Evolution configures the generation loop.
type Evolution struct {
	Seed                 int64   `yaml:"seed"`
	BotsCount            int     `yaml:"bots_count"`
	MaxVisibleSecurities int     `yaml:"max_visible_securities"`
	MaxStagnantSessions  int     `yaml:"max_stagnant_sessions"`
	ProperStartTime      int64   `yaml:"proper_start_time"`
	StartSpanDays        int     `yaml:"start_span_days"`
	MinDays              int     `yaml:"min_days"`
	ExtraDays            int     `yaml:"extra_days"`
	MinCash              float64 `yaml:"min_cash"`
	CashSpan             float64 `yaml:"cash_span"`
	InitialMutationRate  float64 `yaml:"initial_mutation_rate"`
	FailureRateStep      float64 `yaml:"failure_rate_step"`
	SuccessRateStep      float64 `yaml:"success_rate_step"`
	MaxMutationRate      float64 `yaml:"max_mutation_rate"`
	MutationBias         float64 `yaml:"mutation_bias"`
	MutationMode         string  `yaml:"mutation_mode"`
	StateSignals         int     `yaml:"state_signals"`
	HiddenLayers         []int   `yaml:"hidden_layers"`
	MaxGenerations       int     `yaml:"max_generations"`
	Workers              int     `yaml:"workers"`
}

type Storage struct {
	Kind       string `yaml:"kind"`
	DBPath     string `yaml:"db_path"`
	ResultsDir string `yaml:"results_dir"`
}

type Config struct {
	App        App        `yaml:"app"`
	Data       Data       `yaml:"data"`
	Simulation Simulation `yaml:"simulation"`
	Evolution  Evolution  `yaml:"evolution"`
	Storage    Storage    `yaml:"storage"`
}

// DefaultEvolution mirrors the constants the trading loop was tuned with.
func DefaultEvolution() Evolution {
	return Evolution{
		Seed:                 1,
		BotsCount:            10,
		MaxVisibleSecurities: 50,
		MaxStagnantSessions:  4,
		ProperStartTime:      1025481600,
		StartSpanDays:        3650,
		MinDays:              50,
		ExtraDays:            150,
		MinCash:              5000,
		CashSpan:             45000,
		InitialMutationRate:  0.15,
		FailureRateStep:      0.02,
		SuccessRateStep:      0.005,
		MaxMutationRate:      0.7,
		MutationBias:         0.5,
		MutationMode:         MutationModeReplace,
		StateSignals:         30,
		Workers:              1,
	}
}

func Default() *Config {
	return &Config{
		App: App{
			Name:     "evotrader",
			LogLevel: "info",
		},
		Data: Data{
			CachePath:    "dist/candles/securities-candles-normalized.json",
			PriceCeiling: 400000,
			Epoch:        949363200,
		},
		Simulation: Simulation{
			TimeStep: 86400,
			Workers:  1,
		},
		Evolution: DefaultEvolution(),
		Storage: Storage{
			Kind:       "file",
			DBPath:     "evotrader.db",
			ResultsDir: "results",
		},
	}
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	cfg := Default()
	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyEnv loads the given dotenv files when they exist (".env" when none are
// named) and then applies EVOTRADER_* overrides. Variables already set in the
// process environment win over dotenv values.
func (c *Config) ApplyEnv(envFiles ...string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}

	strings := map[string]*string{
		"EVOTRADER_LOG_LEVEL":     &c.App.LogLevel,
		"EVOTRADER_METRICS_ADDR":  &c.App.MetricsAddr,
		"EVOTRADER_RAW_PATH":      &c.Data.RawPath,
		"EVOTRADER_CACHE_PATH":    &c.Data.CachePath,
		"EVOTRADER_STORE":         &c.Storage.Kind,
		"EVOTRADER_DB_PATH":       &c.Storage.DBPath,
		"EVOTRADER_RESULTS_DIR":   &c.Storage.ResultsDir,
		"EVOTRADER_MUTATION_MODE": &c.Evolution.MutationMode,
	}
	for key, dst := range strings {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"EVOTRADER_MAX_GENERATIONS": &c.Evolution.MaxGenerations,
		"EVOTRADER_BOTS":            &c.Evolution.BotsCount,
		"EVOTRADER_WORKERS":         &c.Evolution.Workers,
		"EVOTRADER_SIM_WORKERS":     &c.Simulation.Workers,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv("EVOTRADER_SEED"); ok && v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: EVOTRADER_SEED=%q is not an integer", ErrInvalid, v)
		}
		c.Evolution.Seed = seed
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Data.PriceCeiling <= 0 {
		return fmt.Errorf("%w: data.price_ceiling must be > 0", ErrInvalid)
	}
	if c.Simulation.TimeStep <= 0 {
		return fmt.Errorf("%w: simulation.time_step must be > 0", ErrInvalid)
	}
	if c.Simulation.Workers < 0 || c.Simulation.Lookback < 0 {
		return fmt.Errorf("%w: simulation.workers and simulation.lookback must be >= 0", ErrInvalid)
	}
	if err := c.Evolution.Validate(); err != nil {
		return err
	}
	switch c.Storage.Kind {
	case "", "memory":
	case "file":
		if c.Storage.ResultsDir == "" {
			return fmt.Errorf("%w: storage.results_dir is required for the file store", ErrInvalid)
		}
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("%w: storage.db_path is required for the sqlite store", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unsupported storage.kind %q", ErrInvalid, c.Storage.Kind)
	}
	return nil
}

func (e Evolution) Validate() error {
	switch {
	case e.BotsCount <= 0:
		return fmt.Errorf("%w: evolution.bots_count must be > 0", ErrInvalid)
	case e.MaxVisibleSecurities < 0:
		return fmt.Errorf("%w: evolution.max_visible_securities must be >= 0", ErrInvalid)
	case e.MaxStagnantSessions < 0:
		return fmt.Errorf("%w: evolution.max_stagnant_sessions must be >= 0", ErrInvalid)
	case e.StartSpanDays < 0 || e.MinDays <= 0 || e.ExtraDays < 0:
		return fmt.Errorf("%w: evolution window days must be positive", ErrInvalid)
	case e.MinCash <= 0 || e.CashSpan < 0:
		return fmt.Errorf("%w: evolution.min_cash must be > 0 and cash_span >= 0", ErrInvalid)
	case e.InitialMutationRate <= 0 || e.InitialMutationRate > e.MaxMutationRate:
		return fmt.Errorf("%w: evolution.initial_mutation_rate must be in (0, max_mutation_rate]", ErrInvalid)
	case e.FailureRateStep <= 0 || e.SuccessRateStep <= 0:
		return fmt.Errorf("%w: evolution rate steps must be > 0", ErrInvalid)
	case e.MutationBias <= 0:
		return fmt.Errorf("%w: evolution.mutation_bias must be > 0", ErrInvalid)
	case e.StateSignals <= 0:
		return fmt.Errorf("%w: evolution.state_signals must be > 0", ErrInvalid)
	case e.MaxGenerations < 0:
		return fmt.Errorf("%w: evolution.max_generations must be >= 0", ErrInvalid)
	case e.Workers < 0:
		return fmt.Errorf("%w: evolution.workers must be >= 0", ErrInvalid)
	}
	switch e.MutationMode {
	case "", MutationModeReplace, MutationModePerturb:
	default:
		return fmt.Errorf("%w: unsupported evolution.mutation_mode %q", ErrInvalid, e.MutationMode)
	}
	for _, width := range e.HiddenLayers {
		if width <= 0 {
			return fmt.Errorf("%w: evolution.hidden_layers must be positive", ErrInvalid)
		}
	}
	return nil
}
