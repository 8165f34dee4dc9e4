package config

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestLoadOverlaysDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.App.Name != "evotrader-test" || cfg.App.LogLevel != "debug" {
		t.Fatalf("unexpected app section: %+v", cfg.App)
	}
	if cfg.Simulation.TimeStep != 3600 || cfg.Simulation.Workers != 4 || cfg.Simulation.Lookback != 20 {
		t.Fatalf("unexpected simulation section: %+v", cfg.Simulation)
	}
	if cfg.Evolution.Seed != 42 || cfg.Evolution.BotsCount != 6 || cfg.Evolution.MutationMode != MutationModePerturb {
		t.Fatalf("unexpected evolution section: %+v", cfg.Evolution)
	}
	if len(cfg.Evolution.HiddenLayers) != 1 || cfg.Evolution.HiddenLayers[0] != 16 {
		t.Fatalf("unexpected hidden layers: %v", cfg.Evolution.HiddenLayers)
	}
	// Untouched keys keep their defaults.
	if cfg.Evolution.MaxStagnantSessions != 4 || cfg.Evolution.InitialMutationRate != 0.15 {
		t.Fatalf("expected defaults preserved: %+v", cfg.Evolution)
	}
	if cfg.Data.Epoch != 949363200 || cfg.Data.PriceCeiling != 250000 {
		t.Fatalf("unexpected data section: %+v", cfg.Data)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Evolution.Seed = 99
	cfg.Evolution.HiddenLayers = []int{8, 4}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Evolution.Seed != 99 || len(loaded.Evolution.HiddenLayers) != 2 {
		t.Fatalf("unexpected round trip: %+v", loaded.Evolution)
	}
	if err := Save(path, nil); err == nil {
		t.Fatal("expected nil config error")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("EVOTRADER_STORE", "memory")
	t.Setenv("EVOTRADER_SEED", "1234")
	t.Setenv("EVOTRADER_BOTS", "3")
	t.Setenv("EVOTRADER_MAX_GENERATIONS", "11")

	cfg := Default()
	if err := cfg.ApplyEnv(filepath.Join("testdata", "test.env")); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Storage.Kind != "memory" || cfg.Evolution.Seed != 1234 || cfg.Evolution.BotsCount != 3 {
		t.Fatalf("unexpected overrides: storage=%+v evolution=%+v", cfg.Storage, cfg.Evolution)
	}
	// The process environment wins over the dotenv file.
	if cfg.Evolution.MaxGenerations != 11 {
		t.Fatalf("unexpected max generations: got=%d want=%d", cfg.Evolution.MaxGenerations, 11)
	}
	if cfg.App.LogLevel != "warn" {
		t.Fatalf("expected dotenv log level: got=%s want=warn", cfg.App.LogLevel)
	}
}

func TestApplyEnvRejectsBadInteger(t *testing.T) {
	t.Setenv("EVOTRADER_SEED", "seven")
	cfg := Default()
	if err := cfg.ApplyEnv(filepath.Join(t.TempDir(), "none.env")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "bots", mutate: func(c *Config) { c.Evolution.BotsCount = 0 }},
		{name: "rate above ceiling", mutate: func(c *Config) { c.Evolution.InitialMutationRate = 0.9 }},
		{name: "time step", mutate: func(c *Config) { c.Simulation.TimeStep = 0 }},
		{name: "mode", mutate: func(c *Config) { c.Evolution.MutationMode = "shuffle" }},
		{name: "hidden", mutate: func(c *Config) { c.Evolution.HiddenLayers = []int{0} }},
		{name: "storage", mutate: func(c *Config) { c.Storage.Kind = "redis" }},
		{name: "results dir", mutate: func(c *Config) { c.Storage.ResultsDir = "" }},
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, tc := range tests {
		cfg := Default()
		tc.mutate(cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", tc.name, err)
		}
	}
}
