// Package evo drives the generation loop: it mutates the current parent
// policy into a population, simulates it over a random window and keeps the
// richest bot when it beat its starting cash.
package evo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"evotrader/internal/brain"
	"evotrader/internal/config"
	"evotrader/internal/exchange"
	"evotrader/internal/metrics"
	"evotrader/internal/model"
	"evotrader/internal/stats"
	"evotrader/internal/storage"
)

const secondsPerDay int64 = 86400

type StopReason string

const (
	StopRateExhausted   StopReason = "rate_exhausted"
	StopRateCeiling     StopReason = "rate_ceiling"
	StopGenerationLimit StopReason = "generation_limit"
	StopCanceled        StopReason = "canceled"
)

type ControllerConfig struct {
	Simulator *exchange.Simulator
	Store     storage.Store
	Logger    zerolog.Logger
	Metrics   *metrics.Collector
	Rand      *rand.Rand
	RunID     string
	Settings  config.Evolution
	// LayerSizes shapes fresh random policies; defaults to brain.LayerSizes(StateSignals, HiddenLayers...).
	LayerSizes []int
	Lookback   int
	// StartGeneration continues the numbering of a resumed run.
	StartGeneration int
	// InitialRate overrides Settings.InitialMutationRate when > 0.
	InitialRate float64
}

type RunSummary struct {
	RunID          string
	Generations    int
	Winners        int
	Reseeds        int
	StopReason     StopReason
	FinalRate      float64
	Best           *brain.Policy
	BestEfficiency float64
	// Parent is the policy the next generation would breed from.
	Parent         *brain.Policy
	Diagnostics    []stats.GenerationDiagnostics
}

type Controller struct {
	cfg     ControllerConfig
	mutator Mutator
}

func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Simulator == nil {
		return nil, fmt.Errorf("simulator is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Rand == nil {
		return nil, fmt.Errorf("controller rng is required")
	}
	if cfg.RunID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if cfg.StartGeneration < 0 {
		return nil, fmt.Errorf("start generation must be >= 0")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.LayerSizes) == 0 {
		cfg.LayerSizes = brain.LayerSizes(cfg.Settings.StateSignals, cfg.Settings.HiddenLayers...)
	}
	mutator, err := MutatorFor(cfg.Settings.MutationMode)
	if err != nil {
		return nil, err
	}
	return &Controller{cfg: cfg, mutator: mutator}, nil
}

// window is one generation's simulation bounds and starting cash.
type window struct {
	start int64
	end   int64
	cash  float64
}

// Run evolves from seed, or from a fresh random policy when seed is nil,
// until the rate controller or the generation limit stops it. Cancellation
// ends the run with StopCanceled and no error.
func (c *Controller) Run(ctx context.Context, seed *brain.Policy) (RunSummary, error) {
	s := c.cfg.Settings
	rng := c.cfg.Rand

	parent := seed
	if parent == nil {
		var err error
		parent, err = brain.CreateRandom(c.cfg.LayerSizes, rng)
		if err != nil {
			return RunSummary{}, fmt.Errorf("create seed policy: %w", err)
		}
	}
	// Reseeds keep the seed's activation.
	activation := parent.Activation()

	rate := RateController{
		Rate:        s.InitialMutationRate,
		FailureStep: s.FailureRateStep,
		SuccessStep: s.SuccessRateStep,
		Max:         s.MaxMutationRate,
	}
	if c.cfg.InitialRate > 0 {
		rate.Rate = c.cfg.InitialRate
	}

	summary := RunSummary{RunID: c.cfg.RunID, Best: parent}
	reset := true
	var next int64
	gen := c.cfg.StartGeneration

	for {
		if s.MaxGenerations > 0 && summary.Generations >= s.MaxGenerations {
			summary.StopReason = StopGenerationLimit
			break
		}
		if ctx.Err() != nil {
			summary.StopReason = StopCanceled
			break
		}

		w := c.drawWindow(next, reset)
		bots, policies, err := BuildPopulation(ctx, parent, PopulationConfig{
			Size:     s.BotsCount,
			Rate:     rate.Rate,
			Bias:     s.MutationBias,
			Mutator:  c.mutator,
			Workers:  s.Workers,
			Lookback: c.cfg.Lookback,
		}, rng)
		if err != nil {
			if ctx.Err() != nil {
				summary.StopReason = StopCanceled
				break
			}
			return summary, fmt.Errorf("generation %d population: %w", gen, err)
		}

		res, err := c.cfg.Simulator.Simulate(ctx, exchange.Request{
			Bots:                 bots,
			StartingCash:         w.cash,
			MaxVisibleSecurities: s.MaxVisibleSecurities,
			MaxStagnantSessions:  s.MaxStagnantSessions,
			StartTime:            w.start,
			EndTime:              w.end,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				summary.StopReason = StopCanceled
				break
			}
			return summary, fmt.Errorf("generation %d simulate: %w", gen, err)
		}
		c.cfg.Metrics.ObserveSimulation(res)

		winner, err := Winner(res.Wealth)
		if err != nil {
			return summary, fmt.Errorf("generation %d: %w", gen, err)
		}
		diag := stats.Diagnose(gen, w.cash, res.Wealth)
		diag.MutationRate = rate.Rate
		diag.Sessions = res.Sessions
		diag.StopReason = string(res.StopReason)

		var stop StopReason
		if diag.Improved {
			if err := c.persist(ctx, gen, rate.Rate, w, res, winner, policies[winner]); err != nil {
				return summary, err
			}
			parent = policies[winner]
			summary.Best = parent
			summary.BestEfficiency = diag.BestEfficiency
			summary.Winners++
			if rate.Succeed() {
				stop = StopRateExhausted
			}
		} else {
			parent, err = brain.CreateRandomWith(c.cfg.LayerSizes, activation, rng)
			if err != nil {
				return summary, fmt.Errorf("generation %d reseed: %w", gen, err)
			}
			summary.Reseeds++
			if rate.Fail() {
				stop = StopRateCeiling
			}
		}

		c.cfg.Metrics.ObserveGeneration(diag.Improved, summary.BestEfficiency, rate.Rate)
		c.cfg.Logger.Info().
			Str("run_id", c.cfg.RunID).
			Int("generation", gen).
			Float64("mutation_rate", diag.MutationRate).
			Int64("start_time", res.StartTime).
			Int64("end_time", res.EndTime).
			Float64("starting_cash", w.cash).
			Int("winner", winner).
			Float64("efficiency", diag.BestEfficiency).
			Float64("mean_wealth", diag.MeanWealth).
			Bool("improved", diag.Improved).
			Str("sim_stop", diag.StopReason).
			Msg("generation finished")

		summary.Diagnostics = append(summary.Diagnostics, diag)
		summary.Generations++
		summary.FinalRate = rate.Rate
		gen++

		if stop != "" {
			summary.StopReason = stop
			break
		}

		// Continue where the data left off; start over once every security is retired.
		reset = res.AllSecuritiesRetired
		next = res.EndTime
	}

	summary.FinalRate = rate.Rate
	summary.Parent = parent
	c.cfg.Logger.Info().
		Str("run_id", c.cfg.RunID).
		Int("generations", summary.Generations).
		Int("winners", summary.Winners).
		Str("stop_reason", string(summary.StopReason)).
		Float64("mutation_rate", summary.FinalRate).
		Msg("evolution stopped")
	return summary, nil
}

// drawWindow consumes the controller rng in a fixed order: start offset (on reset), duration, cash.
func (c *Controller) drawWindow(next int64, reset bool) window {
	s := c.cfg.Settings
	rng := c.cfg.Rand
	start := next
	if reset {
		start = s.ProperStartTime + int64(rng.Float64()*float64(s.StartSpanDays)*float64(secondsPerDay))
	}
	days := int64(s.MinDays) + int64(rng.Float64()*float64(s.ExtraDays))
	cash := s.MinCash + rng.Float64()*s.CashSpan
	return window{start: start, end: start + days*secondsPerDay, cash: cash}
}

// persist stores the winning policy before its generation record, so a
// generation listed by the store always has a loadable policy.
func (c *Controller) persist(ctx context.Context, gen int, rate float64, w window, res exchange.Result, winner int, policy *brain.Policy) error {
	name := storage.PolicyName(c.cfg.RunID, gen)
	record := policy.Record(name)
	record.VersionedRecord = storage.Versioned()
	record.RunID = c.cfg.RunID
	record.Generation = gen
	if err := c.cfg.Store.SavePolicy(ctx, record); err != nil {
		return fmt.Errorf("generation %d save policy: %w", gen, err)
	}

	b := res.Bots[winner]
	holdings := b.Holdings()
	securities := make(map[model.SecurityID]int64, len(holdings))
	for id, amount := range holdings {
		securities[id] = amount
	}
	generation := model.GenerationRecord{
		VersionedRecord: storage.Versioned(),
		RunID:           c.cfg.RunID,
		Generation:      gen,
		ModelName:       name,
		Efficiency:      res.Wealth[winner] / w.cash,
		Wealth:          res.Wealth[winner],
		StartingCash:    w.cash,
		MutationRate:    rate,
		StartTime:       res.StartTime,
		EndTime:         res.EndTime,
		Securities:      securities,
		Transactions:    b.History(),
	}
	if err := c.cfg.Store.AppendGeneration(ctx, generation); err != nil {
		return fmt.Errorf("generation %d append record: %w", gen, err)
	}
	return nil
}
