package evo

import (
	"context"
	"math/rand"
	"sync"

	"evotrader/internal/bot"
	"evotrader/internal/brain"
)

// PopulationConfig describes how one generation's bots are derived from a parent.
type PopulationConfig struct {
	Size     int
	Rate     float64
	Bias     float64
	Mutator  Mutator
	Workers  int
	Lookback int
}

// BuildPopulation mutates parent Size times. Per-bot rngs are seeded from rng
// in bot order before any work is fanned out, so the result does not depend
// on the worker count.
func BuildPopulation(ctx context.Context, parent *brain.Policy, cfg PopulationConfig, rng *rand.Rand) ([]*bot.Bot, []*brain.Policy, error) {
	type job struct {
		idx  int
		seed int64
	}
	type result struct {
		idx    int
		policy *brain.Policy
		err    error
	}

	seeds := make([]int64, cfg.Size)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}

	jobs := make(chan job)
	results := make(chan result, cfg.Size)

	workerCount := cfg.Workers
	if workerCount <= 0 {
		workerCount = 1
	}
	if workerCount > cfg.Size {
		workerCount = cfg.Size
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				child := cfg.Mutator.Mutate(parent, cfg.Rate, cfg.Bias, rand.New(rand.NewSource(j.seed)))
				results <- result{idx: j.idx, policy: child}
			}
		}()
	}

	for i := range seeds {
		jobs <- job{idx: i, seed: seeds[i]}
	}
	close(jobs)

	wg.Wait()
	close(results)

	policies := make([]*brain.Policy, cfg.Size)
	for res := range results {
		if res.err != nil {
			return nil, nil, res.err
		}
		policies[res.idx] = res.policy
	}

	bots := make([]*bot.Bot, cfg.Size)
	for i, policy := range policies {
		bots[i] = bot.New(policy)
		bots[i].Lookback = cfg.Lookback
	}
	return bots, policies, nil
}
