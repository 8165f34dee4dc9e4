package evo

import (
	"fmt"
	"math/rand"

	"evotrader/internal/brain"
	"evotrader/internal/config"
)

// Mutator derives a child policy from a parent. Implementations never modify the parent.
type Mutator interface {
	Name() string
	Mutate(parent *brain.Policy, rate, bias float64, rng *rand.Rand) *brain.Policy
}

// ReplaceMutator swaps selected weights for fresh values in [-bias, bias].
type ReplaceMutator struct{}

func (ReplaceMutator) Name() string {
	return config.MutationModeReplace
}

func (ReplaceMutator) Mutate(parent *brain.Policy, rate, bias float64, rng *rand.Rand) *brain.Policy {
	return parent.Mutate(rate, bias, rng)
}

// PerturbMutator shifts selected weights by up to bias.
type PerturbMutator struct{}

func (PerturbMutator) Name() string {
	return config.MutationModePerturb
}

func (PerturbMutator) Mutate(parent *brain.Policy, rate, bias float64, rng *rand.Rand) *brain.Policy {
	return parent.MutatePerturb(rate, bias, rng)
}

// MutatorFor resolves a configured mutation mode; "" means replace.
func MutatorFor(mode string) (Mutator, error) {
	switch mode {
	case "", config.MutationModeReplace:
		return ReplaceMutator{}, nil
	case config.MutationModePerturb:
		return PerturbMutator{}, nil
	default:
		return nil, fmt.Errorf("unsupported mutation mode: %s", mode)
	}
}
