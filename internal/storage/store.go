package storage

import (
	"context"
	"fmt"

	"evotrader/internal/model"
)

// Store persists winning generations and their policies, keyed by run id.
type Store interface {
	Init(ctx context.Context) error
	AppendGeneration(ctx context.Context, record model.GenerationRecord) error
	ListGenerations(ctx context.Context, runID string) ([]model.GenerationRecord, error)
	SavePolicy(ctx context.Context, record model.PolicyRecord) error
	GetPolicy(ctx context.Context, runID, name string) (model.PolicyRecord, bool, error)
	ListRuns(ctx context.Context) ([]string, error)
}

// PolicyName is the generation-tagged name a winning policy is stored under.
func PolicyName(runID string, generation int) string {
	return fmt.Sprintf("%s-g%04d", runID, generation)
}

// LatestPolicy returns the policy of the most recent stored generation of a run.
func LatestPolicy(ctx context.Context, store Store, runID string) (model.PolicyRecord, model.GenerationRecord, bool, error) {
	records, err := store.ListGenerations(ctx, runID)
	if err != nil {
		return model.PolicyRecord{}, model.GenerationRecord{}, false, err
	}
	if len(records) == 0 {
		return model.PolicyRecord{}, model.GenerationRecord{}, false, nil
	}
	last := records[len(records)-1]
	policy, ok, err := store.GetPolicy(ctx, runID, last.ModelName)
	if err != nil {
		return model.PolicyRecord{}, model.GenerationRecord{}, false, err
	}
	if !ok {
		return model.PolicyRecord{}, model.GenerationRecord{}, false, fmt.Errorf("run %s generation %d: policy %s missing", runID, last.Generation, last.ModelName)
	}
	return policy, last, true, nil
}

func validateGeneration(record model.GenerationRecord) error {
	if record.RunID == "" {
		return fmt.Errorf("generation record: run id is required")
	}
	if record.ModelName == "" {
		return fmt.Errorf("generation record: model name is required")
	}
	return nil
}

func validatePolicy(record model.PolicyRecord) error {
	if record.RunID == "" {
		return fmt.Errorf("policy record: run id is required")
	}
	if record.Name == "" {
		return fmt.Errorf("policy record: name is required")
	}
	return nil
}
