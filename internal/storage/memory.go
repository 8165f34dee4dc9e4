package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"evotrader/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	generations map[string][]model.GenerationRecord
	policies    map[string]map[string]model.PolicyRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.generations = make(map[string][]model.GenerationRecord)
	s.policies = make(map[string]map[string]model.PolicyRecord)
	return nil
}

func (s *MemoryStore) AppendGeneration(_ context.Context, record model.GenerationRecord) error {
	if err := validateGeneration(record); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.generations[record.RunID] = append(s.generations[record.RunID], record)
	return nil
}

func (s *MemoryStore) ListGenerations(_ context.Context, runID string) ([]model.GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.GenerationRecord(nil), s.generations[runID]...), nil
}

func (s *MemoryStore) SavePolicy(_ context.Context, record model.PolicyRecord) error {
	if err := validatePolicy(record); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	byName, ok := s.policies[record.RunID]
	if !ok {
		byName = make(map[string]model.PolicyRecord)
		s.policies[record.RunID] = byName
	}
	byName[record.Name] = record
	return nil
}

func (s *MemoryStore) GetPolicy(_ context.Context, runID, name string) (model.PolicyRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.policies[runID][name]
	return record, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.generations)+len(s.policies))
	for runID := range s.generations {
		seen[runID] = struct{}{}
	}
	for runID := range s.policies {
		seen[runID] = struct{}{}
	}
	runs := make([]string, 0, len(seen))
	for runID := range seen {
		runs = append(runs, runID)
	}
	sort.Strings(runs)
	return runs, nil
}
