package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/pretty"

	"evotrader/internal/model"
)

const (
	progressFile = "progress.json"
	modelsDir    = "models"
)

// FileStore keeps one directory per run: progress.json lists the winning
// generations and models/<name>.json holds each winning policy.
type FileStore struct {
	baseDir string

	mu          sync.Mutex
	initialized bool
}

func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

func (s *FileStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.baseDir == "" {
		return errors.New("results directory is required")
	}
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return err
	}
	s.initialized = true
	return nil
}

func (s *FileStore) AppendGeneration(_ context.Context, record model.GenerationRecord) error {
	if err := validateGeneration(record); err != nil {
		return err
	}
	if err := checkPathElement(record.RunID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	records, err := s.readProgress(record.RunID)
	if err != nil {
		return err
	}
	records = append(records, record)
	data, err := EncodeGenerations(records)
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(s.baseDir, record.RunID, progressFile), pretty.Pretty(data))
}

func (s *FileStore) ListGenerations(_ context.Context, runID string) ([]model.GenerationRecord, error) {
	if err := checkPathElement(runID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readProgress(runID)
}

func (s *FileStore) SavePolicy(_ context.Context, record model.PolicyRecord) error {
	if err := validatePolicy(record); err != nil {
		return err
	}
	if err := checkPathElement(record.RunID); err != nil {
		return err
	}
	if err := checkPathElement(record.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	data, err := EncodePolicy(record)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.policyPath(record.RunID, record.Name), data)
}

func (s *FileStore) GetPolicy(_ context.Context, runID, name string) (model.PolicyRecord, bool, error) {
	if err := checkPathElement(runID); err != nil {
		return model.PolicyRecord{}, false, err
	}
	if err := checkPathElement(name); err != nil {
		return model.PolicyRecord{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.policyPath(runID, name))
	if err != nil {
		if os.IsNotExist(err) {
			return model.PolicyRecord{}, false, nil
		}
		return model.PolicyRecord{}, false, err
	}
	record, err := DecodePolicy(data)
	if err != nil {
		return model.PolicyRecord{}, false, fmt.Errorf("decode policy %s: %w", name, err)
	}
	return record, true, nil
}

func (s *FileStore) ListRuns(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	runs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			runs = append(runs, entry.Name())
		}
	}
	sort.Strings(runs)
	return runs, nil
}

func (s *FileStore) readProgress(runID string) ([]model.GenerationRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, progressFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []model.GenerationRecord{}, nil
		}
		return nil, err
	}
	records, err := DecodeGenerations(data)
	if err != nil {
		return nil, fmt.Errorf("decode progress for run %s: %w", runID, err)
	}
	return records, nil
}

func (s *FileStore) policyPath(runID, name string) string {
	return filepath.Join(s.baseDir, runID, modelsDir, name+".json")
}

// checkPathElement rejects ids that would escape the run directory.
func checkPathElement(value string) error {
	if value == "" || value == "." || value == ".." || strings.ContainsAny(value, `/\`) {
		return fmt.Errorf("invalid path element %q", value)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
