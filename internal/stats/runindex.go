package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const runIndexFile = "run_index.json"

// RunIndexEntry is one line of the run index kept next to the stored runs.
type RunIndexEntry struct {
	RunID             string  `json:"run_id"`
	Seed              int64   `json:"seed"`
	BotsCount         int     `json:"bots_count"`
	Generations       int     `json:"generations"`
	Winners           int     `json:"winners"`
	StopReason        string  `json:"stop_reason"`
	BestEfficiency    float64 `json:"best_efficiency"`
	FinalMutationRate float64 `json:"final_mutation_rate"`
	CreatedAtUTC      string  `json:"created_at_utc"`
}

// AppendRunIndex adds entry, replacing any earlier entry with the same run id.
func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})
	out := make([]RunIndexEntry, len(indexed))
	for i := range indexed {
		out[i] = indexed[i].entry
	}
	return out, nil
}

// WriteDiagnostics stores per-generation diagnostics under <baseDir>/<runID>/diagnostics.json.
func WriteDiagnostics(baseDir, runID string, diagnostics []GenerationDiagnostics) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(runDir, diagnosticsFile)
	if err := writeJSON(path, diagnostics); err != nil {
		return "", err
	}
	return path, nil
}

func ReadDiagnostics(baseDir, runID string) ([]GenerationDiagnostics, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, diagnosticsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var out []GenerationDiagnostics
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
