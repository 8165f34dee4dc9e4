package stats

import (
	"path/filepath"
	"testing"
)

func TestRunIndexAppendReplaceAndOrder(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "results")

	entries, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list empty index: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty index, got %d", len(entries))
	}

	for _, entry := range []RunIndexEntry{
		{RunID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z", BestEfficiency: 1.1},
		{RunID: "b", CreatedAtUTC: "2026-01-02T00:00:00Z"},
		{RunID: "c", CreatedAtUTC: "2026-01-02T00:00:00Z"},
		{RunID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z", BestEfficiency: 1.4},
	} {
		if err := AppendRunIndex(baseDir, entry); err != nil {
			t.Fatalf("append %s: %v", entry.RunID, err)
		}
	}

	entries, err = ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	want := []string{"c", "b", "a"}
	if len(entries) != len(want) {
		t.Fatalf("unexpected entry count: got=%d want=%d", len(entries), len(want))
	}
	for i, runID := range want {
		if entries[i].RunID != runID {
			t.Fatalf("entry %d: got=%s want=%s", i, entries[i].RunID, runID)
		}
	}
	if entries[2].BestEfficiency != 1.4 {
		t.Fatalf("expected replaced entry, got %+v", entries[2])
	}

	if err := AppendRunIndex(baseDir, RunIndexEntry{}); err == nil {
		t.Fatal("expected run id error")
	}
}

func TestDiagnosticsRoundTrip(t *testing.T) {
	baseDir := t.TempDir()
	if _, ok, err := ReadDiagnostics(baseDir, "missing"); err != nil || ok {
		t.Fatalf("expected missing diagnostics, ok=%v err=%v", ok, err)
	}
	in := []GenerationDiagnostics{Diagnose(0, 100, []float64{90, 120}), Diagnose(1, 200, []float64{150})}
	if _, err := WriteDiagnostics(baseDir, "run-1", in); err != nil {
		t.Fatalf("write diagnostics: %v", err)
	}
	out, ok, err := ReadDiagnostics(baseDir, "run-1")
	if err != nil || !ok {
		t.Fatalf("read diagnostics: ok=%v err=%v", ok, err)
	}
	if len(out) != 2 || out[0].MaxWealth != 120 || out[1].Generation != 1 {
		t.Fatalf("unexpected diagnostics: %+v", out)
	}
	if _, err := WriteDiagnostics(baseDir, "", in); err == nil {
		t.Fatal("expected run id error")
	}
}
