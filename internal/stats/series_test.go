package stats

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEfficiencySeriesRoundTrip(t *testing.T) {
	baseDir := t.TempDir()
	diags := []GenerationDiagnostics{
		{Generation: 0, BestEfficiency: 1.25, MutationRate: 0.15, Improved: true},
		{Generation: 1, BestEfficiency: 0.9, MutationRate: 0.145},
	}
	path, err := WriteEfficiencySeries(baseDir, "run-a", diags)
	if err != nil {
		t.Fatalf("write series: %v", err)
	}
	if filepath.Base(path) != seriesFile {
		t.Fatalf("unexpected path: %s", path)
	}

	series, ok, err := ReadEfficiencySeries(baseDir, "run-a")
	if err != nil || !ok {
		t.Fatalf("read series: ok=%v err=%v", ok, err)
	}
	if len(series) != 2 || series[0] != 1.25 || series[1] != 0.9 {
		t.Fatalf("unexpected series: %v", series)
	}

	if _, ok, err := ReadEfficiencySeries(baseDir, "missing"); err != nil || ok {
		t.Fatalf("missing series: ok=%v err=%v", ok, err)
	}
	if _, err := WriteEfficiencySeries(baseDir, "", diags); err == nil {
		t.Fatal("expected error without run id")
	}
}

func TestExportRunCopiesArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := t.TempDir()
	diags := []GenerationDiagnostics{{Generation: 0, BestEfficiency: 1.1, Improved: true}}
	if _, err := WriteDiagnostics(baseDir, "run-x", diags); err != nil {
		t.Fatalf("write diagnostics: %v", err)
	}
	models := filepath.Join(baseDir, "run-x", "models")
	if err := os.MkdirAll(models, 0o755); err != nil {
		t.Fatalf("mkdir models: %v", err)
	}
	if err := os.WriteFile(filepath.Join(models, "run-x-g0000.json"), []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	dst, err := ExportRun(baseDir, "run-x", outDir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	got, ok, err := ReadDiagnostics(outDir, "run-x")
	if err != nil || !ok || len(got) != 1 || got[0].BestEfficiency != 1.1 {
		t.Fatalf("exported diagnostics: %+v ok=%v err=%v", got, ok, err)
	}
	if _, err := os.Stat(filepath.Join(dst, "models", "run-x-g0000.json")); err != nil {
		t.Fatalf("expected exported model: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, seriesFile)); !os.IsNotExist(err) {
		t.Fatalf("series was never written, got err=%v", err)
	}

	if _, err := ExportRun(baseDir, "ghost", outDir); err == nil {
		t.Fatal("expected error for unknown run")
	}
}
