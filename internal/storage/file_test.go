package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStore(t *testing.T) {
	exerciseStore(t, NewFileStore(t.TempDir()))
}

func TestFileStoreWritesPrettyProgress(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileStore(dir)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := store.AppendGeneration(ctx, sampleGeneration("run-x", 0)); err != nil {
		t.Fatalf("append: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "run-x", progressFile))
	if err != nil {
		t.Fatalf("read progress: %v", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "[\n") || !strings.Contains(text, `  {`) || !strings.Contains(text, `"model_name": "run-x-g0000"`) {
		t.Fatalf("progress is not pretty-printed:\n%s", text)
	}
	if _, err := os.Stat(filepath.Join(dir, "run-x", progressFile+".tmp")); !os.IsNotExist(err) {
		t.Fatalf("temporary file left behind: %v", err)
	}
}

func TestFileStoreRejectsPathEscapes(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	record := sampleGeneration("../escape", 0)
	if err := store.AppendGeneration(ctx, record); err == nil {
		t.Fatal("expected path escape rejection")
	}
	if _, _, err := store.GetPolicy(ctx, "run", "a/b"); err == nil {
		t.Fatal("expected invalid policy name rejection")
	}
}

func TestFileStoreRequiresInit(t *testing.T) {
	store := NewFileStore(t.TempDir())
	if err := store.SavePolicy(context.Background(), samplePolicy("run", 0)); err == nil {
		t.Fatal("expected error before init")
	}
}
