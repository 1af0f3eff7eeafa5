//go:build sqlite

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"qensemble/internal/stats"
)

func TestTrainCommandSQLitePersistsRun(t *testing.T) {
	workdir := chdirTemp(t)
	dbPath := filepath.Join(workdir, "qensemble.db")

	args := []string{
		"train",
		"--store", "sqlite",
		"--db-path", dbPath,
		"--verbose=false",
		"--samples", "20",
		"--epochs", "1",
		"--seed", "3",
		"--workers", "2",
	}
	if _, err := captureStdout(func() error {
		return run(context.Background(), args)
	}); err != nil {
		t.Fatalf("train command: %v", err)
	}

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected sqlite db at %s: %v", dbPath, err)
	}
	entries, err := stats.ListRunIndex(recordingsDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one indexed run, got %d", len(entries))
	}
	cfg, ok, err := stats.ReadRunConfig(recordingsDir, entries[0].RunID)
	if err != nil || !ok {
		t.Fatalf("read run config: ok=%t err=%v", ok, err)
	}
	if cfg.Circuit.Workers != 2 {
		t.Fatalf("expected workers recorded in circuit config, got %+v", cfg.Circuit)
	}
}
