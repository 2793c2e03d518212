package journal

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenDisabled(t *testing.T) {
	ctx := context.Background()
	j, err := Open(ctx, config.JournalConfig{Enabled: false}, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	if j.Enabled() {
		t.Fatal("disabled journal must not hold a database")
	}
	if err := j.StartRun(ctx, "run-1", "memo.ogg", "de"); err != nil {
		t.Fatalf("disabled start run: %v", err)
	}
	if err := j.Record(ctx, Event{RunID: "run-1", Stage: "cleaning"}); err != nil {
		t.Fatalf("disabled record: %v", err)
	}
}

func TestRecordAndQuery(t *testing.T) {
	ctx := context.Background()
	cfg := config.JournalConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "runs.db")}
	j, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })

	if err := j.StartRun(ctx, "run-123", "memo.ogg", "de"); err != nil {
		t.Fatalf("start run: %v", err)
	}
	for _, stage := range []string{"cleaning", "transcribing", "done"} {
		if err := j.Record(ctx, Event{RunID: "run-123", Stage: stage, Detail: "ok"}); err != nil {
			t.Fatalf("record %s: %v", stage, err)
		}
	}
	if err := j.FinishRun(ctx, "run-123", StatusSucceeded); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	events, err := j.ListRunEvents(ctx, "run-123", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Stage != "cleaning" || events[2].Stage != "done" {
		t.Fatalf("unexpected order: %+v", events)
	}

	run, err := j.GetRun(ctx, "run-123")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != StatusSucceeded || run.AudioPath != "memo.ogg" || run.Language != "de" {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestPruneByDaysAndRuns(t *testing.T) {
	ctx := context.Background()
	cfg := config.JournalConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "runs.db"), RetentionDays: 1, MaxRuns: 1}
	j, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })

	j.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := j.StartRun(ctx, "old-run", "a.ogg", "de"); err != nil {
		t.Fatalf("start run: %v", err)
	}
	if err := j.Record(ctx, Event{RunID: "old-run", Stage: "transcribing"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	j.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := j.StartRun(ctx, "new-run", "b.ogg", "de"); err != nil {
		t.Fatalf("start run: %v", err)
	}
	if err := j.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := j.ListRunEvents(ctx, "old-run", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old run pruned")
	}
	if _, err := j.GetRun(ctx, "new-run"); err != nil {
		t.Fatalf("expected new run kept: %v", err)
	}
}
