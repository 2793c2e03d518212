package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/config"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Event is one stage transition of a pipeline run.
type Event struct {
	ID        int64
	RunID     string
	Stage     string
	Detail    string
	CreatedAt time.Time
}

// Run summarizes a single pipeline invocation.
type Run struct {
	RunID     string
	AudioPath string
	Language  string
	Status    string
	CreatedAt time.Time
}

// Journal wraps a SQLite-backed run history. A disabled journal accepts and
// discards every write.
type Journal struct {
	db    *sql.DB
	cfg   config.JournalConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the journal according to config.
func Open(ctx context.Context, cfg config.JournalConfig, log *slog.Logger) (*Journal, error) {
	if !cfg.Enabled {
		return &Journal{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	j := &Journal{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := j.Prune(ctx); err != nil {
		log.Warn("journal prune on start failed", slog.String("error", err.Error()))
	}

	return j, nil
}

func (j *Journal) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    audio_path TEXT NOT NULL,
    language TEXT,
    status TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    finished_at INTEGER
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    stage TEXT NOT NULL,
    detail TEXT,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_events_run_created ON events(run_id, created_at);
`
	_, err := j.db.ExecContext(ctx, ddl)
	return err
}

// Enabled reports whether writes are persisted.
func (j *Journal) Enabled() bool {
	return j != nil && j.db != nil
}

// Close releases underlying resources.
func (j *Journal) Close() error {
	if !j.Enabled() {
		return nil
	}
	return j.db.Close()
}

// StartRun records a new running invocation.
func (j *Journal) StartRun(ctx context.Context, runID, audioPath, language string) error {
	if !j.Enabled() {
		return nil
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, audio_path, language, status, created_at) VALUES(?, ?, ?, ?, ?)`,
		runID, audioPath, language, StatusRunning, j.clock().UnixNano())
	return err
}

// Record appends a stage event to a run.
func (j *Journal) Record(ctx context.Context, evt Event) error {
	if !j.Enabled() {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = j.clock()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events(run_id, stage, detail, created_at) VALUES(?, ?, ?, ?)`,
		evt.RunID, evt.Stage, evt.Detail, evt.CreatedAt.UnixNano())
	return err
}

// FinishRun stamps the final status of a run.
func (j *Journal) FinishRun(ctx context.Context, runID, status string) error {
	if !j.Enabled() {
		return nil
	}
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE run_id = ?`,
		status, j.clock().UnixNano(), runID)
	return err
}

// GetRun loads a run by id.
func (j *Journal) GetRun(ctx context.Context, runID string) (Run, error) {
	if !j.Enabled() {
		return Run{}, sql.ErrNoRows
	}
	var r Run
	var created int64
	var language sql.NullString
	err := j.db.QueryRowContext(ctx,
		`SELECT run_id, audio_path, language, status, created_at FROM runs WHERE run_id = ?`, runID).
		Scan(&r.RunID, &r.AudioPath, &language, &r.Status, &created)
	if err != nil {
		return Run{}, err
	}
	r.Language = language.String
	r.CreatedAt = time.Unix(0, created)
	return r, nil
}

// ListRunEvents retrieves up to limit events for a run ordered ascending by time.
func (j *Journal) ListRunEvents(ctx context.Context, runID string, limit int) ([]Event, error) {
	if !j.Enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, run_id, stage, detail, created_at
		 FROM events WHERE run_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var detail sql.NullString
		var created int64
		if err := rows.Scan(&e.ID, &e.RunID, &e.Stage, &detail, &created); err != nil {
			return nil, err
		}
		e.Detail = detail.String
		e.CreatedAt = time.Unix(0, created)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies configured retention (called on open).
func (j *Journal) Prune(ctx context.Context) (err error) {
	if !j.Enabled() {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if j.cfg.RetentionDays > 0 {
		cutoff := j.clock().Add(-time.Duration(j.cfg.RetentionDays) * 24 * time.Hour).UnixNano()
		if _, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if j.cfg.MaxRuns > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id IN (
			SELECT run_id FROM runs ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, j.cfg.MaxRuns)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
