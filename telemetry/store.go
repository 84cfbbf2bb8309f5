package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Schema for the event archive table.
const Schema = `
CREATE TABLE IF NOT EXISTS fetch_events (
    run_id     TEXT NOT NULL,
    keyword    TEXT NOT NULL,
    event      TEXT NOT NULL,
    payload    TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetch_events_run ON fetch_events (run_id, created_at);
`

// Store mirrors telemetry events into SQLite so they can be queried across
// runs. Inserts are best-effort: a failing archive is logged, never
// surfaced.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore wraps an open database. The caller is expected to have applied
// Schema (dbopen.WithSchema does this).
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Record archives one event payload.
func (s *Store) Record(runID, keyword, event string, payload []byte) {
	_, err := s.db.Exec(`
		INSERT INTO fetch_events (run_id, keyword, event, payload, created_at)
		VALUES (?,?,?,?,?)`,
		runID, keyword, event, string(payload), time.Now().Unix())
	if err != nil {
		s.logger.Warn("telemetry: archive insert failed", "event", event, "error", err)
	}
}

// CountEvents returns how many events of one kind a run produced.
func (s *Store) CountEvents(ctx context.Context, runID, event string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fetch_events WHERE run_id = ? AND event = ?`,
		runID, event).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("telemetry: count events: %w", err)
	}
	return n, nil
}

// Cleanup deletes archived events older than days. Zero days disables
// cleanup.
func (s *Store) Cleanup(ctx context.Context, days int) error {
	if days <= 0 {
		return nil
	}
	cutoff := time.Now().Unix() - int64(days)*86400
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM fetch_events WHERE created_at < ?`, cutoff); err != nil {
		return fmt.Errorf("telemetry: cleanup: %w", err)
	}
	return nil
}
