package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"audit-analyzer/internal/db"
)

// CallRecord describes one completion call. The reply text is never stored.
type CallRecord struct {
	SessionID string
	Stage     string
	Model     string
	UserBytes int
	Latency   time.Duration
	OK        bool
	Error     string
	At        time.Time
}

// Journal appends completion call metadata to PostgreSQL.
type Journal struct {
	db     *db.DB
	logger *slog.Logger
}

func NewJournal(database *db.DB, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{db: database, logger: logger}
}

// RecordCall is Record for callers that cannot act on the error; failures
// are logged and dropped.
func (j *Journal) RecordCall(ctx context.Context, rec CallRecord) {
	if err := j.Record(ctx, rec); err != nil {
		j.logger.Warn("journal write failed", "session", rec.SessionID, "stage", rec.Stage, "error", err)
	}
}

func (j *Journal) Record(ctx context.Context, rec CallRecord) error {
	if rec.SessionID == "" || rec.Stage == "" {
		return fmt.Errorf("session_id and stage are required")
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	query := `
		INSERT INTO completion_calls (session_id, stage, model, user_bytes, latency_ms, ok, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := j.db.ExecContext(ctx, query,
		rec.SessionID,
		rec.Stage,
		rec.Model,
		rec.UserBytes,
		rec.Latency.Milliseconds(),
		rec.OK,
		rec.Error,
		rec.At,
	)
	if err != nil {
		return fmt.Errorf("failed to record completion call: %w", err)
	}
	return nil
}

// CallStats summarises journal rows for one session.
type CallStats struct {
	Calls    int
	Failures int
	LastAt   time.Time
}

func (j *Journal) SessionStats(ctx context.Context, sessionID string) (CallStats, error) {
	if sessionID == "" {
		return CallStats{}, fmt.Errorf("session_id is required")
	}
	var stats CallStats
	var last *time.Time
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT ok), MAX(created_at)
		FROM completion_calls
		WHERE session_id = $1
	`
	if err := j.db.QueryRowContext(ctx, query, sessionID).Scan(&stats.Calls, &stats.Failures, &last); err != nil {
		return CallStats{}, fmt.Errorf("failed to read completion stats: %w", err)
	}
	if last != nil {
		stats.LastAt = *last
	}
	return stats, nil
}
