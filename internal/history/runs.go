package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Job statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one invocation of the converter.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	From        string
	To          string
	Total       int
	Completed   int
	Failed      int
	Skipped     int
	Interrupted bool
}

// Finished reports whether FinishRun was recorded.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// JobOutcome is the terminal state of one job.
type JobOutcome struct {
	RunID      string
	JobID      int
	RelPath    string
	Codec      string
	Status     string
	ErrorKind  string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// BeginRun inserts run. An empty ID is filled in.
func (s *Store) BeginRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, started_at, from_dir, to_dir, total) VALUES (?, ?, ?, ?, ?)`,
			run.ID, formatTime(run.StartedAt), run.From, run.To, run.Total,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
}

// FinishRun stores the final counters of run.
func (s *Store) FinishRun(ctx context.Context, run *Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE runs SET finished_at = ?, total = ?, completed = ?, failed = ?, skipped = ?, interrupted = ? WHERE id = ?`,
			formatTime(run.FinishedAt), run.Total, run.Completed, run.Failed, run.Skipped, boolToInt(run.Interrupted), run.ID,
		)
		if err != nil {
			return fmt.Errorf("update run: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("update run: %s not found", run.ID)
		}
		return nil
	})
}

// RecordJobs stores outcomes in a single transaction.
func (s *Store) RecordJobs(ctx context.Context, outcomes []JobOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO jobs (run_id, job_id, rel_path, codec, status, error_kind, error, started_at, finished_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare job insert: %w", err)
		}
		defer stmt.Close()
		for _, o := range outcomes {
			if _, err := stmt.ExecContext(ctx,
				o.RunID, o.JobID, o.RelPath, o.Codec, o.Status,
				nullString(o.ErrorKind), nullString(o.Error),
				nullString(formatTime(o.StartedAt)), formatTime(o.FinishedAt),
			); err != nil {
				return fmt.Errorf("insert job %s: %w", o.RelPath, err)
			}
		}
		return nil
	})
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, from_dir, to_dir, total, completed, failed, skipped, interrupted
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run         Run
			started     string
			finished    sql.NullString
			interrupted int
		)
		if err := rows.Scan(&run.ID, &started, &finished, &run.From, &run.To,
			&run.Total, &run.Completed, &run.Failed, &run.Skipped, &interrupted); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = parseTime(started)
		run.FinishedAt = parseTime(finished.String)
		run.Interrupted = interrupted != 0
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Jobs returns the recorded outcomes of runID ordered by job id.
func (s *Store) Jobs(ctx context.Context, runID string) ([]JobOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, rel_path, codec, status, error_kind, error, started_at, finished_at
		 FROM jobs WHERE run_id = ? ORDER BY job_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []JobOutcome
	for rows.Next() {
		var (
			o                  JobOutcome
			kind, msg, started sql.NullString
			finished           string
		)
		if err := rows.Scan(&o.JobID, &o.RelPath, &o.Codec, &o.Status, &kind, &msg, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		o.RunID = runID
		o.ErrorKind = kind.String
		o.Error = msg.String
		o.StartedAt = parseTime(started.String)
		o.FinishedAt = parseTime(finished)
		out = append(out, o)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
