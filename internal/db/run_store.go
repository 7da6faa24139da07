package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Run statuses as stored in the runs table.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunRecord represents a persisted processing run.
type RunRecord struct {
	ID          int64           `json:"id"`
	RunID       string          `json:"run_id"`
	Source      string          `json:"source"`
	Status      string          `json:"status"`
	Thresholds  json.RawMessage `json:"thresholds"`
	SampleRate  int             `json:"sample_rate"`
	TotalFrames int             `json:"total_frames"`
	FramesDone  int             `json:"frames_done"`
	PointCount  int             `json:"point_count"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// RunStore provides persistence for processing run records.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db.DB}
}

// InsertRun creates a new run record when processing starts.
func (s *RunStore) InsertRun(record RunRecord) error {
	query := `
		INSERT INTO runs (run_id, source, status, thresholds, sample_rate, total_frames, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(query,
			record.RunID,
			record.Source,
			record.Status,
			string(record.Thresholds),
			record.SampleRate,
			record.TotalFrames,
			record.StartedAt.UTC().Format(time.RFC3339),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", record.RunID, err)
	}
	return nil
}

// UpdateRunProgress records frame and point counts mid-run.
func (s *RunStore) UpdateRunProgress(runID string, framesDone, pointCount int) error {
	query := `UPDATE runs SET frames_done = ?, point_count = ? WHERE run_id = ?`
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(query, framesDone, pointCount, runID)
		return err
	})
	if err != nil {
		return fmt.Errorf("updating run %s progress: %w", runID, err)
	}
	return nil
}

// CompleteRun marks a run terminal with its final counts and, for failed
// runs, the error message.
func (s *RunStore) CompleteRun(runID, status string, framesDone, pointCount int, errMsg string, completedAt time.Time) error {
	query := `
		UPDATE runs
		SET status = ?, frames_done = ?, point_count = ?, error = ?, completed_at = ?
		WHERE run_id = ?
	`
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(query,
			status,
			framesDone,
			pointCount,
			nullStr(errMsg),
			completedAt.UTC().Format(time.RFC3339),
			runID,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("completing run %s: %w", runID, err)
	}
	return nil
}

// GetRun fetches one run by its run_id.
func (s *RunStore) GetRun(runID string) (*RunRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, run_id, source, status, thresholds, sample_rate,
		       total_frames, frames_done, point_count, error, started_at, completed_at
		FROM runs WHERE run_id = ?
	`, runID)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching run %s: %w", runID, err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *RunStore) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, run_id, source, status, thresholds, sample_rate,
		       total_frames, frames_done, point_count, error, started_at, completed_at
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*RunRecord, error) {
	var (
		rec         RunRecord
		thresholds  string
		errMsg      sql.NullString
		startedAt   string
		completedAt sql.NullString
	)
	if err := sc.Scan(
		&rec.ID, &rec.RunID, &rec.Source, &rec.Status, &thresholds, &rec.SampleRate,
		&rec.TotalFrames, &rec.FramesDone, &rec.PointCount, &errMsg, &startedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	rec.Thresholds = json.RawMessage(thresholds)
	if errMsg.Valid {
		rec.Error = errMsg.String
	}
	if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
		rec.StartedAt = t
	}
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			rec.CompletedAt = &t
		}
	}
	return &rec, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// retryOnBusy retries a write a few times when sqlite reports the database
// is locked by another writer.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 20 * time.Millisecond)
	}
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
