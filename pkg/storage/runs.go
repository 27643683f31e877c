package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run is one recorded execution of a stored program.
type Run struct {
	ID           string        `json:"id"`
	ProgramID    string        `json:"programId"`
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"duration"`
	Output       string        `json:"output"`
	ErrorKind    string        `json:"errorKind,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	ErrorLine    int           `json:"errorLine,omitempty"`
}

// RecordRun stores run, assigning it an id if it has none.
func (s *Store) RecordRun(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	_, err := s.conn.Exec(
		`INSERT INTO runs (id, program_id, started_at, duration_ms, output, error_kind, error_message, error_line)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ProgramID, run.StartedAt.UnixMilli(), run.Duration.Milliseconds(), run.Output,
		nullString(run.ErrorKind), nullString(run.ErrorMessage), run.ErrorLine)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// ListRuns returns the newest runs of a program first, at most limit.
func (s *Store) ListRuns(programID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.Query(
		`SELECT id, program_id, started_at, duration_ms, output, error_kind, error_message, error_line
		FROM runs WHERE program_id = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		programID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var r Run
		var started, durationMS int64
		var kind, message sql.NullString
		var line sql.NullInt64
		if err := rows.Scan(&r.ID, &r.ProgramID, &started, &durationMS, &r.Output, &kind, &message, &line); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.ErrorKind = kind.String
		r.ErrorMessage = message.String
		r.ErrorLine = int(line.Int64)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
