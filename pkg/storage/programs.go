package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/antibyte/stuck/pkg/logger"

	"github.com/google/uuid"
)

// Program is a stored source file. Owner is a username or, for guests, a
// session id.
type Program struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SaveProgram stores source under name for owner, replacing the source of an
// existing program with the same name.
func (s *Store) SaveProgram(owner, name, source string) (*Program, error) {
	tx, err := s.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now()
	p := &Program{Owner: owner, Name: name, Source: source, UpdatedAt: now}

	var created int64
	err = tx.QueryRow("SELECT id, created_at FROM programs WHERE owner = ? AND name = ?", owner, name).
		Scan(&p.ID, &created)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		p.ID = uuid.New().String()
		p.CreatedAt = now
		_, err = tx.Exec(
			"INSERT INTO programs (id, owner, name, source, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			p.ID, owner, name, source, now.UnixMilli(), now.UnixMilli())
	case err == nil:
		p.CreatedAt = time.UnixMilli(created)
		_, err = tx.Exec("UPDATE programs SET source = ?, updated_at = ? WHERE id = ?", source, now.UnixMilli(), p.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save program: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	logger.StorageDebug("Saved program %s (%s) for %s", p.ID, name, owner)
	return p, nil
}

// GetProgram returns one of owner's programs.
func (s *Store) GetProgram(owner, id string) (*Program, error) {
	row := s.conn.QueryRow(
		"SELECT id, owner, name, source, created_at, updated_at FROM programs WHERE id = ? AND owner = ?",
		id, owner)
	p, err := scanProgram(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListPrograms returns owner's programs ordered by name, without sources.
func (s *Store) ListPrograms(owner string) ([]Program, error) {
	rows, err := s.conn.Query(
		"SELECT id, owner, name, '', created_at, updated_at FROM programs WHERE owner = ? ORDER BY name",
		owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	defer rows.Close()

	programs := make([]Program, 0)
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		programs = append(programs, *p)
	}
	return programs, rows.Err()
}

// DeleteProgram removes a program and its run history.
func (s *Store) DeleteProgram(owner, id string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM programs WHERE id = ? AND owner = ?", id, owner)
	if err != nil {
		return fmt.Errorf("failed to delete program: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec("DELETE FROM runs WHERE program_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.StorageDebug("Deleted program %s for %s", id, owner)
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProgram(row scanner) (*Program, error) {
	var p Program
	var created, updated int64
	if err := row.Scan(&p.ID, &p.Owner, &p.Name, &p.Source, &created, &updated); err != nil {
		return nil, err
	}
	p.CreatedAt = time.UnixMilli(created)
	p.UpdatedAt = time.UnixMilli(updated)
	return &p, nil
}
