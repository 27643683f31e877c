// Package storage persists users, stored programs and their run history in
// SQLite.
package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/antibyte/stuck/pkg/configuration"
	"github.com/antibyte/stuck/pkg/logger"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUserExists         = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Store wraps the SQLite connection.
type Store struct {
	conn     *sql.DB
	hashCost int
}

// InitDB opens the SQLite database at dbPath and checks that it is reachable.
func InitDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// CreateTables ensures all required tables exist.
func CreateTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			last_login INTEGER,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS programs (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			name TEXT NOT NULL,
			source TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE (owner, name)
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			program_id TEXT NOT NULL REFERENCES programs(id) ON DELETE CASCADE,
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			output TEXT NOT NULL,
			error_kind TEXT,
			error_message TEXT,
			error_line INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_program ON runs(program_id, started_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Open opens dbPath and creates the schema.
func Open(dbPath string) (*Store, error) {
	db, err := InitDB(dbPath)
	if err != nil {
		return nil, err
	}
	if err := CreateTables(db); err != nil {
		db.Close()
		return nil, err
	}

	cost := configuration.GetInt("Storage", "password_hash_cost", bcrypt.DefaultCost)
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	logger.StorageInfo("Database ready at %s", dbPath)
	return &Store{conn: db, hashCost: cost}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}
