package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/antibyte/stuck/pkg/logger"

	"golang.org/x/crypto/bcrypt"
)

// CreateUser registers username with a bcrypt hash of password.
func (s *Store) CreateUser(username, password string) error {
	var exists int
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if exists > 0 {
		return ErrUserExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = s.conn.Exec(
		"INSERT INTO users (username, password, created_at) VALUES (?, ?, ?)",
		username, string(hashed), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	logger.StorageInfo("Created user %s", username)
	return nil
}

// VerifyUser checks a password and records the login time.
func (s *Store) VerifyUser(username, password string) error {
	var storedHash string
	err := s.conn.QueryRow("SELECT password FROM users WHERE username = ?", username).Scan(&storedHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			logger.SecurityWarn("Login failed for unknown user '%s'", username)
			return ErrInvalidCredentials
		}
		return fmt.Errorf("database error: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)); err != nil {
		logger.SecurityWarn("Login failed for user '%s': incorrect password", username)
		return ErrInvalidCredentials
	}

	if _, err := s.conn.Exec("UPDATE users SET last_login = ? WHERE username = ?", time.Now().Unix(), username); err != nil {
		logger.StorageError("Failed to record login for %s: %v", username, err)
	}
	return nil
}
