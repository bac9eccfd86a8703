// Package auth implements the Authentication Substrate: Argon2 password
// hashing, a per-username login-attempt lockout counter, and JWT-style
// bearer tokens with a self-evicting revocation set.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/argon2"
)

// UserRecord is a stored account.
type UserRecord struct {
	ID           string
	Username     string
	PasswordHash string
	Roles        []string
	Active       bool
}

// argon2Params mirrors the library's recommended interactive-login
// defaults: a fresh random salt per record, stored alongside the hash.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// hashPassword derives an Argon2id hash and returns it encoded as
// hex(salt) + "$" + hex(hash). The Argon2 parameters are not stored in the
// encoding; verifyPassword uses the package constants above.
func hashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return fmt.Sprintf("%x$%x", salt, hash), nil
}

// verifyPassword re-derives the hash from the stored salt and compares in
// constant time.
func verifyPassword(password, encoded string) bool {
	var saltHex, hashHex string
	if _, err := fmt.Sscanf(encoded, "%x$%x", &saltHex, &hashHex); err != nil {
		return false
	}
	salt := []byte(saltHex)
	want := []byte(hashHex)
	got := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// CredentialStore persists user records. The shipped implementation is
// backed by SQLite; any backend implementing this interface can be
// substituted.
type CredentialStore interface {
	Init(ctx context.Context) error
	LookupUser(ctx context.Context, username string) (*UserRecord, error)
	CreateUser(ctx context.Context, username, passwordHash string, roles []string) (*UserRecord, error)
	Close() error
}

// SQLiteStore implements CredentialStore backed by a SQLite database,
// storing roles as a JSON array column.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// SQLiteStoreOption configures a SQLiteStore.
type SQLiteStoreOption func(*SQLiteStore)

// WithCredentialStoreLogger sets the structured logger.
func WithCredentialStoreLogger(l *slog.Logger) SQLiteStoreOption {
	return func(s *SQLiteStore) { s.logger = l }
}

// NewSQLiteStore wraps an already-open *sql.DB.
func NewSQLiteStore(db *sql.DB, opts ...SQLiteStoreOption) *SQLiteStore {
	s := &SQLiteStore{db: db, logger: discardLogger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			roles TEXT NOT NULL DEFAULT '[]',
			active INTEGER NOT NULL DEFAULT 1
		)
	`)
	if err != nil {
		s.logger.Error("credential store init failed", "duration", time.Since(start), "error", err)
		return err
	}
	s.logger.Debug("credential store initialized", "duration", time.Since(start))
	return nil
}

func (s *SQLiteStore) LookupUser(ctx context.Context, username string) (*UserRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, roles, active FROM users WHERE username = ?`, username)

	var rec UserRecord
	var rolesJSON string
	var active int
	if err := row.Scan(&rec.ID, &rec.Username, &rec.PasswordHash, &rolesJSON, &active); err != nil {
		return nil, err
	}
	rec.Active = active != 0
	if err := json.Unmarshal([]byte(rolesJSON), &rec.Roles); err != nil {
		return nil, fmt.Errorf("auth: decode roles: %w", err)
	}
	return &rec, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string, roles []string) (*UserRecord, error) {
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return nil, err
	}
	id := newUserID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, roles, active) VALUES (?, ?, ?, ?, 1)`,
		id, username, passwordHash, string(rolesJSON))
	if err != nil {
		return nil, err
	}
	return &UserRecord{ID: id, Username: username, PasswordHash: passwordHash, Roles: roles, Active: true}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
