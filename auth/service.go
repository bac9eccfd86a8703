package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMaxLoginAttempts overrides the default lockout threshold (5).
func WithMaxLoginAttempts(n uint32) ServiceOption {
	return func(s *Service) { s.counters.maxAttempts = n }
}

// WithLockoutDuration overrides the default lockout window (15 minutes).
func WithLockoutDuration(d time.Duration) ServiceOption {
	return func(s *Service) { s.counters.duration = d }
}

// Service is the Authentication Substrate's single entry point: it wires
// the credential store, the login-attempt lockout counter, and the token
// service into the authenticate / validate / revoke operations.
type Service struct {
	store    CredentialStore
	tokens   *TokenService
	counters *loginAttemptCounters
}

// NewService builds a Service. tokenExpiry is the lifetime of issued
// tokens; signingKey must already satisfy the strength requirements
// enforced by configuration validation.
func NewService(store CredentialStore, signingKey []byte, tokenExpiry time.Duration, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		tokens:   NewTokenService(signingKey, tokenExpiry),
		counters: newLoginAttemptCounters(5, 15*time.Minute),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate verifies username/password and, on success, returns a
// signed bearer token. It never reveals whether a username exists: an
// absent user, an inactive user, and a wrong password all surface as
// ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (string, error) {
	now := time.Now()
	if s.counters.isLocked(username, now) {
		return "", &ErrLocked{}
	}

	rec, err := s.store.LookupUser(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.counters.recordFailure(username, now)
			return "", &ErrInvalidCredentials{}
		}
		return "", err
	}
	if !rec.Active {
		s.counters.recordFailure(username, now)
		return "", &ErrInvalidCredentials{}
	}
	if !verifyPassword(password, rec.PasswordHash) {
		// The lockout window starts when the failure is known, after the
		// Argon2 verification, not when the attempt began.
		s.counters.recordFailure(username, time.Now())
		return "", &ErrInvalidCredentials{}
	}

	s.counters.recordSuccess(username)
	return s.tokens.GenerateToken(rec.ID, rec.Roles)
}

// Register hashes password and creates a new active user record.
func (s *Service) Register(ctx context.Context, username, password string, roles []string) (*UserRecord, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	return s.store.CreateUser(ctx, username, hash, roles)
}

// ValidateToken returns the claims carried by token, or an error if it is
// malformed, expired, or revoked.
func (s *Service) ValidateToken(token string) (*Claims, error) {
	return s.tokens.ValidateToken(token)
}

// RevokeToken adds token to the revocation set for the remainder of its
// natural lifetime.
func (s *Service) RevokeToken(token string) error {
	return s.tokens.RevokeToken(token)
}
