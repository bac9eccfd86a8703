package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestService(t *testing.T) (*Service, *SQLiteStore) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store := NewSQLiteStore(db)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	key := []byte("test-signing-key-at-least-32-bytes!!")
	svc := NewService(store, key, time.Hour, WithMaxLoginAttempts(3), WithLockoutDuration(50*time.Millisecond))
	return svc, store
}

func TestService_AuthenticateSuccess(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "alice", "correct-horse", []string{"operator"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	token, err := svc.Authenticate(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "operator" {
		t.Fatalf("unexpected roles: %v", claims.Roles)
	}
}

func TestService_AuthenticateUnknownUserIndistinguishableFromWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "bob", "hunter2", nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, errUnknown := svc.Authenticate(ctx, "nobody", "whatever")
	_, errWrongPw := svc.Authenticate(ctx, "bob", "wrong")

	var invalid1, invalid2 *ErrInvalidCredentials
	if !errors.As(errUnknown, &invalid1) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", errUnknown)
	}
	if !errors.As(errWrongPw, &invalid2) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", errWrongPw)
	}
}

// TestService_LockoutAfterConsecutiveFailures reproduces the three-bad-
// passwords-then-locked scenario: after maxAttempts consecutive failures,
// even the correct password is rejected with ErrLocked until the lockout
// window elapses.
func TestService_LockoutAfterConsecutiveFailures(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "carol", "s3cret", nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := 0; i < 3; i++ {
		_, err := svc.Authenticate(ctx, "carol", "wrong")
		var invalid *ErrInvalidCredentials
		if !errors.As(err, &invalid) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	_, err := svc.Authenticate(ctx, "carol", "s3cret")
	var locked *ErrLocked
	if !errors.As(err, &locked) {
		t.Fatalf("expected ErrLocked after threshold, got %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	token, err := svc.Authenticate(ctx, "carol", "s3cret")
	if err != nil {
		t.Fatalf("expected success after lockout window elapses, got %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}
}

func TestService_RevokeTokenRejectsFurtherValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "dave", "pw", nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	token, err := svc.Authenticate(ctx, "dave", "pw")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	if err := svc.RevokeToken(token); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	_, err = svc.ValidateToken(token)
	var revoked *ErrRevoked
	if !errors.As(err, &revoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}
}

func TestRevocationSet_SelfEvictsAfterExpiry(t *testing.T) {
	r := newRevocationSet()
	r.add("tok", time.Now().Add(20*time.Millisecond))
	if _, ok := r.lookup("tok"); !ok {
		t.Fatalf("expected token present immediately after add")
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok := r.lookup("tok"); ok {
		t.Fatalf("expected token to have self-evicted after expiry")
	}
}

func TestHashAndVerifyPassword_RoundTrip(t *testing.T) {
	encoded, err := hashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !verifyPassword("correct horse battery staple", encoded) {
		t.Fatalf("expected verification to succeed")
	}
	if verifyPassword("wrong", encoded) {
		t.Fatalf("expected verification to fail for wrong password")
	}
}

func TestLoginAttemptCounters_SuccessResetsCounter(t *testing.T) {
	c := newLoginAttemptCounters(3, time.Minute)
	now := time.Now()
	c.recordFailure("erin", now)
	c.recordFailure("erin", now)
	c.recordSuccess("erin")
	c.recordFailure("erin", now)
	if c.isLocked("erin", now) {
		t.Fatalf("expected not locked: success should have reset the counter")
	}
}
