package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT claim set issued and validated by TokenService:
// registered claims plus the subject's roles.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// TokenService issues and validates bearer tokens and maintains a
// self-evicting revocation set.
type TokenService struct {
	signingKey []byte
	expiry     time.Duration
	issuer     string

	revocation *revocationSet
}

// NewTokenService builds a TokenService. signingKey must be at least 32
// bytes (enforced by Settings validation, not here).
func NewTokenService(signingKey []byte, expiry time.Duration) *TokenService {
	return &TokenService{
		signingKey: signingKey,
		expiry:     expiry,
		issuer:     "aep",
		revocation: newRevocationSet(),
	}
}

// GenerateToken issues a signed token for subject with the given roles.
func (t *TokenService) GenerateToken(subject string, roles []string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiry)),
			Issuer:    t.issuer,
		},
		Roles: roles,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.signingKey)
}

// ValidateToken accepts tokenString iff its signature verifies, it has not
// expired, and it is not in the revocation set.
func (t *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	if exp, revoked := t.revocation.lookup(tokenString); revoked && time.Now().Before(exp) {
		return nil, &ErrRevoked{}
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return t.signingKey, nil
	})
	if err != nil {
		return nil, &ErrTokenInvalid{Reason: err.Error()}
	}
	if !parsed.Valid {
		return nil, &ErrTokenInvalid{Reason: "signature or claims invalid"}
	}
	return claims, nil
}

// RevokeToken decodes tokenString without enforcing expiry and records
// token → claim.exp, so the revocation entry self-evicts once the token's
// natural expiry passes.
func (t *TokenService) RevokeToken(tokenString string) error {
	claims := &Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(tokenString, claims)
	if err != nil {
		return fmt.Errorf("auth: decode token for revocation: %w", err)
	}
	if claims.ExpiresAt == nil {
		return fmt.Errorf("auth: token has no expiry claim")
	}
	t.revocation.add(tokenString, claims.ExpiresAt.Time)
	return nil
}

// revocationSet maps a revoked token to its own expiry; entries evict
// themselves via a timer once that expiry passes, so the set never grows
// beyond the tokens still worth rejecting.
type revocationSet struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func newRevocationSet() *revocationSet {
	return &revocationSet{entries: make(map[string]time.Time)}
}

func (r *revocationSet) add(token string, expiry time.Time) {
	r.mu.Lock()
	r.entries[token] = expiry
	r.mu.Unlock()

	ttl := time.Until(expiry)
	if ttl <= 0 {
		r.evict(token)
		return
	}
	time.AfterFunc(ttl, func() { r.evict(token) })
}

func (r *revocationSet) evict(token string) {
	r.mu.Lock()
	delete(r.entries, token)
	r.mu.Unlock()
}

func (r *revocationSet) lookup(token string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.entries[token]
	return exp, ok
}
