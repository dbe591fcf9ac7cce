package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/blake2b"

	"github.com/cooperapp/cooperapp/internal"
	"github.com/cooperapp/cooperapp/internal/permission"
)

const (
	// SessionCookieName carries the signed internal session token.
	SessionCookieName = "cooperapp_session"
	// CounterpartCookieName carries the opaque counterpart token.
	CounterpartCookieName = "cooperapp_contraparte"

	// CounterpartAbsoluteTTL bounds a counterpart session regardless of use.
	CounterpartAbsoluteTTL = 8 * time.Hour
	// CounterpartInactivityTTL expires a counterpart session left idle.
	CounterpartInactivityTTL = 2 * time.Hour
)

// Identity is what the identity provider asserts about a staff member
// after a successful code exchange.
type Identity struct {
	Subject    string
	Email      string
	GivenName  string
	FamilyName string
}

// AuthedUser is the internal principal attached to the request context
// once the session cookie has been verified against the database.
type AuthedUser struct {
	ID        string           `json:"id"`
	Email     string           `json:"email"`
	Name      string           `json:"name"`
	Role      *permission.Role `json:"role,omitempty"`
	SessionID string           `json:"-"`
}

// Counterpart is the external principal attached to the request context.
// It carries no user identity, only the project the code unlocked.
type Counterpart struct {
	SessionID string `json:"-"`
	ProjectID int64  `json:"project_id"`
}

// sessionClaims is the payload of the internal session cookie. The sub
// claim is the session row ID, not the user ID, so revoking the row
// invalidates the cookie immediately.
type sessionClaims struct {
	jwt.RegisteredClaims
}

// TokenSigner mints and verifies the signed cookie for internal sessions.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
	return &TokenSigner{secret: []byte(secret), ttl: ttl}
}

func (t *TokenSigner) TTL() time.Duration { return t.ttl }

// Sign issues a token whose subject is the given session ID.
func (t *TokenSigner) Sign(sessionID string, now time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify checks the signature and expiry and returns the session ID.
func (t *TokenSigner) Verify(tokenString string) (string, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return "", internal.ErrNotAuthenticated
	}
	if claims.Subject == "" {
		return "", internal.ErrNotAuthenticated
	}
	return claims.Subject, nil
}

// NewCounterpartToken returns a fresh opaque token and its storage digest.
// Only the digest is persisted; the raw token lives in the cookie.
func NewCounterpartToken() (token string, digest string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate counterpart token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(raw)
	return token, DigestToken(token), nil
}

// DigestToken maps a raw counterpart token to its stored form.
func DigestToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// UserFromContext extracts the internal principal set by the auth gate.
func UserFromContext(ctx context.Context) (*AuthedUser, bool) {
	user, ok := ctx.Value(internal.ContextUserKey).(*AuthedUser)
	return user, ok
}

func ContextWithUser(ctx context.Context, user *AuthedUser) context.Context {
	return context.WithValue(ctx, internal.ContextUserKey, user)
}

// CounterpartFromContext extracts the external principal set by the gate.
func CounterpartFromContext(ctx context.Context) (*Counterpart, bool) {
	cp, ok := ctx.Value(internal.ContextCounterpartKey).(*Counterpart)
	return cp, ok
}

func ContextWithCounterpart(ctx context.Context, cp *Counterpart) context.Context {
	return context.WithValue(ctx, internal.ContextCounterpartKey, cp)
}
