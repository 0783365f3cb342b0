// Package auth issues and verifies bearer tokens that identify the owner of chat sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// AnonymousOwner is used when tokens are disabled and the request names no user.
const AnonymousOwner = "anonymous"

// UserHeader names the owner when tokens are disabled.
const UserHeader = "X-User-ID"

var (
	ErrNoSecret     = errors.New("jwt secret is not configured")
	ErrInvalidToken = errors.New("invalid token")
)

type contextKey struct{}

// Claims are the token claims. The subject is the owner ID.
type Claims struct {
	jwt.RegisteredClaims
}

// Authenticator signs and parses HS256 tokens. A zero secret disables token checks in
// the middleware.
type Authenticator struct {
	secret []byte
	now    func() time.Time
	logger *zap.Logger
}

// New creates an Authenticator. An empty secret is allowed; Issue then fails and the
// middleware trusts the X-User-ID header.
func New(secret string, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{secret: []byte(secret), now: time.Now, logger: logger}
}

// Enabled reports whether a secret is configured.
func (a *Authenticator) Enabled() bool {
	return len(a.secret) > 0
}

// Issue returns a signed token for owner that expires after ttl. A ttl of zero means
// the token never expires.
func (a *Authenticator) Issue(owner string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", ErrNoSecret
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", fmt.Errorf("%w: owner is required", ErrInvalidToken)
	}
	now := a.now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  owner,
		IssuedAt: jwt.NewNumericDate(now),
	}}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its owner.
func (a *Authenticator) Parse(tokenString string) (string, error) {
	if !a.Enabled() {
		return "", ErrNoSecret
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// Middleware resolves the request owner and stores it in the context. With a secret
// configured, a bearer token is required. Without one, the X-User-ID header is used,
// falling back to AnonymousOwner.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			owner := strings.TrimSpace(r.Header.Get(UserHeader))
			if owner == "" {
				owner = AnonymousOwner
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
			return
		}

		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		tokenString = strings.TrimSpace(tokenString)
		if !ok || tokenString == "" {
			unauthorized(w, "missing bearer token")
			return
		}
		owner, err := a.Parse(tokenString)
		if err != nil {
			a.logger.Debug("rejected bearer token", zap.Error(err))
			unauthorized(w, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
	})
}

// WithOwner returns a context carrying owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, contextKey{}, owner)
}

// Owner returns the owner stored by the middleware, or AnonymousOwner.
func Owner(ctx context.Context) string {
	if owner, ok := ctx.Value(contextKey{}).(string); ok && owner != "" {
		return owner
	}
	return AnonymousOwner
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="decora"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = fmt.Fprintf(w, "{\"error\":%q}\n", msg)
}
