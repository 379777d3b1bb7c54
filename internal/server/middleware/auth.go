// Package middleware holds the HTTP middleware shared by the gateway's routes,
// including the bearer-token gate for protected endpoints.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"auth-gateway/internal/identity/domain"
	"auth-gateway/internal/identity/service"
	"auth-gateway/internal/logger"
	"auth-gateway/internal/security"
)

const bearerPrefix = "bearer "

// TokenVerifier checks a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*security.Claims, error)
}

// Gate admits requests carrying a valid bearer token. It never reads storage.
type Gate struct {
	tokens TokenVerifier
	log    *zap.Logger
}

func NewGate(tokens TokenVerifier, log *zap.Logger) *Gate {
	return &Gate{tokens: tokens, log: logger.OrNop(log)}
}

// Authenticate returns the reference carried by token. Every failure matches
// service.ErrUnauthorized and wraps the verification reason.
func (g *Gate) Authenticate(token string) (domain.Reference, error) {
	ref, _, err := g.authenticate(token)
	return ref, err
}

func (g *Gate) authenticate(token string) (domain.Reference, *security.Claims, error) {
	if token == "" {
		return domain.Reference{}, nil, fmt.Errorf("%w: missing bearer token", service.ErrUnauthorized)
	}
	claims, err := g.tokens.Verify(token)
	if err != nil {
		return domain.Reference{}, nil, fmt.Errorf("%w: %w", service.ErrUnauthorized, err)
	}
	ref, err := claims.Reference()
	if err != nil {
		return domain.Reference{}, nil, fmt.Errorf("%w: %w", service.ErrUnauthorized, err)
	}
	return ref, claims, nil
}

// RequireAuth rejects requests without a valid token with 401 and a generic
// body; the specific reason is only logged.
func (g *Gate) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref, claims, err := g.authenticate(ExtractBearer(r))
		if err != nil {
			g.log.Debug("request rejected", zap.String("path", r.URL.Path), zap.String("reason", reason(err)))
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeUnauthorized(w)
			return
		}
		ctx := WithIdentity(r.Context(), ref, claims.Email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func ExtractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

func reason(err error) string {
	switch {
	case errors.Is(err, security.ErrTokenExpired):
		return "expired"
	case errors.Is(err, security.ErrTokenBadSignature):
		return "bad_signature"
	case errors.Is(err, security.ErrTokenMalformed):
		return "malformed"
	default:
		return "missing"
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
}
