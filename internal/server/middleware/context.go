package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"auth-gateway/internal/identity/domain"
)

type contextKey struct{ name string }

var (
	referenceKey = contextKey{"reference"}
	emailKey     = contextKey{"email"}
	clientIPKey  = contextKey{"client_ip"}
)

// WithIdentity returns a context carrying the authenticated reference and email.
func WithIdentity(ctx context.Context, ref domain.Reference, email string) context.Context {
	ctx = context.WithValue(ctx, referenceKey, ref)
	ctx = context.WithValue(ctx, emailKey, email)
	return ctx
}

// GetReference returns the authenticated reference and true if set.
func GetReference(ctx context.Context) (domain.Reference, bool) {
	v, ok := ctx.Value(referenceKey).(domain.Reference)
	return v, ok
}

// GetEmail returns the email claim of the authenticated caller.
func GetEmail(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(emailKey).(string)
	return v, ok
}

// ClientIP returns the IP stored by the ClientIP middleware, or "unknown".
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// WithClientIP records the request's client IP for audit logging. It reads
// X-Forwarded-For, then X-Real-IP, then the remote address.
func WithClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), clientIPKey, requestIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIP(r *http.Request) string {
	if s := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); s != "" {
		if i := strings.Index(s, ","); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		return s
	}
	if s := strings.TrimSpace(r.Header.Get("X-Real-IP")); s != "" {
		return s
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
