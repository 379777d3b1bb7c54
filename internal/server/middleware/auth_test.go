package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auth-gateway/internal/identity/domain"
	"auth-gateway/internal/identity/service"
	"auth-gateway/internal/security"
)

func protectedHandler(t *testing.T, called *bool) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		ref, ok := GetReference(r.Context())
		require.True(t, ok)
		assert.Equal(t, domain.Reference{Kind: domain.KindUser, ID: 5}, ref)
		email, _ := GetEmail(r.Context())
		assert.Equal(t, "a@example.com", email)
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireAuth_ValidToken(t *testing.T) {
	tokens := security.NewTestTokenIssuer()
	token, _, err := tokens.Issue(domain.Reference{Kind: domain.KindUser, ID: 5}, "a@example.com")
	require.NoError(t, err)

	called := false
	h := NewGate(tokens, nil).RequireAuth(protectedHandler(t, &called))
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireAuth_Rejections(t *testing.T) {
	tokens := security.NewTestTokenIssuer()
	past := func() time.Time { return time.Now().Add(-30 * 24 * time.Hour) }
	expired, _, err := security.NewTestTokenIssuer(security.WithClock(past)).Issue(domain.Reference{Kind: domain.KindUser, ID: 5}, "a@example.com")
	require.NoError(t, err)
	valid, _, err := tokens.Issue(domain.Reference{Kind: domain.KindUser, ID: 5}, "a@example.com")
	require.NoError(t, err)
	other, _, err := tokens.Issue(domain.Reference{Kind: domain.KindUser, ID: 6}, "b@example.com")
	require.NoError(t, err)
	tampered := valid[:strings.LastIndex(valid, ".")] + other[strings.LastIndex(other, "."):]

	cases := map[string]string{
		"missing header":    "",
		"wrong scheme":      "Basic " + valid,
		"garbage token":     "Bearer not.a.jwt",
		"expired token":     "Bearer " + expired,
		"swapped signature": "Bearer " + tampered,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			called := false
			h := NewGate(tokens, nil).RequireAuth(protectedHandler(t, &called))
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
		})
	}
}

func TestAuthenticate_WrapsReason(t *testing.T) {
	g := NewGate(security.NewTestTokenIssuer(), nil)
	_, err := g.Authenticate("")
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	_, err = g.Authenticate("abc")
	assert.ErrorIs(t, err, service.ErrUnauthorized)
	assert.ErrorIs(t, err, security.ErrTokenMalformed)
}

func TestExtractBearer(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"BEARER abc":   "abc",
		"Token abc":    "",
		"Bearer":       "",
		"":             "",
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		assert.Equal(t, want, ExtractBearer(req), "header %q", header)
	}
}

func TestWithClientIP(t *testing.T) {
	var got string
	h := WithClientIP(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = ClientIP(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "203.0.113.7", got)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.2:5555"
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "198.51.100.2", got)

	assert.Equal(t, "unknown", ClientIP(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}

func TestCORS_AllowsFrontendOnly(t *testing.T) {
	h := CORS("http://localhost:3000")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
