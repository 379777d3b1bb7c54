package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auth-gateway/internal/identity/domain"
	identityhandler "auth-gateway/internal/identity/handler"
	"auth-gateway/internal/identity/repository"
	"auth-gateway/internal/identity/service"
	"auth-gateway/internal/oauth"
	"auth-gateway/internal/policy/engine"
	"auth-gateway/internal/security"
	"auth-gateway/internal/server/middleware"
	"auth-gateway/internal/session"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	repo := repository.NewMemoryRepository(domain.ModelPartitioned)
	tokens := security.NewTestTokenIssuer()
	accounts := service.NewAuthService(repo, security.NewHasher(4), tokens, nil, nil)
	reconciler := service.NewReconciler(repo, engine.StaticMergePolicy(false), false, nil, nil)
	bridge := session.NewBridge(session.NewMemoryStore(), repo, time.Minute)
	auth := identityhandler.NewAuthHandler(accounts, reconciler, bridge, oauth.NewRegistry(),
		identityhandler.Options{FrontendURL: "http://localhost:3000"}, nil)
	return NewRouter(Deps{
		Auth:        auth,
		Gate:        middleware.NewGate(tokens, nil),
		FrontendURL: "http://localhost:3000",
	})
}

func TestRouter_Health(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"OK"`)
}

func TestRouter_ProtectedRouteNeedsToken(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_PreflightFromFrontend(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)

	require.Less(t, rec.Code, 300)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_UnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
