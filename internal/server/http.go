package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	healthhandler "auth-gateway/internal/health/handler"
	identityhandler "auth-gateway/internal/identity/handler"
	"auth-gateway/internal/logger"
	"auth-gateway/internal/server/middleware"
)

const requestTimeout = 30 * time.Second

// Deps holds the handlers and middleware the router mounts.
type Deps struct {
	// Auth serves /api/auth. Required.
	Auth *identityhandler.AuthHandler
	// Gate protects the authenticated auth routes. Required.
	Gate *middleware.Gate
	// Health serves /api/health. If nil, the route reports OK without checks.
	Health http.Handler
	// FrontendURL is the only origin allowed by CORS.
	FrontendURL string
	Log         *zap.Logger
}

// NewRouter builds the HTTP handler for the gateway.
//
// Route → handler mapping:
//   - /api/health → internal/health/handler
//   - /api/auth/* → internal/identity/handler
func NewRouter(deps Deps) http.Handler {
	log := logger.OrNop(deps.Log)
	health := deps.Health
	if health == nil {
		health = healthhandler.NewHandler(nil, log)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.WithClientIP)
	r.Use(middleware.AccessLog(log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(middleware.CORS(deps.FrontendURL))

	r.Method(http.MethodGet, "/api/health", health)
	r.Route("/api/auth", func(r chi.Router) {
		deps.Auth.Routes(r, deps.Gate)
	})

	return otelhttp.NewHandler(r, "auth-gateway",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// NewHTTPServer wraps handler with the gateway's timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
