// server runs the authentication gateway HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"auth-gateway/internal/audit"
	auditrepo "auth-gateway/internal/audit/repository"
	"auth-gateway/internal/config"
	"auth-gateway/internal/db"
	healthhandler "auth-gateway/internal/health/handler"
	identityhandler "auth-gateway/internal/identity/handler"
	"auth-gateway/internal/identity/domain"
	"auth-gateway/internal/identity/repository"
	"auth-gateway/internal/identity/service"
	"auth-gateway/internal/logger"
	"auth-gateway/internal/oauth"
	"auth-gateway/internal/oauth/github"
	"auth-gateway/internal/oauth/oidc"
	"auth-gateway/internal/policy/engine"
	"auth-gateway/internal/security"
	"auth-gateway/internal/server"
	"auth-gateway/internal/server/middleware"
	"auth-gateway/internal/session"
	telemetry "auth-gateway/internal/telemetry/otel"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.NewProviders(ctx, telemetry.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	}, log)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = providers.Shutdown(sctx)
	}()

	checks := map[string]healthhandler.Pinger{}

	repo, auditRepo, closeDB, err := openStorage(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeDB()

	store, closeStore, err := openSessionStore(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	tokens, err := newTokenIssuer(cfg)
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}

	policy, err := newMergePolicy(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("merge policy: %w", err)
	}
	checks["policy"] = healthhandler.PingFunc(policy.HealthCheck)

	registry, err := newProviderRegistry(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("oauth provider: %w", err)
	}

	auditLogger := audit.Multi(
		audit.NewLogger(auditRepo, middleware.ClientIP, log),
		telemetry.NewEventEmitter(providers.LoggerProvider),
	)
	accounts := service.NewAuthService(repo, security.NewHasher(cfg.BcryptCost), tokens, auditLogger, log)
	reconciler := service.NewReconciler(repo, policy, cfg.MergeByEmail, auditLogger, log)
	bridge := session.NewBridge(store, repo, cfg.HandshakeTTL())

	auth := identityhandler.NewAuthHandler(accounts, reconciler, bridge, registry, identityhandler.Options{
		FrontendURL: cfg.FrontendURL,
		Cookie:      session.CookieOptions{Secure: cfg.SessionCookieSecure},
	}, log)

	router := server.NewRouter(server.Deps{
		Auth:        auth,
		Gate:        middleware.NewGate(tokens, log),
		Health:      healthhandler.NewHandler(checks, log),
		FrontendURL: cfg.FrontendURL,
		Log:         log,
	})
	srv := server.NewHTTPServer(cfg.HTTPAddr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("identity_model", string(cfg.Model())),
			zap.Strings("providers", registry.Names()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down HTTP server...")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("HTTP server stopped")
	return nil
}

// openStorage selects the repository for the configured model. Without
// DATABASE_URL (development only) identities live in memory and audit rows
// are dropped.
func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger, checks map[string]healthhandler.Pinger) (repository.Repository, auditrepo.Repository, func(), error) {
	model := cfg.Model()
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set; using in-memory identity store", zap.String("identity_model", string(model)))
		return repository.NewMemoryRepository(model), nil, func() {}, nil
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("db: %w", err)
	}
	checks["database"] = healthhandler.PingFunc(conn.PingContext)

	var repo repository.Repository
	switch model {
	case domain.ModelPartitioned:
		repo = repository.NewPartitionedRepository(conn)
	default:
		repo = repository.NewJoinedRepository(conn)
	}
	closeFn := func() {
		if err := conn.Close(); err != nil {
			log.Warn("db: close", zap.Error(err))
		}
	}
	return repo, auditrepo.NewPostgresRepository(conn), closeFn, nil
}

func openSessionStore(ctx context.Context, cfg *config.Config, log *zap.Logger, checks map[string]healthhandler.Pinger) (session.Store, func(), error) {
	if cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR not set; using in-memory handshake store")
		return session.NewMemoryStore(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	store := session.NewRedisStore(client)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	checks["sessions"] = store
	closeFn := func() {
		if err := client.Close(); err != nil {
			log.Warn("redis: close", zap.Error(err))
		}
	}
	return store, closeFn, nil
}

func newTokenIssuer(cfg *config.Config) (*security.TokenIssuer, error) {
	if cfg.JWTPrivateKey != "" {
		priv, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
		if err != nil {
			return nil, err
		}
		pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
		if err != nil {
			return nil, err
		}
		return security.NewKeyPairTokenIssuer(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL())
	}
	return security.NewHMACTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL())
}

func newMergePolicy(ctx context.Context, cfg *config.Config, log *zap.Logger) (*engine.OPAMergePolicy, error) {
	module := ""
	if cfg.MergePolicyFile != "" {
		m, err := engine.LoadPolicyFile(cfg.MergePolicyFile)
		if err != nil {
			return nil, err
		}
		module = m
	}
	return engine.NewOPAMergePolicy(ctx, module, log)
}

// newProviderRegistry registers the configured provider. Missing client
// credentials leave the registry empty outside production so local runs
// can use password accounts only.
func newProviderRegistry(ctx context.Context, cfg *config.Config, log *zap.Logger) (*oauth.Registry, error) {
	var (
		p   oauth.Provider
		err error
	)
	switch cfg.OAuthProvider {
	case "oidc":
		if cfg.OIDCClientID == "" && !cfg.IsProduction() {
			log.Warn("OIDC_CLIENT_ID not set; OAuth login disabled")
			return oauth.NewRegistry(), nil
		}
		p, err = oidc.New(ctx, oidc.Config{
			Issuer:       cfg.OIDCIssuer,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
		})
	default:
		if cfg.GitHubClientID == "" && !cfg.IsProduction() {
			log.Warn("GITHUB_CLIENT_ID not set; OAuth login disabled")
			return oauth.NewRegistry(), nil
		}
		p, err = github.New(github.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubCallbackURL,
		})
	}
	if err != nil {
		return nil, err
	}
	return oauth.NewRegistry(p), nil
}
