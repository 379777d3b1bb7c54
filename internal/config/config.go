// Package config loads and validates gateway config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"auth-gateway/internal/identity/domain"
)

// MinProductionSecretBytes is the shortest JWT_SECRET accepted when APP_ENV=production.
const MinProductionSecretBytes = 32

// Config holds gateway configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :5000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// Env is the application environment ("development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// DatabaseURL is the Postgres DSN. Empty selects the in-memory repository outside production.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// IdentityModel is the storage shape: "joined" or "partitioned". Fixed per deployment.
	IdentityModel string `mapstructure:"IDENTITY_MODEL"`
	// MergeByEmail enables linking an OAuth login to a local account with the same verified email (joined model only).
	MergeByEmail bool `mapstructure:"MERGE_BY_EMAIL"`
	// MergePolicyFile optionally replaces the built-in Rego merge policy.
	MergePolicyFile string `mapstructure:"MERGE_POLICY_FILE"`

	// JWTSecret is the HS256 signing secret. Ignored when a key pair is configured.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTTTL is the token lifetime (e.g. "168h").
	JWTTTL string `mapstructure:"JWT_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 10.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// OAuthProvider selects the single external provider: "github" or "oidc".
	OAuthProvider      string `mapstructure:"OAUTH_PROVIDER"`
	GitHubClientID     string `mapstructure:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `mapstructure:"GITHUB_CLIENT_SECRET"`
	GitHubCallbackURL  string `mapstructure:"GITHUB_CALLBACK_URL"`
	OIDCIssuer         string `mapstructure:"OIDC_ISSUER"`
	OIDCClientID       string `mapstructure:"OIDC_CLIENT_ID"`
	OIDCClientSecret   string `mapstructure:"OIDC_CLIENT_SECRET"`
	OIDCRedirectURL    string `mapstructure:"OIDC_REDIRECT_URL"`
	// FrontendURL is where OAuth callbacks redirect to and the allowed CORS origin.
	FrontendURL string `mapstructure:"FRONTEND_URL"`

	// RedisAddr is the handshake session store. Empty selects the in-memory store outside production.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	// SessionTTL bounds the OAuth handshake (e.g. "10m").
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// SessionCookieSecure sets the Secure attribute on the handshake cookie.
	SessionCookieSecure bool `mapstructure:"SESSION_COOKIE_SECURE"`

	// OTLPEndpoint enables OpenTelemetry export when set (e.g. localhost:4317).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	// Every key needs a default so Unmarshal sees env-only values.
	v.SetDefault("HTTP_ADDR", ":5000")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("IDENTITY_MODEL", string(domain.ModelJoined))
	v.SetDefault("MERGE_BY_EMAIL", true)
	v.SetDefault("MERGE_POLICY_FILE", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "auth-gateway")
	v.SetDefault("JWT_AUDIENCE", "auth-gateway-api")
	v.SetDefault("JWT_TTL", "168h")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("OAUTH_PROVIDER", "github")
	v.SetDefault("GITHUB_CLIENT_ID", "")
	v.SetDefault("GITHUB_CLIENT_SECRET", "")
	v.SetDefault("GITHUB_CALLBACK_URL", "http://localhost:5000/api/auth/github/callback")
	v.SetDefault("OIDC_ISSUER", "")
	v.SetDefault("OIDC_CLIENT_ID", "")
	v.SetDefault("OIDC_CLIENT_SECRET", "")
	v.SetDefault("OIDC_REDIRECT_URL", "http://localhost:5000/api/auth/oidc/callback")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SESSION_TTL", "10m")
	v.SetDefault("SESSION_COOKIE_SECURE", true)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "auth-gateway")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if _, err := domain.ParseModel(c.IdentityModel); err != nil {
		return errors.New("config: IDENTITY_MODEL must be joined or partitioned")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 10
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if (c.JWTPrivateKey == "") != (c.JWTPublicKey == "") {
		return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set together")
	}
	if c.JWTPrivateKey == "" {
		if c.JWTSecret == "" {
			return errors.New("config: JWT_SECRET or JWT_PRIVATE_KEY/JWT_PUBLIC_KEY must be set")
		}
		if c.IsProduction() && len(c.JWTSecret) < MinProductionSecretBytes {
			return fmt.Errorf("config: JWT_SECRET must be at least %d bytes when APP_ENV=production", MinProductionSecretBytes)
		}
	}
	if d, err := time.ParseDuration(c.JWTTTL); err != nil || d <= 0 {
		return errors.New("config: JWT_TTL must be a positive duration")
	}
	if d, err := time.ParseDuration(c.SessionTTL); err != nil || d <= 0 {
		return errors.New("config: SESSION_TTL must be a positive duration")
	}
	switch strings.ToLower(c.OAuthProvider) {
	case "github", "oidc":
		c.OAuthProvider = strings.ToLower(c.OAuthProvider)
	default:
		return errors.New("config: OAUTH_PROVIDER must be github or oidc")
	}
	if c.FrontendURL == "" {
		return errors.New("config: FRONTEND_URL must be set")
	}
	c.FrontendURL = strings.TrimRight(c.FrontendURL, "/")
	if c.IsProduction() {
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when APP_ENV=production")
		}
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR must be set when APP_ENV=production")
		}
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Model returns the configured storage shape.
func (c *Config) Model() domain.Model {
	m, err := domain.ParseModel(c.IdentityModel)
	if err != nil {
		return domain.ModelJoined
	}
	return m
}

// TokenTTL parses JWTTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) TokenTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// HandshakeTTL parses SessionTTL as a time.Duration. Returns 10m if unset or invalid.
func (c *Config) HandshakeTTL() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}
