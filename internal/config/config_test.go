package config

import (
	"strings"
	"testing"
	"time"

	"auth-gateway/internal/identity/domain"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "")
	t.Setenv("JWT_SECRET", "dev-secret")
	t.Setenv("JWT_PRIVATE_KEY", "")
	t.Setenv("JWT_PUBLIC_KEY", "")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":5000" {
		t.Errorf("HTTPAddr = %q, want :5000", cfg.HTTPAddr)
	}
	if cfg.Model() != domain.ModelJoined {
		t.Errorf("Model = %q, want joined", cfg.Model())
	}
	if !cfg.MergeByEmail {
		t.Error("MergeByEmail should default to true")
	}
	if cfg.BcryptCost != 10 {
		t.Errorf("BcryptCost = %d, want 10", cfg.BcryptCost)
	}
	if cfg.TokenTTL() != 7*24*time.Hour {
		t.Errorf("TokenTTL = %v, want 168h", cfg.TokenTTL())
	}
	if cfg.HandshakeTTL() != 10*time.Minute {
		t.Errorf("HandshakeTTL = %v, want 10m", cfg.HandshakeTTL())
	}
	if cfg.FrontendURL != "http://localhost:3000" {
		t.Errorf("FrontendURL = %q", cfg.FrontendURL)
	}
	if cfg.OAuthProvider != "github" {
		t.Errorf("OAuthProvider = %q, want github", cfg.OAuthProvider)
	}
	if !cfg.SessionCookieSecure {
		t.Error("SessionCookieSecure should default to true")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("IDENTITY_MODEL", "partitioned")
	t.Setenv("MERGE_BY_EMAIL", "false")
	t.Setenv("BCRYPT_COST", "12")
	t.Setenv("JWT_TTL", "1h")
	t.Setenv("OAUTH_PROVIDER", "OIDC")
	t.Setenv("FRONTEND_URL", "https://app.example.com/")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.Model() != domain.ModelPartitioned {
		t.Errorf("Model = %q", cfg.Model())
	}
	if cfg.MergeByEmail {
		t.Error("MergeByEmail should be false")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d", cfg.BcryptCost)
	}
	if cfg.TokenTTL() != time.Hour {
		t.Errorf("TokenTTL = %v", cfg.TokenTTL())
	}
	if cfg.OAuthProvider != "oidc" {
		t.Errorf("OAuthProvider = %q", cfg.OAuthProvider)
	}
	if cfg.FrontendURL != "https://app.example.com" {
		t.Errorf("FrontendURL should be trimmed, got %q", cfg.FrontendURL)
	}
	if cfg.RedisDB != 2 {
		t.Errorf("RedisDB = %d", cfg.RedisDB)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantMsg string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}, "JWT_SECRET"},
		{"half key pair", map[string]string{"JWT_PRIVATE_KEY": "x"}, "set together"},
		{"bad model", map[string]string{"IDENTITY_MODEL": "sharded"}, "IDENTITY_MODEL"},
		{"bad cost", map[string]string{"BCRYPT_COST": "40"}, "BCRYPT_COST"},
		{"bad ttl", map[string]string{"JWT_TTL": "soon"}, "JWT_TTL"},
		{"bad session ttl", map[string]string{"SESSION_TTL": "-1m"}, "SESSION_TTL"},
		{"bad provider", map[string]string{"OAUTH_PROVIDER": "myspace"}, "OAUTH_PROVIDER"},
		{"short production secret", map[string]string{"APP_ENV": "production", "DATABASE_URL": "postgres://x", "REDIS_ADDR": "r:6379"}, "at least 32 bytes"},
		{"production needs database", map[string]string{"APP_ENV": "production", "JWT_SECRET": strings.Repeat("s", 32), "REDIS_ADDR": "r:6379"}, "DATABASE_URL"},
		{"production needs redis", map[string]string{"APP_ENV": "production", "JWT_SECRET": strings.Repeat("s", 32), "DATABASE_URL": "postgres://x"}, "REDIS_ADDR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv("DATABASE_URL", "")
			t.Setenv("REDIS_ADDR", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("Load should fail")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q should mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoad_ProductionValid(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))
	t.Setenv("DATABASE_URL", "postgres://localhost/auth")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction should be true")
	}
}

func TestTTLFallbacks(t *testing.T) {
	c := &Config{JWTTTL: "garbage", SessionTTL: ""}
	if c.TokenTTL() != 168*time.Hour {
		t.Errorf("TokenTTL fallback = %v", c.TokenTTL())
	}
	if c.HandshakeTTL() != 10*time.Minute {
		t.Errorf("HandshakeTTL fallback = %v", c.HandshakeTTL())
	}
}
