package migrate

import (
	"os"
	"strings"
	"testing"

	"auth-gateway/internal/identity/domain"
)

func TestRun_EmptyDSN(t *testing.T) {
	err := Run("", domain.ModelJoined, "up")
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL is not set") {
		t.Fatalf("want DATABASE_URL error, got %v", err)
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	for _, dir := range []string{"", "sideways", "UP", "Down"} {
		t.Run(dir, func(t *testing.T) {
			err := Run("postgres://localhost/test", domain.ModelJoined, dir)
			if err == nil || !strings.Contains(err.Error(), "direction") {
				t.Errorf("Run(%q) = %v, want direction error", dir, err)
			}
		})
	}
}

func TestRun_InvalidModel(t *testing.T) {
	if err := Run("postgres://localhost/test", domain.Model("sharded"), "up"); err == nil {
		t.Fatal("Run with unknown model should fail")
	}
}

func TestSourceDir(t *testing.T) {
	if got := SourceDir(domain.ModelPartitioned); got != "migrations/partitioned" {
		t.Errorf("SourceDir = %q", got)
	}
}

func TestRun_UpDownUp(t *testing.T) {
	dsn := os.Getenv("TEST_MIGRATE_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_MIGRATE_DATABASE_URL not set")
	}
	for _, model := range []domain.Model{domain.ModelJoined, domain.ModelPartitioned} {
		for _, dir := range []string{"up", "up", "down"} {
			if err := Run(dsn, model, dir); err != nil {
				t.Fatalf("Run(%s, %s): %v", model, dir, err)
			}
		}
	}
}
