// seed inserts a development local account for testing login flows.
// Idempotent: skips the insert if dev@example.com already exists.
package main

import (
	"context"
	"errors"
	"log"

	"auth-gateway/internal/config"
	"auth-gateway/internal/db"
	"auth-gateway/internal/identity/domain"
	"auth-gateway/internal/identity/repository"
	"auth-gateway/internal/security"
)

const (
	devUserEmail = "dev@example.com"
	devPassword  = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}
	ctx := context.Background()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	var repo repository.Repository
	if cfg.Model() == domain.ModelPartitioned {
		repo = repository.NewPartitionedRepository(conn)
	} else {
		repo = repository.NewJoinedRepository(conn)
	}

	existing, err := repo.FindLocalByEmail(ctx, devUserEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Printf("Seed already applied (%s exists as %s). Skipping.", devUserEmail, existing.Ref)
		return
	}

	passwordHash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	local, err := repo.CreateLocal(ctx, devUserEmail, passwordHash)
	if errors.Is(err, repository.ErrConflict) {
		log.Printf("Seed already applied (%s exists). Skipping.", devUserEmail)
		return
	}
	if err != nil {
		log.Fatalf("create dev account: %v", err)
	}
	log.Printf("Seeded %s (%s, model %s) with password %q", devUserEmail, local.Ref, cfg.Model(), devPassword)
}
