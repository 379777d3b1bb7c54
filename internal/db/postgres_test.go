package db

import (
	"context"
	"os"
	"strings"
	"testing"
)

func TestOpen_EmptyDSN(t *testing.T) {
	db, err := Open(context.Background(), "")
	if err == nil {
		t.Fatal("Open with empty DSN should return error")
	}
	if db != nil {
		t.Error("Open should return nil db when error occurs")
	}
}

func TestOpen_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	var one int
	if err := db.QueryRow("SELECT 1").Scan(&one); err != nil || one != 1 {
		t.Fatalf("SELECT 1 = %d, %v", one, err)
	}
}

func TestMigrationFS_HasBothModels(t *testing.T) {
	for _, dir := range []string{"migrations/joined", "migrations/partitioned"} {
		entries, err := MigrationFS.ReadDir(dir)
		if err != nil {
			t.Fatalf("ReadDir(%s): %v", dir, err)
		}
		var ups, downs int
		for _, e := range entries {
			switch {
			case strings.HasSuffix(e.Name(), ".up.sql"):
				ups++
			case strings.HasSuffix(e.Name(), ".down.sql"):
				downs++
			}
		}
		if ups == 0 || ups != downs {
			t.Errorf("%s: %d up and %d down migrations", dir, ups, downs)
		}
	}
}
