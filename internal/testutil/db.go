package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"cultureticks/migrations"

	_ "github.com/lib/pq"
	"github.com/pocketbase/dbx"
)

// DB opens the Postgres instance named by TEST_DATABASE_URL, applies
// migrations and truncates the ticket tables so every test starts from
// empty inventory. Tests are skipped when no database is reachable.
func DB(t *testing.T) *dbx.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database test")
	}

	db, err := dbx.Open("postgres", dsn)
	if err != nil {
		t.Skipf("open database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.DB().PingContext(ctx); err != nil {
		t.Skipf("database unreachable: %v", err)
	}
	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := db.NewQuery(`TRUNCATE tickets, events CASCADE`).WithContext(ctx).Execute(); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}
