package migrations

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/pocketbase/dbx"
)

//go:embed *.sql
var migrationFiles embed.FS

const advisoryLockID int64 = 731902845

// Apply runs the embedded SQL migrations in filename order, tracked in
// schema_migrations. A Postgres advisory lock serializes concurrent
// instances racing at startup.
func Apply(ctx context.Context, db *dbx.DB) error {
	entries, err := migrationFiles.ReadDir(".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	if _, err := db.NewQuery(`SELECT pg_advisory_lock({:id})`).
		Bind(dbx.Params{"id": advisoryLockID}).WithContext(ctx).Execute(); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = db.NewQuery(`SELECT pg_advisory_unlock({:id})`).
			Bind(dbx.Params{"id": advisoryLockID}).Execute()
	}()

	if _, err := db.NewQuery(`
CREATE TABLE IF NOT EXISTS schema_migrations (
	name TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`).WithContext(ctx).Execute(); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, name := range names {
		var applied bool
		if err := db.NewQuery(`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = {:name})`).
			Bind(dbx.Params{"name": name}).WithContext(ctx).Row(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}

		sqlBytes, err := migrationFiles.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		sql := strings.TrimSpace(string(sqlBytes))
		if sql == "" {
			continue
		}
		if _, err := db.NewQuery(sql).WithContext(ctx).Execute(); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := db.NewQuery(`INSERT INTO schema_migrations (name) VALUES ({:name})`).
			Bind(dbx.Params{"name": name}).WithContext(ctx).Execute(); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}
