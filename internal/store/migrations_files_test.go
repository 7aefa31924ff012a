package store

import (
	"context"
	"database/sql"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"propie/api/internal/store/migrations"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	for name, set := range map[string]fs.FS{"postgres": migrations.Postgres, "sqlite": migrations.SQLite} {
		entries, err := fs.ReadDir(set, ".")
		if err != nil {
			t.Fatalf("%s: read migrations dir: %v", name, err)
		}

		pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
		byVersion := map[string]map[string]bool{}

		for _, entry := range entries {
			match := pattern.FindStringSubmatch(entry.Name())
			if match == nil {
				continue
			}
			version, direction := match[1], match[2]
			if byVersion[version] == nil {
				byVersion[version] = map[string]bool{}
			}
			if byVersion[version][direction] {
				t.Fatalf("%s: duplicate %s migration file for version %s", name, direction, version)
			}
			byVersion[version][direction] = true
		}

		if len(byVersion) == 0 {
			t.Fatalf("%s: no migrations discovered", name)
		}
		for version, dirs := range byVersion {
			if !dirs["up"] || !dirs["down"] {
				t.Fatalf("%s: version %s must include both up and down files", name, version)
			}
		}
	}
}

func TestMigrationSetsDefineSameTables(t *testing.T) {
	tables := func(set fs.FS) []string {
		raw, err := fs.ReadFile(set, "0001_init.up.sql")
		if err != nil {
			t.Fatalf("read migration: %v", err)
		}
		names := regexp.MustCompile(`CREATE TABLE (\w+)`).FindAllStringSubmatch(string(raw), -1)
		out := make([]string, 0, len(names))
		for _, n := range names {
			out = append(out, n[1])
		}
		sort.Strings(out)
		return out
	}
	pg, lite := tables(migrations.Postgres), tables(migrations.SQLite)
	if strings.Join(pg, ",") != strings.Join(lite, ",") {
		t.Fatalf("table sets differ:\npostgres: %v\nsqlite:   %v", pg, lite)
	}
}

func TestMigrationsRoundTripSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "roundtrip.db")

	repo, err := Open(ctx, Options{Backend: BackendSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer repo.Close()

	if err := applyDown(ctx, repo.db, migrations.SQLite); err != nil {
		t.Fatalf("apply down migrations: %v", err)
	}
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("clear schema_migrations: %v", err)
	}
	if err := applyMigrations(ctx, repo.db, sqliteDialect); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
	if err := applyMigrations(ctx, repo.db, sqliteDialect); err != nil {
		t.Fatalf("apply up migrations (idempotent pass): %v", err)
	}
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("PROPIE_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("PROPIE_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := openPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := applyMigrations(ctx, db, postgresDialect); err != nil {
		t.Fatalf("apply up migrations (pass 1): %v", err)
	}
	if err := applyDown(ctx, db, migrations.Postgres); err != nil {
		t.Fatalf("apply down migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("clear schema_migrations: %v", err)
	}
	if err := applyMigrations(ctx, db, postgresDialect); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}

func applyDown(ctx context.Context, db *sql.DB, set fs.FS) error {
	entries, err := fs.ReadDir(set, ".")
	if err != nil {
		return err
	}
	var downs []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".down.sql") {
			downs = append(downs, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(downs)))

	for _, name := range downs {
		raw, err := fs.ReadFile(set, name)
		if err != nil {
			return err
		}
		text := strings.TrimSpace(string(raw))
		if text == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, text); err != nil {
			return err
		}
	}
	return nil
}
