package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"propie/api/internal/store/migrations"
)

const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// dialect captures what differs between the two SQL backends. Queries are
// written with Postgres-style $n placeholders and rebound for SQLite.
type dialect struct {
	name       string
	driver     string
	numbered   bool
	migrations fs.FS
}

var postgresDialect = dialect{
	name:       BackendPostgres,
	driver:     "pgx",
	migrations: migrations.Postgres,
}

var sqliteDialect = dialect{
	name:       BackendSQLite,
	driver:     "sqlite",
	numbered:   true,
	migrations: migrations.SQLite,
}

// rebind rewrites $1, $2 ... into ?1, ?2 ... for SQLite, which keeps the
// explicit numbering so a parameter can be referenced more than once.
func (d dialect) rebind(query string) string {
	if !d.numbered || !strings.Contains(query, "$") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func openPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open(postgresDialect.driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	db, err := sql.Open(sqliteDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows one writer; a single connection keeps transactions from
	// tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return db, nil
}
