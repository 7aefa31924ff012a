package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Options selects and locates a repository backend.
type Options struct {
	Backend     string
	DatabaseURL string
	SQLitePath  string
}

func (o Options) key() string {
	if o.Backend == BackendSQLite {
		return o.Backend + "|" + o.SQLitePath
	}
	return o.Backend + "|" + o.DatabaseURL
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn binds a querier (pool or transaction) to its dialect.
type conn struct {
	q querier
	d dialect
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.d.rebind(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.d.rebind(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.d.rebind(query), args...)
}

// Repository groups the per-entity repositories over one database handle.
// A Repository returned by WithTx shares a single transaction.
type Repository struct {
	db      *sql.DB
	dialect dialect

	Developments  *DevelopmentRepository
	Units         *UnitRepository
	Documents     *DocumentRepository
	Sales         *SaleRepository
	Professionals *ProfessionalRepository
	Users         *UserRepository
	Audit         *AuditRepository
}

func newRepository(db *sql.DB, d dialect, q querier) *Repository {
	c := conn{q: q, d: d}
	return &Repository{
		db:            db,
		dialect:       d,
		Developments:  &DevelopmentRepository{c: c},
		Units:         &UnitRepository{c: c},
		Documents:     &DocumentRepository{c: c},
		Sales:         &SaleRepository{c: c},
		Professionals: &ProfessionalRepository{c: c},
		Users:         &UserRepository{c: c},
		Audit:         &AuditRepository{c: c},
	}
}

// Open connects to the configured backend and applies its migrations.
func Open(ctx context.Context, opts Options) (*Repository, error) {
	var (
		db  *sql.DB
		d   dialect
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendPostgres, "":
		d = postgresDialect
		db, err = openPostgres(ctx, opts.DatabaseURL)
	case BackendSQLite:
		d = sqliteDialect
		db, err = openSQLite(ctx, opts.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown repository backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := applyMigrations(ctx, db, d); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	return newRepository(db, d, db), nil
}

var (
	sharedMu    sync.Mutex
	sharedRepos = map[string]*Repository{}
)

// Shared returns the process-wide repository for opts, opening it on first use.
// Closing it releases the slot so the next call reopens.
func Shared(ctx context.Context, opts Options) (*Repository, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	key := opts.key()
	if repo, ok := sharedRepos[key]; ok {
		return repo, nil
	}
	repo, err := Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	sharedRepos[key] = repo
	return repo, nil
}

// Backend reports which dialect this repository speaks.
func (r *Repository) Backend() string {
	return r.dialect.name
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	sharedMu.Lock()
	for key, repo := range sharedRepos {
		if repo == r {
			delete(sharedRepos, key)
		}
	}
	sharedMu.Unlock()
	return r.db.Close()
}

// WithTx runs fn against a Repository bound to one transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (r *Repository) WithTx(ctx context.Context, fn func(tx *Repository) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(newRepository(r.db, r.dialect, sqlTx)); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func encodeList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func decodeList(raw string) []string {
	values := []string{}
	if strings.TrimSpace(raw) == "" {
		return values
	}
	_ = json.Unmarshal([]byte(raw), &values)
	return values
}

func nullTime(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

func limitOffset(limit, offset, fallback int) (int, int) {
	if limit <= 0 {
		limit = fallback
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// where accumulates numbered predicates for dynamic filters.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// assignments accumulates SET clauses for partial updates.
type assignments struct {
	cols []string
	args []any
}

func (a *assignments) set(col string, value any) {
	a.args = append(a.args, value)
	a.cols = append(a.cols, fmt.Sprintf("%s=$%d", col, len(a.args)))
}

func (a *assignments) empty() bool {
	return len(a.cols) == 0
}

// update renders "UPDATE table SET ... WHERE id=$n" with id as the last argument.
func (a *assignments) update(table, id string) (string, []any) {
	args := append(append([]any{}, a.args...), id)
	return fmt.Sprintf("UPDATE %s SET %s WHERE id=$%d", table, strings.Join(a.cols, ", "), len(args)), args
}

type scanner interface {
	Scan(dest ...any) error
}

func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
