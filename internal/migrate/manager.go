// Package migrate applies the KYC schema and optional seed data to Postgres.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

//go:embed sql/*.sql
var embedded embed.FS

// Schema returns the bundled KYC schema migrations.
func Schema() fs.FS {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

// ErrNothingApplied is returned by Down when no migration has run.
var ErrNothingApplied = errors.New("migrate: no migrations applied")

// source is one set of SQL files tracked in its own bookkeeping table.
type source struct {
	kind   string
	fsys   fs.FS
	suffix string
	table  string
}

// Manager runs the schema forward or back and applies seeds once each.
type Manager struct {
	db     *sql.DB
	schema source
	seeds  source
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable renames the schema bookkeeping table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.schema.table = name
		}
	}
}

// WithSeeds adds seed files applied by Seed.
func WithSeeds(seeds fs.FS) Option {
	return func(m *Manager) { m.seeds.fsys = seeds }
}

// NewManager uses the bundled schema when migrations is nil.
func NewManager(db *sql.DB, migrations fs.FS, opts ...Option) *Manager {
	if migrations == nil {
		migrations = Schema()
	}
	m := &Manager{
		db:     db,
		schema: source{kind: "migration", fsys: migrations, suffix: ".up.sql", table: "schema_migrations"},
		seeds:  source{kind: "seed", suffix: ".sql", table: "schema_seeds"},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies every migration not yet recorded, in file name order.
func (m *Manager) Up(ctx context.Context) error {
	return m.applyPending(ctx, m.schema)
}

// Seed applies seed files once each. It does nothing without WithSeeds.
func (m *Manager) Seed(ctx context.Context) error {
	if m.seeds.fsys == nil {
		return nil
	}
	return m.applyPending(ctx, m.seeds)
}

// Down reverts the latest migration using its .down.sql twin.
func (m *Manager) Down(ctx context.Context) error {
	done, err := m.Status(ctx)
	if err != nil {
		return err
	}
	if len(done) == 0 {
		return ErrNothingApplied
	}
	last := done[len(done)-1]
	down := strings.TrimSuffix(last, m.schema.suffix) + ".down.sql"
	body, err := fs.ReadFile(m.schema.fsys, down)
	if err != nil {
		return fmt.Errorf("migrate: no down file for %s: %w", last, err)
	}
	unrecord := fmt.Sprintf(`delete from %s where name = $1`, m.schema.table)
	if err := m.runInTx(ctx, string(body), unrecord, last); err != nil {
		return fmt.Errorf("migrate: revert %s: %w", last, err)
	}
	return nil
}

// Status lists applied migrations, oldest first.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureTables(ctx); err != nil {
		return nil, err
	}
	return m.applied(ctx, m.schema.table)
}

func (m *Manager) applyPending(ctx context.Context, src source) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	done, err := m.applied(ctx, src.table)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(done))
	for _, name := range done {
		seen[name] = struct{}{}
	}
	files, err := sqlFiles(src.fsys, src.suffix)
	if err != nil {
		return err
	}
	record := fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, src.table)
	for _, name := range files {
		if _, ok := seen[name]; ok {
			continue
		}
		body, err := fs.ReadFile(src.fsys, name)
		if err != nil {
			return err
		}
		if err := m.runInTx(ctx, string(body), record, name, time.Now().UTC()); err != nil {
			return fmt.Errorf("migrate: %s %s: %w", src.kind, name, err)
		}
	}
	return nil
}

// runInTx executes script and the bookkeeping statement atomically.
func (m *Manager) runInTx(ctx context.Context, script, bookkeeping string, args ...any) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range statements(script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *Manager) ensureTables(ctx context.Context) error {
	for _, table := range []string{m.schema.table, m.seeds.table} {
		ddl := fmt.Sprintf(`create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		)`, table)
		if _, err := m.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) applied(ctx context.Context, table string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s order by applied_at, name`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// sqlFiles lists top-level files ending in suffix, sorted.
func sqlFiles(fsys fs.FS, suffix string) ([]string, error) {
	names, err := fs.Glob(fsys, "*"+suffix)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// statements splits a script on semicolons, ignoring those inside quoted
// strings and -- comments. Blank statements are dropped.
func statements(script string) []string {
	var (
		out     []string
		cur     strings.Builder
		quoted  bool
		comment bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case comment:
			if c == '\n' {
				comment = false
				cur.WriteByte(c)
			}
			continue
		case !quoted && c == '-' && i+1 < len(script) && script[i+1] == '-':
			comment = true
			i++
			continue
		case c == '\'':
			quoted = !quoted
		case c == ';' && !quoted:
			cur.WriteByte(c)
			flush()
			continue
		}
		cur.WriteByte(c)
	}
	flush()
	return out
}
