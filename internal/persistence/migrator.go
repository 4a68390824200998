package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// migration is one discovered pair of {version}_{name}.up.sql / .down.sql
// files.
type migration struct {
	version string
	upFile  string
}

func (mg migration) downFile() string {
	return strings.Replace(mg.upFile, ".up.sql", ".down.sql", 1)
}

// Migrator applies the SQL files under a migrations directory in version
// order, tracking progress in wcisim.schema_migrations. File naming follows
// the golang-migrate convention.
type Migrator struct {
	db  *sql.DB
	dir string
	log zerolog.Logger
}

func NewMigrator(db *sql.DB, migrationsDir string, log zerolog.Logger) *Migrator {
	return &Migrator{db: db, dir: migrationsDir, log: log}
}

// Up applies every migration not yet recorded, oldest first.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureTracking(ctx); err != nil {
		return fmt.Errorf("ensure migration tracking: %w", err)
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("read applied versions: %w", err)
	}
	pending, err := m.discover()
	if err != nil {
		return fmt.Errorf("discover migrations: %w", err)
	}

	for _, mg := range pending {
		if applied[mg.version] {
			continue
		}
		err := m.runInTx(ctx, mg.upFile, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO wcisim.schema_migrations (version, filename) VALUES ($1, $2)`,
				mg.version, mg.upFile)
			return err
		})
		if err != nil {
			return err
		}
		m.log.Info().Str("migration", mg.upFile).Msg("migration applied")
	}
	return nil
}

// Down rolls back the most recently applied migration, if any.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureTracking(ctx); err != nil {
		return fmt.Errorf("ensure migration tracking: %w", err)
	}

	var version, upFile string
	row := m.db.QueryRowContext(ctx,
		`SELECT version, filename FROM wcisim.schema_migrations ORDER BY version DESC LIMIT 1`)
	switch err := row.Scan(&version, &upFile); {
	case err == sql.ErrNoRows:
		m.log.Info().Msg("no migrations to roll back")
		return nil
	case err != nil:
		return fmt.Errorf("read latest migration: %w", err)
	}

	down := migration{version: version, upFile: upFile}.downFile()
	err := m.runInTx(ctx, down, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM wcisim.schema_migrations WHERE version = $1`, version)
		return err
	})
	if err != nil {
		return err
	}
	m.log.Info().Str("migration", down).Msg("migration rolled back")
	return nil
}

// runInTx executes one migration file plus its bookkeeping statement in a
// single transaction.
func (m *Migrator) runInTx(ctx context.Context, file string, record func(*sql.Tx) error) error {
	body, err := os.ReadFile(filepath.Join(m.dir, file))
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for %s: %w", file, err)
	}
	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		tx.Rollback()
		return fmt.Errorf("exec migration %s: %w", file, err)
	}
	if err := record(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", file, err)
	}
	return nil
}

// ensureTracking creates the wcisim schema and tracking table. The schema is
// created here as well as in 000001 so that tracking exists before any
// migration has run.
func (m *Migrator) ensureTracking(ctx context.Context) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS wcisim`,
		`CREATE TABLE IF NOT EXISTS wcisim.schema_migrations (
			version    TEXT PRIMARY KEY,
			filename   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, s := range stmts {
		if _, err := m.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM wcisim.schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// discover lists the up-migrations in the directory, sorted by filename so
// version prefixes order them.
func (m *Migrator) discover() ([]migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}
	var out []migration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		version, _, _ := strings.Cut(name, "_")
		out = append(out, migration{version: version, upFile: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].upFile < out[j].upFile })
	return out, nil
}
