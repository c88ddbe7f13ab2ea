package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// migrationFile is one embedded SQL file.
type migrationFile struct {
	name string
	sql  string
}

// migrationFiles lists the SQL files of a dialect in execution order.
func migrationFiles(dialect string) ([]migrationFile, error) {
	dir := path.Join("migrations", dialect)
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, err
	}
	// ensure deterministic order: 001_..., 002_..., etc.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []migrationFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		b, err := fs.ReadFile(migrationsFS, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		text := strings.TrimSpace(string(b))
		if text == "" {
			return nil, fmt.Errorf("empty migration: %s", e.Name())
		}
		out = append(out, migrationFile{name: e.Name(), sql: text})
	}
	return out, nil
}

// RunMigrations executes the SQLite migrations in alphabetical order.
// Each file is executed in a single transaction; files must be idempotent.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	files, err := migrationFiles("sqlite")
	if err != nil {
		return err
	}
	for _, f := range files {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, f.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", f.name, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
