package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql
var postgresMigrationsFS embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteMigrationsFS embed.FS

// migrationsTable bookkeeps applied migration versions, mirroring what
// golang-migrate tracks, but against a pure-Go sqlite driver
// (modernc.org/sqlite) rather than the cgo-based mattn/go-sqlite3 driver
// golang-migrate's bundled sqlite3 source driver requires.
const migrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
)`

// RunMigrations applies all pending, embedded SQL migrations for the given
// dialect against db. Migrations are numbered "0001_name.sql",
// "0002_name.sql", ... and applied in order, one transaction per file.
func RunMigrations(ctx context.Context, db *sqlx.DB, dialect string, logger *zap.Logger) error {
	logger = logger.With(zap.String("component", "migrations"))
	logger.Info("applying database migrations", zap.String("dialect", dialect))

	var migFS embed.FS
	var dir string
	switch dialect {
	case "postgres", "postgresql":
		migFS, dir = postgresMigrationsFS, "migrations/postgres"
	case "sqlite":
		migFS, dir = sqliteMigrationsFS, "migrations/sqlite"
	default:
		return fmt.Errorf("unsupported migration dialect: %s", dialect)
	}

	if _, err := db.ExecContext(ctx, migrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migFS, dir)
	if err != nil {
		return fmt.Errorf("read embedded migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	applied := map[int]bool{}
	rows, err := db.QueryxContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan applied migration version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()

	for _, name := range names {
		version, err := migrationVersion(name)
		if err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		if applied[version] {
			continue
		}

		contents, err := fs.ReadFile(migFS, dir+"/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx for %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			db.Rebind("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)"),
			version, nowISO()); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
		logger.Info("applied migration", zap.String("file", name), zap.Int("version", version))
	}

	logger.Info("migrations up to date")
	return nil
}

func migrationVersion(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("malformed migration filename %q, expected NNNN_name.sql", name)
	}
	return strconv.Atoi(prefix)
}
