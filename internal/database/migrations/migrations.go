// Package migrations applies versioned schema migrations.
//
// Each migration lives in its own file named YYYYMMDD-HHmmss-description.go
// and registers itself from init(). Applied versions are tracked in
// schema_migrations so every migration runs exactly once.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Migration is one schema change.
type Migration struct {
	Timestamp   string // YYYYMMDD-HHmmss, used for ordering and tracking
	Description string
	Up          []string // Statements run in one transaction
}

var (
	mu       sync.Mutex
	registry []Migration
)

// Register adds a migration. Called from init().
func Register(m Migration) {
	mu.Lock()
	defer mu.Unlock()
	registry = append(registry, m)
}

// All returns the registered migrations in timestamp order.
func All() []Migration {
	mu.Lock()
	defer mu.Unlock()
	out := append([]Migration(nil), registry...)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// Run applies every pending migration.
func Run(db *sql.DB, logger *slog.Logger) error {
	return RunContext(context.Background(), db, logger)
}

// RunContext applies every pending migration, stopping at the first failure.
func RunContext(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "migrations")

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, m := range All() {
		if applied[m.Timestamp] {
			continue
		}
		logger.Info("applying migration", "version", m.Timestamp, "description", m.Description)
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("migration %s (%s) failed: %w", m.Timestamp, m.Description, err)
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
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

func apply(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.Up {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if ignorable(err, stmt) {
				continue
			}
			return fmt.Errorf("statement failed: %w\n%s", err, stmt)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
		m.Timestamp, m.Description, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// ignorable reports errors from re-running additive statements.
func ignorable(err error, stmt string) bool {
	msg := err.Error()
	if strings.Contains(msg, "duplicate column") {
		return true
	}
	return strings.Contains(msg, "already exists") && strings.Contains(stmt, "CREATE INDEX")
}

// Applied is a migration recorded in schema_migrations.
type Applied struct {
	Version     string
	Description string
	AppliedAt   time.Time
}

// Status returns applied and pending migrations.
func Status(ctx context.Context, db *sql.DB) (applied []Applied, pending []Migration, err error) {
	rows, err := db.QueryContext(ctx, "SELECT version, description, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var a Applied
		var at string
		if err := rows.Scan(&a.Version, &a.Description, &at); err != nil {
			return nil, nil, err
		}
		a.AppliedAt, _ = time.Parse(time.RFC3339, at)
		applied = append(applied, a)
		done[a.Version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	for _, m := range All() {
		if !done[m.Timestamp] {
			pending = append(pending, m)
		}
	}
	return applied, pending, nil
}
