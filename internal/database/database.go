// Package database opens the libsql database and applies migrations.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tursodatabase/go-libsql"

	"github.com/lukas-andre/decollage-cl-sub000/internal/database/migrations"
)

// Options selects how the database is opened.
//
//   - Local file: DSN "file:decollage.db"
//   - Embedded replica: DSN is the local file and TursoURL + TursoAuthToken point at the primary
//   - libsql server: DSN "http://127.0.0.1:8080"
type Options struct {
	DSN            string
	TursoURL       string
	TursoAuthToken string
}

// Replica reports whether the options describe a Turso embedded replica.
func (o Options) Replica() bool {
	return o.TursoURL != "" && o.TursoAuthToken != ""
}

// New opens the database, enables foreign keys and checks the connection.
func New(opts Options) (*sql.DB, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	var db *sql.DB
	if opts.Replica() {
		path := strings.TrimPrefix(opts.DSN, "file:")
		path, _, _ = strings.Cut(path, "?")

		connector, err := libsql.NewEmbeddedReplicaConnector(path, opts.TursoURL,
			libsql.WithAuthToken(opts.TursoAuthToken),
			libsql.WithReadYourWrites(true),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create replica connector: %w", err)
		}
		db = sql.OpenDB(connector)
	} else {
		var err error
		db, err = sql.Open("libsql", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate applies pending migrations.
func Migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	return migrations.RunContext(ctx, db, logger)
}

// Pending returns migrations not yet applied.
func Pending(ctx context.Context, db *sql.DB) ([]migrations.Migration, error) {
	_, pending, err := migrations.Status(ctx, db)
	return pending, err
}
