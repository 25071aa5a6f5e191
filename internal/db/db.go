// Package db provides the settings store and merge history for the
// EnsoAI backend, over a SQLite (default) or PostgreSQL driver.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/lwt-sadais/EnsoAI/internal/db/driver"
)

//go:embed schema
var schemaFS embed.FS

// schemaType prefixes the migration files (enso_NNN.sql).
const schemaType = "enso"

// embedFSAdapter wraps embed.FS to implement driver.SchemaFS.
type embedFSAdapter struct {
	fs embed.FS
}

func (e *embedFSAdapter) ReadDir(name string) ([]driver.DirEntry, error) {
	entries, err := e.fs.ReadDir(name)
	if err != nil {
		return nil, err
	}
	result := make([]driver.DirEntry, len(entries))
	for i, entry := range entries {
		result[i] = dirEntryAdapter{entry}
	}
	return result, nil
}

func (e *embedFSAdapter) ReadFile(name string) ([]byte, error) {
	return e.fs.ReadFile(name)
}

type dirEntryAdapter struct {
	fs.DirEntry
}

func (d dirEntryAdapter) Name() string {
	return d.DirEntry.Name()
}

func (d dirEntryAdapter) IsDir() bool {
	return d.DirEntry.IsDir()
}

// DB wraps a database connection with driver abstraction.
type DB struct {
	driver driver.Driver
	dsn    string
}

// Open opens the database for the given dialect and DSN and applies
// pending migrations. An empty sqlite DSN defaults to ~/.enso/enso.db.
func Open(dialect, dsn string) (*DB, error) {
	dl, err := driver.ParseDialect(dialect)
	if err != nil {
		return nil, err
	}

	if dl == driver.DialectSQLite {
		if dsn == "" {
			dsn, err = defaultSQLitePath()
			if err != nil {
				return nil, err
			}
		}
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	drv, err := driver.New(dl)
	if err != nil {
		return nil, err
	}
	if err := drv.Open(dsn); err != nil {
		return nil, err
	}

	d := &DB{driver: drv, dsn: dsn}
	if err := d.Migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// OpenInMemory opens a migrated in-memory SQLite database. Each call
// creates a new isolated database; intended for tests.
func OpenInMemory() (*DB, error) {
	drv := driver.NewSQLite()
	if err := drv.Open(":memory:"); err != nil {
		return nil, err
	}

	d := &DB{driver: drv, dsn: ":memory:"}
	if err := d.Migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// defaultSQLitePath returns ~/.enso/enso.db.
func defaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".enso", "enso.db"), nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.driver.Close()
}

// DSN returns the database DSN/path.
func (d *DB) DSN() string {
	return d.dsn
}

// Dialect returns the database dialect.
func (d *DB) Dialect() driver.Dialect {
	return d.driver.Dialect()
}

// Migrate applies pending schema migrations.
func (d *DB) Migrate() error {
	adapter := &embedFSAdapter{fs: schemaFS}
	return d.driver.Migrate(context.Background(), adapter, schemaType)
}

// Exec executes a query without returning rows.
func (d *DB) Exec(query string, args ...any) (sql.Result, error) {
	return d.driver.Exec(context.Background(), query, args...)
}

// Query executes a query that returns rows.
func (d *DB) Query(query string, args ...any) (*sql.Rows, error) {
	return d.driver.Query(context.Background(), query, args...)
}

// QueryRow executes a query that returns at most one row.
func (d *DB) QueryRow(query string, args ...any) *sql.Row {
	return d.driver.QueryRow(context.Background(), query, args...)
}

// BeginTx starts a transaction.
func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (driver.Tx, error) {
	return d.driver.BeginTx(ctx, opts)
}

// Placeholder returns the positional placeholder for the dialect.
func (d *DB) Placeholder(index int) string {
	return d.driver.Placeholder(index)
}

// Now returns the SQL expression for the current timestamp.
func (d *DB) Now() string {
	return d.driver.Now()
}
