// Package store is the storage boundary: it owns the relational layout of
// registered definitions and entities, enforces uniqueness at the database,
// and executes rendered query plans. SQLite (modernc) and PostgreSQL (pgx)
// are supported.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/aidanlsb/moltrack/internal/sqlutil"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a write collided with a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate key")
)

// DB is a database handle bound to one dialect.
type DB struct {
	db      *sql.DB
	dialect sqlutil.Dialect
	logger  *slog.Logger
}

// Option configures Open.
type Option func(*DB)

// WithLogger sets the logger used for schema setup and plan execution.
func WithLogger(l *slog.Logger) Option {
	return func(d *DB) {
		if l != nil {
			d.logger = l
		}
	}
}

// Open opens the database for the configured driver and creates any missing
// tables.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*DB, error) {
	dialect, err := sqlutil.ParseDialect(driver)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	switch dialect {
	case sqlutil.Postgres:
		db, err = sql.Open("pgx", dsn)
	default:
		if dsn == "" {
			dsn = ":memory:"
		}
		db, err = sql.Open("sqlite", dsn)
		// A single connection serializes writers and keeps an in-memory
		// database alive for the life of the handle.
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &DB{db: db, dialect: dialect, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", dialect, err)
	}
	if err := d.initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// OpenInMemory opens an in-memory SQLite database (for testing).
func OpenInMemory(opts ...Option) (*DB, error) {
	return Open(context.Background(), "sqlite", ":memory:", opts...)
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// DB returns the underlying sql.DB for advanced queries.
func (d *DB) DB() *sql.DB {
	return d.db
}

// Dialect reports the SQL dialect of the backend.
func (d *DB) Dialect() sqlutil.Dialect {
	return d.dialect
}

// rebind converts "?" placeholders for the backend.
func (d *DB) rebind(query string) string {
	return sqlutil.Rebind(d.dialect, query)
}

func (d *DB) initialize(ctx context.Context) error {
	for _, stmt := range ddl(d.dialect) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize database schema: %w", err)
		}
	}
	_, err := d.db.ExecContext(ctx, d.rebind(
		`INSERT INTO semantic_types (name, description) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`),
		"Synonym", "A semantic type for synonyms")
	if err != nil {
		return fmt.Errorf("failed to seed semantic types: %w", err)
	}
	d.logger.Debug("database initialized", "dialect", d.dialect.String())
	return nil
}

// isUniqueViolation reports whether err came from a uniqueness constraint
// on either backend.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
