package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"spycat/internal/config"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Row is the result of QueryRow. Unlike *sql.Row it carries errors from any
// DBTX implementation.
type Row struct {
	rows *sql.Rows
	err  error
}

// QueryRow runs a query expected to return at most one row.
func QueryRow(ctx context.Context, conn DBTX, query string, args ...any) *Row {
	rows, err := conn.QueryContext(ctx, query, args...)
	return &Row{rows: rows, err: err}
}

// Scan copies the first row into dest, or returns sql.ErrNoRows.
func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	defer r.rows.Close()
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	if err := r.rows.Scan(dest...); err != nil {
		return err
	}
	return r.rows.Close()
}

// Open opens the configured database, sizes its pool and verifies the
// connection.
func Open(ctx context.Context, cfg config.Database) (*sql.DB, Dialect, error) {
	var (
		conn    *sql.DB
		dialect Dialect
		err     error
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		dialect = Postgres
		conn, err = sql.Open("pgx", cfg.URL())
	case config.DriverSQLite, "":
		dialect = SQLite
		conn, err = openSQLite(cfg.SQLitePath)
	default:
		return nil, Dialect{}, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, Dialect{}, err
	}
	if cfg.PoolSize > 0 {
		conn.SetMaxOpenConns(cfg.PoolSize + cfg.MaxOverflow)
		conn.SetMaxIdleConns(cfg.PoolSize)
	}
	if cfg.PoolRecycle > 0 {
		conn.SetConnMaxLifetime(cfg.PoolRecycle)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, Dialect{}, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}
	return conn, dialect, nil
}

// openSQLite opens the file with foreign keys on. Transactions start with
// BEGIN IMMEDIATE so concurrent writers queue on busy_timeout instead of
// failing on lock upgrade.
func openSQLite(path string) (*sql.DB, error) {
	if path == "" {
		path = "spycat.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", path)
	return sql.Open("sqlite", dsn)
}
