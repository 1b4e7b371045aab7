// Package sqlstore implements the transaction and user stores on
// database/sql, for SQLite (modernc.org/sqlite) and PostgreSQL (lib/pq).
// Amounts are stored as integer cents.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/boddenberg/finance-dashboard-api/internal/port"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("sqlstore")

// Store is a SQL-backed TransactionStore and UserStore.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

var (
	_ port.TransactionStore = (*Store)(nil)
	_ port.UserStore        = (*Store)(nil)
)

// Open connects to dsn and verifies the connection. For SQLite the parent
// directory of the database file is created when missing.
func Open(ctx context.Context, d Dialect, dsn string, logger *zap.Logger) (*Store, error) {
	if d == SQLite {
		if path := sqlitePath(dsn); path != "" && path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d, err)
	}

	if d == SQLite {
		// One writer at a time; WAL lets readers proceed.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", d, err)
	}

	logger.Info("sql store opened", zap.String("dialect", string(d)))
	return &Store{db: db, dialect: d, logger: logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(q), args...)
}

func (s *Store) queryRows(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(q), args...)
}

func (s *Store) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(q), args...)
}

// sqlitePath extracts the file path from a "file:" DSN.
func sqlitePath(dsn string) string {
	path := dsn
	if len(path) > 5 && path[:5] == "file:" {
		path = path[5:]
	}
	for i := 0; i < len(path); i++ {
		if path[i] == '?' {
			return path[:i]
		}
	}
	return path
}
