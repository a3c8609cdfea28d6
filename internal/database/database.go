// Package database provides PostgreSQL access and schema management.
package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	// PostgreSQL driver for database/sql
	_ "github.com/lib/pq"

	"github.com/pandeptwidyaop/trp-api/internal/config"
)

// DriverName is the database/sql driver registered by lib/pq.
const DriverName = "postgres"

// DB wraps a sqlx.DB connection with additional functionality.
type DB struct {
	*sqlx.DB
}

// Open creates a connection pool without contacting the server.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	db, err := sqlx.Open(DriverName, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.GetConnMaxLifetime())

	return &DB{db}, nil
}

// New opens the pool and verifies the server answers.
func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.GetConnectTimeout())
	defer cancel()

	if err := db.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Ping executes a trivial statement, which exercises authentication and
// the query path rather than just the socket.
func (db *DB) Ping(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}

// Migrate runs all database migrations.
func (db *DB) Migrate(ctx context.Context) error {
	return runMigrations(ctx, db.DB)
}

// Check opens a connection, runs the trivial statement once and closes it.
// There is no retry.
func Check(ctx context.Context, cfg config.DatabaseConfig) error {
	db, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return db.Close()
}
