package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the scans table if needed. Having the migration in
// code keeps the kiosk deployment self-contained.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS scans (
	scan_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	scan_time TIMESTAMPTZ NOT NULL,
	height DOUBLE PRECISION,
	weight DOUBLE PRECISION,
	image_url TEXT,
	device TEXT NOT NULL,
	try_on_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_scans_user_time ON scans(user_id, scan_time DESC);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// OpenSQLite opens a SQLite database at path (":memory:" works for tests)
// and creates the scans table. SQLite allows a single writer, so the pool is
// limited to one connection.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	if err := ensureSQLiteSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ensureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS scans (
	scan_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	scan_time_ns INTEGER NOT NULL,
	height REAL,
	weight REAL,
	image_url TEXT,
	device TEXT NOT NULL,
	try_on_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_scans_user_time ON scans(user_id, scan_time_ns DESC);`
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return nil
}
