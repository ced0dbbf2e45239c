package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/FitScan/internal/model"
)

// PostgresScans wraps all SQL used for scans on PostgreSQL.
type PostgresScans struct {
	pool *pgxpool.Pool
}

// NewPostgresScans constructs a repository.
func NewPostgresScans(pool *pgxpool.Pool) *PostgresScans {
	return &PostgresScans{pool: pool}
}

// SaveScan inserts a completed scan.
func (r *PostgresScans) SaveScan(ctx context.Context, userID string, rec model.ScanRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO scans (scan_id, user_id, scan_time, height, weight, image_url, device, try_on_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rec.ScanID, userID, rec.ScanTime.UTC(), rec.Height, rec.Weight, rec.ImageURL, string(rec.Device), rec.TryOnCount)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// UserScans returns every scan of a user, most recent first.
func (r *PostgresScans) UserScans(ctx context.Context, userID string) ([]model.ScanRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT scan_id, scan_time, height, weight, image_url, device, try_on_count
		FROM scans WHERE user_id=$1
		ORDER BY scan_time DESC, scan_id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select scans: %w", err)
	}
	defer rows.Close()
	var out []model.ScanRecord
	for rows.Next() {
		var (
			rec    model.ScanRecord
			device string
		)
		if err := rows.Scan(&rec.ScanID, &rec.ScanTime, &rec.Height, &rec.Weight, &rec.ImageURL, &device, &rec.TryOnCount); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.Device = model.Device(device)
		rec.ScanTime = rec.ScanTime.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}
	return out, nil
}

// IncrementTryOn bumps the try-on counter and returns the new value.
func (r *PostgresScans) IncrementTryOn(ctx context.Context, userID, scanID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		UPDATE scans SET try_on_count = try_on_count + 1
		WHERE user_id=$1 AND scan_id=$2
		RETURNING try_on_count
	`, userID, scanID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("scan %s: %w", scanID, ErrNotFound)
		}
		return 0, fmt.Errorf("update try-on count: %w", err)
	}
	return count, nil
}
