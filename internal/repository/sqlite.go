package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dharsanguruparan/FitScan/internal/model"
)

// SQLiteScans stores scans in a local SQLite file. Times are kept as Unix
// nanoseconds so ordering does not depend on text formatting.
type SQLiteScans struct {
	db *sql.DB
}

// NewSQLiteScans constructs a repository over an opened database.
func NewSQLiteScans(db *sql.DB) *SQLiteScans {
	return &SQLiteScans{db: db}
}

// SaveScan inserts a completed scan.
func (r *SQLiteScans) SaveScan(ctx context.Context, userID string, rec model.ScanRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scans (scan_id, user_id, scan_time_ns, height, weight, image_url, device, try_on_count)
		VALUES (?,?,?,?,?,?,?,?)
	`, rec.ScanID, userID, rec.ScanTime.UnixNano(), nullFloat(rec.Height), nullFloat(rec.Weight), nullString(rec.ImageURL), string(rec.Device), rec.TryOnCount)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// UserScans returns every scan of a user, most recent first.
func (r *SQLiteScans) UserScans(ctx context.Context, userID string) ([]model.ScanRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT scan_id, scan_time_ns, height, weight, image_url, device, try_on_count
		FROM scans WHERE user_id=?
		ORDER BY scan_time_ns DESC, scan_id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select scans: %w", err)
	}
	defer rows.Close()
	var out []model.ScanRecord
	for rows.Next() {
		var (
			rec      model.ScanRecord
			nanos    int64
			height   sql.NullFloat64
			weight   sql.NullFloat64
			imageURL sql.NullString
			device   string
		)
		if err := rows.Scan(&rec.ScanID, &nanos, &height, &weight, &imageURL, &device, &rec.TryOnCount); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.ScanTime = time.Unix(0, nanos).UTC()
		rec.Device = model.Device(device)
		if height.Valid {
			h := height.Float64
			rec.Height = &h
		}
		if weight.Valid {
			w := weight.Float64
			rec.Weight = &w
		}
		if imageURL.Valid {
			u := imageURL.String
			rec.ImageURL = &u
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}
	return out, nil
}

// IncrementTryOn bumps the try-on counter and returns the new value.
func (r *SQLiteScans) IncrementTryOn(ctx context.Context, userID, scanID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		UPDATE scans SET try_on_count = try_on_count + 1
		WHERE user_id=? AND scan_id=?
		RETURNING try_on_count
	`, userID, scanID).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("scan %s: %w", scanID, ErrNotFound)
		}
		return 0, fmt.Errorf("update try-on count: %w", err)
	}
	return count, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
