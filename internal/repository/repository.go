// Package repository persists scan records. The same contract is served by
// PostgreSQL, SQLite and an in-memory map so the scan flow can run against
// whichever backend the deployment has.
package repository

import (
	"context"
	"errors"

	"github.com/dharsanguruparan/FitScan/internal/model"
)

// ErrNotFound is exported so callers elsewhere can compare errors using
// errors.Is.
var ErrNotFound = errors.New("scan not found")

// Scans is the remote scan store: saveScan, getUserScans and the try-on
// counter bump used by try-on flows.
type Scans interface {
	SaveScan(ctx context.Context, userID string, record model.ScanRecord) error
	UserScans(ctx context.Context, userID string) ([]model.ScanRecord, error)
	IncrementTryOn(ctx context.Context, userID, scanID string) (int, error)
}
