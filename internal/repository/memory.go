package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dharsanguruparan/FitScan/internal/model"
)

// MemoryScans keeps scans in process memory, guarded by an RWMutex. RWMutex
// lets many readers load history while a single writer saves a scan.
type MemoryScans struct {
	mu    sync.RWMutex
	scans map[string][]model.ScanRecord
}

// NewMemoryScans constructs a MemoryScans.
func NewMemoryScans() *MemoryScans {
	return &MemoryScans{scans: make(map[string][]model.ScanRecord)}
}

// SaveScan stores a copy of rec.
func (m *MemoryScans) SaveScan(ctx context.Context, userID string, rec model.ScanRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.scans[userID] {
		if existing.ScanID == rec.ScanID {
			return fmt.Errorf("insert scan: duplicate id %s", rec.ScanID)
		}
	}
	m.scans[userID] = append(m.scans[userID], rec.Clone())
	return nil
}

// UserScans returns copies, most recent first.
func (m *MemoryScans) UserScans(ctx context.Context, userID string) ([]model.ScanRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.scans[userID]
	out := make([]model.ScanRecord, len(stored))
	for i := range stored {
		out[i] = stored[i].Clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ScanTime.Equal(out[j].ScanTime) {
			return out[i].ScanID > out[j].ScanID
		}
		return out[i].ScanTime.After(out[j].ScanTime)
	})
	return out, nil
}

// IncrementTryOn bumps the try-on counter and returns the new value.
func (m *MemoryScans) IncrementTryOn(ctx context.Context, userID, scanID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.scans[userID]
	for i := range stored {
		if stored[i].ScanID == scanID {
			stored[i].TryOnCount++
			return stored[i].TryOnCount, nil
		}
	}
	return 0, fmt.Errorf("scan %s: %w", scanID, ErrNotFound)
}
