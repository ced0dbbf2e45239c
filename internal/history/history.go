// Package history caches a user's past scans and derives the progress
// statistics shown next to the camera preview.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dharsanguruparan/FitScan/internal/model"
)

// ErrFetch matches every *FetchError under errors.Is.
var ErrFetch = errors.New("fetch scans")

// FetchError reports a failed history load.
type FetchError struct {
	UserID string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch scans for %s: %v", e.UserID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrFetch) succeed for any FetchError.
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// Fetcher returns every scan of a user, most recent first.
type Fetcher interface {
	UserScans(ctx context.Context, userID string) ([]model.ScanRecord, error)
}

// Stats are recomputed from the full record list after every change.
type Stats struct {
	TotalScans     int        `json:"totalScans"`
	LatestScanTime *time.Time `json:"latestScanTime,omitempty"`
	TotalTryOns    int        `json:"totalTryOns"`
}

// Store is the per-user cache.
type Store struct {
	fetcher Fetcher

	mu      sync.RWMutex
	userID  string
	records []model.ScanRecord
	stats   Stats
}

// NewStore constructs an empty Store.
func NewStore(fetcher Fetcher) *Store {
	return &Store{fetcher: fetcher}
}

// Load replaces the cache with the user's scans. On failure the previous
// cache, including its user scope, stays as it was.
func (s *Store) Load(ctx context.Context, userID string) error {
	records, err := s.fetcher.UserScans(ctx, userID)
	if err != nil {
		return &FetchError{UserID: userID, Err: err}
	}
	fresh := make([]model.ScanRecord, len(records))
	for i := range records {
		fresh[i] = records[i].Clone()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.records = fresh
	s.stats = computeStats(s.records)
	return nil
}

// Append inserts record at the head.
func (s *Store) Append(record model.ScanRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]model.ScanRecord, 0, len(s.records)+1)
	records = append(records, record.Clone())
	s.records = append(records, s.records...)
	s.stats = computeStats(s.records)
}

// Reset drops the cache when the user session ends or switches users.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = ""
	s.records = nil
	s.stats = Stats{}
}

// UserID returns the user the cache is scoped to.
func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Records returns a copy of the cached list, most recent first.
func (s *Store) Records() []model.ScanRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ScanRecord, len(s.records))
	for i := range s.records {
		out[i] = s.records[i].Clone()
	}
	return out
}

// Stats returns the current aggregates.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.stats
	if out.LatestScanTime != nil {
		t := *out.LatestScanTime
		out.LatestScanTime = &t
	}
	return out
}

func computeStats(records []model.ScanRecord) Stats {
	stats := Stats{TotalScans: len(records)}
	if len(records) > 0 {
		latest := records[0].ScanTime
		stats.LatestScanTime = &latest
	}
	for _, r := range records {
		stats.TotalTryOns += r.TryOnCount
	}
	return stats
}
