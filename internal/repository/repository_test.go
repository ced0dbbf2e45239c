package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FitScan/internal/config"
	"github.com/dharsanguruparan/FitScan/internal/database"
	"github.com/dharsanguruparan/FitScan/internal/model"
)

// exerciseScans checks the contract every backend must satisfy. userID is
// unique per run so a shared PostgreSQL database does not leak between runs.
func exerciseScans(t *testing.T, repo Scans, userID string) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	url := "https://images.local/still.raw"
	height := 181.5

	records := []model.ScanRecord{
		{ScanID: userID + "-a", ScanTime: base, Device: model.DeviceDesktop},
		{ScanID: userID + "-c", ScanTime: base.Add(2 * time.Hour), Device: model.DeviceMobile, ImageURL: &url},
		{ScanID: userID + "-b", ScanTime: base.Add(time.Hour), Device: model.DeviceDesktop, Height: &height},
	}
	for _, rec := range records {
		require.NoError(t, repo.SaveScan(ctx, userID, rec))
	}
	require.Error(t, repo.SaveScan(ctx, userID, records[0]))

	got, err := repo.UserScans(ctx, userID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, userID+"-c", got[0].ScanID)
	require.Equal(t, userID+"-b", got[1].ScanID)
	require.Equal(t, userID+"-a", got[2].ScanID)
	require.True(t, got[0].ScanTime.Equal(base.Add(2*time.Hour)))
	require.Equal(t, model.DeviceMobile, got[0].Device)
	require.NotNil(t, got[0].ImageURL)
	require.Equal(t, url, *got[0].ImageURL)
	require.Nil(t, got[0].Height)
	require.NotNil(t, got[1].Height)
	require.InDelta(t, height, *got[1].Height, 1e-9)
	require.Nil(t, got[2].Weight)
	require.Nil(t, got[2].ImageURL)

	count, err := repo.IncrementTryOn(ctx, userID, userID+"-a")
	require.NoError(t, err)
	require.Equal(t, 1, count)
	count, err = repo.IncrementTryOn(ctx, userID, userID+"-a")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	_, err = repo.IncrementTryOn(ctx, userID, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = repo.IncrementTryOn(ctx, "someone-else", userID+"-a")
	require.ErrorIs(t, err, ErrNotFound)

	none, err := repo.UserScans(ctx, "someone-else")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestMemoryScans(t *testing.T) {
	exerciseScans(t, NewMemoryScans(), "user-1")
}

func TestSQLiteScans(t *testing.T) {
	db, err := database.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer db.Close()
	exerciseScans(t, NewSQLiteScans(db), "user-1")
}

func TestPostgresScans(t *testing.T) {
	dsn := os.Getenv("FITSCAN_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("FITSCAN_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.Connect(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, database.EnsureSchema(ctx, pool))
	exerciseScans(t, NewPostgresScans(pool), "pg-"+time.Now().UTC().Format("20060102150405.000000000"))
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()

	repo, closeFn, err := Open(ctx, &config.Config{Store: config.StoreMemory})
	require.NoError(t, err)
	require.IsType(t, &MemoryScans{}, repo)
	closeFn()

	repo, closeFn, err = Open(ctx, &config.Config{Store: config.StoreSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	require.IsType(t, &SQLiteScans{}, repo)
	closeFn()

	_, _, err = Open(ctx, &config.Config{Store: "mongo"})
	require.Error(t, err)
}
