package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FITSCAN_STORE", "")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Address)
	require.Equal(t, StoreSQLite, cfg.Store)
	require.Equal(t, 30, cfg.CountdownSeconds)
	require.Equal(t, time.Second, cfg.TickInterval)
	require.Equal(t, 1280, cfg.CameraWidth)
	require.Equal(t, 720, cfg.CameraHeight)
	require.False(t, cfg.CaptureStill)
	require.False(t, cfg.QueueEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FITSCAN_STORE", "Postgres")
	t.Setenv("FITSCAN_COUNTDOWN_SECONDS", "10")
	t.Setenv("FITSCAN_TICK_INTERVAL", "250ms")
	t.Setenv("FITSCAN_CAPTURE_STILL", "true")
	t.Setenv("FITSCAN_CAMERA_WIDTH", "not-a-number")
	t.Setenv("FITSCAN_WORKERS", "-3")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, StorePostgres, cfg.Store)
	require.Equal(t, 10, cfg.CountdownSeconds)
	require.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	require.True(t, cfg.CaptureStill)
	require.Equal(t, 1280, cfg.CameraWidth)
	require.Equal(t, 2, cfg.ProcessingPool)
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	t.Setenv("FITSCAN_STORE", "mongo")
	_, err := Load()
	require.Error(t, err)
}
