package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FitScan/internal/camera"
	"github.com/dharsanguruparan/FitScan/internal/config"
	"github.com/dharsanguruparan/FitScan/internal/model"
	"github.com/dharsanguruparan/FitScan/internal/repository"
	"github.com/dharsanguruparan/FitScan/internal/session"
)

type testStream struct{}

func (testStream) ID() string  { return "test" }
func (testStream) Stop() error { return nil }

type testDevice struct {
	mu  sync.Mutex
	err error
}

func (d *testDevice) Open(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return testStream{}, nil
}

func newTestServer(t *testing.T, device camera.Device) (*httptest.Server, *repository.MemoryScans) {
	t.Helper()
	cfg := &config.Config{
		CameraWidth:      1280,
		CameraHeight:     720,
		CountdownSeconds: 3,
		TickInterval:     time.Millisecond,
		SignedURLTTL:     time.Minute,
	}
	repo := repository.NewMemoryScans()
	ctx, cancel := context.WithCancel(context.Background())
	srv := New(ctx, cfg, Deps{Repo: repo, Camera: camera.NewManager(device)})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.closeAll()
		cancel()
	})
	return ts, repo
}

func do(t *testing.T, method, url string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone) Mobile")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestScanFlowOverHTTP(t *testing.T) {
	ts, repo := newTestServer(t, &testDevice{})

	var snap session.Snapshot
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/users/u1/scan/start", &snap))
	require.Equal(t, session.Previewing, snap.State)

	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/users/u1/scan/start", &snap))
	require.Contains(t, []session.State{session.CountingDown, session.Completing, session.Idle}, snap.State)

	require.Eventually(t, func() bool {
		var current session.Snapshot
		do(t, http.MethodGet, ts.URL+"/users/u1/scan", &current)
		return current.State == session.Idle && current.Record != nil
	}, 2*time.Second, 5*time.Millisecond)

	var hist historyResponse
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/users/u1/scans", &hist))
	require.Len(t, hist.Scans, 1)
	require.Equal(t, model.DeviceMobile, hist.Scans[0].Device)
	require.Equal(t, 1, hist.Stats.TotalScans)
	require.NotNil(t, hist.Stats.LatestScanTime)

	scanID := hist.Scans[0].ScanID
	var tryOn map[string]int
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/users/u1/scans/"+scanID+"/tryon", &tryOn))
	require.Equal(t, 1, tryOn["tryOnCount"])

	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/users/u1/scans", &hist))
	require.Equal(t, 1, hist.Stats.TotalTryOns)

	stored, err := repo.UserScans(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, stored, 1)

	require.Equal(t, http.StatusNotFound, do(t, http.MethodPost, ts.URL+"/users/u1/scans/missing/tryon", nil))
}

func TestStartPermissionDenied(t *testing.T) {
	ts, _ := newTestServer(t, &testDevice{err: camera.ErrPermissionDenied})

	var resp errorResponse
	require.Equal(t, http.StatusForbidden, do(t, http.MethodPost, ts.URL+"/users/u1/scan/start", &resp))
	require.Equal(t, session.Failed, resp.Session.State)
	require.Equal(t, session.StageAcquire, resp.Session.Stage)
}

func TestCancelOutsideScanConflicts(t *testing.T) {
	ts, _ := newTestServer(t, &testDevice{})
	var resp errorResponse
	require.Equal(t, http.StatusConflict, do(t, http.MethodPost, ts.URL+"/users/u1/scan/cancel", &resp))
	require.Equal(t, session.Idle, resp.Session.State)
}

func TestSecondUserCannotTakeCamera(t *testing.T) {
	ts, _ := newTestServer(t, &testDevice{})

	var snap session.Snapshot
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/users/u1/scan/start", &snap))

	var resp errorResponse
	require.Equal(t, http.StatusServiceUnavailable, do(t, http.MethodPost, ts.URL+"/users/u2/scan/start", &resp))

	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/users/u1/scan/cancel", &snap))
	require.Equal(t, session.Cancelled, snap.State)

	require.Equal(t, http.StatusNoContent, do(t, http.MethodDelete, ts.URL+"/users/u1/session", nil))
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/users/u2/scan/start", &snap))
	require.Equal(t, session.Previewing, snap.State)
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, &testDevice{})
	var body map[string]string
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/healthz", &body))
	require.Equal(t, "ok", body["status"])
}

func TestUserScanLoadsHistoryOnFirstUse(t *testing.T) {
	repo := repository.NewMemoryScans()
	prior := model.ScanRecord{
		ScanID:     "scan_prior",
		ScanTime:   time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC),
		Device:     model.DeviceDesktop,
		TryOnCount: 2,
	}
	require.NoError(t, repo.SaveScan(context.Background(), "u1", prior))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := New(ctx, &config.Config{CountdownSeconds: 3, TickInterval: time.Millisecond}, Deps{
		Repo:   repo,
		Camera: camera.NewManager(&testDevice{}),
	})
	defer srv.closeAll()

	us, err := srv.userScan(context.Background(), "u1", "")
	require.NoError(t, err)
	require.Equal(t, "u1", us.history.UserID())
	require.Len(t, us.history.Records(), 1)
	require.Equal(t, 2, us.history.Stats().TotalTryOns)

	again, err := srv.userScan(context.Background(), "u1", "")
	require.NoError(t, err)
	require.Same(t, us, again)
}
