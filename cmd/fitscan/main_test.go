package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FitScan/internal/history"
	"github.com/dharsanguruparan/FitScan/internal/model"
	"github.com/dharsanguruparan/FitScan/internal/session"
)

func TestPrintRecordsAndStats(t *testing.T) {
	var buf bytes.Buffer
	printRecords(&buf, nil)
	require.Contains(t, buf.String(), "no scans yet")

	buf.Reset()
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	printRecords(&buf, []model.ScanRecord{{ScanID: "scan_1", ScanTime: now, Device: model.DeviceDesktop, TryOnCount: 2}})
	require.Contains(t, buf.String(), "scan_1")
	require.Contains(t, buf.String(), "desktop")

	buf.Reset()
	printStats(&buf, history.Stats{TotalScans: 1, LatestScanTime: &now, TotalTryOns: 2})
	require.Contains(t, buf.String(), "total scans: 1")
	require.Contains(t, buf.String(), "try-ons: 2")

	buf.Reset()
	printStats(&buf, history.Stats{})
	require.Contains(t, buf.String(), "latest: never")
}

func TestPrinterForwardsStates(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)
	p.OnState(session.Snapshot{State: session.CountingDown})
	p.OnTick(3)

	snap := <-p.states
	require.Equal(t, session.CountingDown, snap.State)
	require.Contains(t, buf.String(), "3s remaining")
}

func TestWaitForEnter(t *testing.T) {
	require.NoError(t, waitForEnter(context.Background(), strings.NewReader("\n")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked := &blockingReader{}
	require.ErrorIs(t, waitForEnter(ctx, blocked), context.Canceled)
}

type blockingReader struct{}

func (blockingReader) Read(p []byte) (int, error) {
	select {}
}
