package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/hibiken/asynq"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/FitScan/internal/camera"
	"github.com/dharsanguruparan/FitScan/internal/config"
	"github.com/dharsanguruparan/FitScan/internal/countdown"
	"github.com/dharsanguruparan/FitScan/internal/history"
	"github.com/dharsanguruparan/FitScan/internal/model"
	"github.com/dharsanguruparan/FitScan/internal/platform"
	"github.com/dharsanguruparan/FitScan/internal/queue"
	"github.com/dharsanguruparan/FitScan/internal/repository"
	"github.com/dharsanguruparan/FitScan/internal/s3storage"
	"github.com/dharsanguruparan/FitScan/internal/session"
)

var userID string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fitscan: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fitscan",
		Short: "FitScan body-scan CLI",
		Long: `FitScan CLI runs a body scan against the local camera, lists a user's scan
history and records virtual try-ons.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&userID, "user", "u", os.Getenv("FITSCAN_USER"), "Signed-in user id")
	cmd.AddCommand(
		newScanCmd(),
		newHistoryCmd(),
		newTryOnCmd(),
	)
	return cmd
}

func newScanCmd() *cobra.Command {
	var yes bool
	var seconds int
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Preview the camera and capture a timed body scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if seconds > 0 {
				cfg.CountdownSeconds = seconds
			}
			repo, closeRepo, err := repository.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeRepo()

			out := cmd.OutOrStdout()
			hist := history.NewStore(repo)
			if userID != "" {
				if err := hist.Load(ctx, userID); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
				}
			}

			obs := newPrinter(out)
			opts := session.Options{
				UserID:       userID,
				Camera:       camera.NewManager(camera.NewV4L2Device(cfg.CameraDevice)),
				Scheduler:    countdown.New(nil, cfg.TickInterval),
				Saver:        repo,
				History:      hist,
				Constraints:  camera.Constraints{Width: cfg.CameraWidth, Height: cfg.CameraHeight},
				Duration:     cfg.CountdownSeconds,
				Device:       platform.Local(),
				Observer:     obs,
				CaptureStill: cfg.CaptureStill,
			}
			if cfg.CaptureStill {
				images, err := s3storage.New(cfg)
				if err != nil {
					return err
				}
				if err := images.EnsureBucket(ctx); err != nil {
					return err
				}
				opts.Images = images
			}
			sess, err := session.New(context.WithoutCancel(ctx), opts)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.Start(ctx); err != nil {
				return err
			}
			if !yes {
				fmt.Fprintln(out, "Camera ready. Step back into frame and press Enter to begin.")
				if err := waitForEnter(ctx, cmd.InOrStdin()); err != nil {
					_ = sess.Cancel()
					return err
				}
			}
			if err := sess.Start(ctx); err != nil {
				return err
			}
			return waitForResult(ctx, sess, obs, hist, out)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Start the countdown without waiting for Enter")
	cmd.Flags().IntVar(&seconds, "seconds", 0, "Override the countdown length")
	return cmd
}

func waitForResult(ctx context.Context, sess *session.Session, obs *printer, hist *history.Store, out io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			if err := sess.Cancel(); err != nil && !errors.Is(err, session.ErrInvalidTransition) {
				return err
			}
			fmt.Fprintln(out)
			return session.ErrCancelled
		case snap := <-obs.states:
			switch snap.State {
			case session.Idle:
				fmt.Fprintln(out)
				if snap.Record != nil {
					fmt.Fprintf(out, "Saved scan %s at %s\n", snap.Record.ScanID, snap.Record.ScanTime.Format(time.RFC1123))
				}
				printStats(out, hist.Stats())
				return nil
			case session.Failed:
				fmt.Fprintln(out)
				if f := sess.Failure(); f != nil {
					return f
				}
				return errors.New(snap.Error)
			case session.Cancelled:
				return session.ErrCancelled
			}
		}
	}
}

func waitForEnter(ctx context.Context, in io.Reader) error {
	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(in).ReadString('\n')
		if errors.Is(err, io.EOF) {
			err = nil
		}
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

type printer struct {
	out    io.Writer
	states chan session.Snapshot
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, states: make(chan session.Snapshot, 32)}
}

func (p *printer) OnState(snap session.Snapshot) {
	switch snap.State {
	case session.AcquiringCamera:
		fmt.Fprintln(p.out, "Opening camera...")
	case session.CountingDown:
		fmt.Fprintln(p.out, "Hold still.")
	case session.Completing:
		fmt.Fprintln(p.out, "\nSaving scan...")
	}
	select {
	case p.states <- snap:
	default:
	}
}

func (p *printer) OnTick(remaining int) {
	fmt.Fprintf(p.out, "\r%3ds remaining", remaining)
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List a user's scans and progress statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return session.ErrNoUser
			}
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			repo, closeRepo, err := repository.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeRepo()

			hist := history.NewStore(repo)
			if err := hist.Load(ctx, userID); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printRecords(out, hist.Records())
			printStats(out, hist.Stats())
			return nil
		},
	}
}

func newTryOnCmd() *cobra.Command {
	var scanID string
	cmd := &cobra.Command{
		Use:   "tryon",
		Short: "Record a virtual try-on against a scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return session.ErrNoUser
			}
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.QueueEnabled {
				client := asynq.NewClient(asynq.RedisClientOpt{
					Addr:     cfg.RedisAddr,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				})
				defer client.Close()
				if err := queue.EnqueueTryOn(ctx, client, queue.TryOnPayload{UserID: userID, ScanID: scanID}); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "try-on queued")
				return nil
			}
			repo, closeRepo, err := repository.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeRepo()
			count, err := repo.IncrementTryOn(ctx, userID, scanID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scan %s has %d try-ons\n", scanID, count)
			return nil
		},
	}
	cmd.Flags().StringVar(&scanID, "scan", "", "Scan id")
	_ = cmd.MarkFlagRequired("scan")
	return cmd
}

func printRecords(out io.Writer, records []model.ScanRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "no scans yet")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCAN\tTIME\tDEVICE\tTRY-ONS")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", rec.ScanID, rec.ScanTime.Local().Format("2006-01-02 15:04"), rec.Device, rec.TryOnCount)
	}
	_ = w.Flush()
}

func printStats(out io.Writer, stats history.Stats) {
	latest := "never"
	if stats.LatestScanTime != nil {
		latest = stats.LatestScanTime.Local().Format(time.RFC1123)
	}
	fmt.Fprintf(out, "total scans: %d  latest: %s  try-ons: %d\n", stats.TotalScans, latest, stats.TotalTryOns)
}
