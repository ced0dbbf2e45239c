// Package main runs the FitScan kiosk API: it owns the local camera and lets
// a browser UI drive scan sessions over HTTP.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	_ "github.com/joho/godotenv/autoload"

	"github.com/dharsanguruparan/FitScan/internal/api"
	"github.com/dharsanguruparan/FitScan/internal/camera"
	"github.com/dharsanguruparan/FitScan/internal/config"
	"github.com/dharsanguruparan/FitScan/internal/repository"
	"github.com/dharsanguruparan/FitScan/internal/s3storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := repository.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeRepo()

	deps := api.Deps{
		Repo:   repo,
		Camera: camera.NewManager(camera.NewV4L2Device(cfg.CameraDevice)),
	}
	if cfg.CaptureStill {
		images, err := s3storage.New(cfg)
		if err != nil {
			log.Fatalf("init storage: %v", err)
		}
		if err := images.EnsureBucket(ctx); err != nil {
			log.Fatalf("ensure bucket: %v", err)
		}
		deps.Images = images
	}
	if cfg.QueueEnabled {
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		deps.Queue = client
	}

	srv := api.New(ctx, cfg, deps)
	log.Printf("FitScan using %s store, camera %s", cfg.Store, cfg.CameraDevice)
	if err := srv.Run(ctx); err != nil {
		log.Printf("server stopped: %v", err)
		os.Exit(1)
	}
}
