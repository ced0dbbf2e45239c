package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/FitScan/internal/queue"
	"github.com/dharsanguruparan/FitScan/internal/repository"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	repo repository.Scans
}

// NewProcessor constructs a worker processor.
func NewProcessor(repo repository.Scans) *Processor {
	return &Processor{repo: repo}
}

// Handler registers the try-on job handler. Measurement jobs live on their
// own queue and are served elsewhere.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TryOnTask, p.handleTryOn)
	return mux
}

func (p *Processor) handleTryOn(ctx context.Context, task *asynq.Task) error {
	var payload queue.TryOnPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.UserID == "" || payload.ScanID == "" {
		return fmt.Errorf("try-on payload missing ids: %w", asynq.SkipRetry)
	}
	count, err := p.repo.IncrementTryOn(ctx, payload.UserID, payload.ScanID)
	if err != nil {
		log.Printf("try-on for %s/%s failed: %v", payload.UserID, payload.ScanID, err)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	log.Printf("scan %s now has %d try-ons", payload.ScanID, count)
	return nil
}
