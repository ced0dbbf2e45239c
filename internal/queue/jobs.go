package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/FitScan/internal/model"
)

const (
	// MeasureScanTask hands a saved scan to the measurement pipeline.
	MeasureScanTask = "scan:measure"
	// TryOnTask is scheduled by try-on flows to bump a scan's counter.
	TryOnTask = "scan:tryon"

	// MeasurementsQueue is consumed by the external measurement service, not
	// by the FitScan worker.
	MeasurementsQueue = "measurements"
)

// MeasurePayload tells the pipeline which scan to populate.
type MeasurePayload struct {
	UserID   string  `json:"user_id"`
	ScanID   string  `json:"scan_id"`
	ImageURL *string `json:"image_url,omitempty"`
}

// TryOnPayload identifies the scan a try-on was made with.
type TryOnPayload struct {
	UserID string `json:"user_id"`
	ScanID string `json:"scan_id"`
}

// Enqueuer is the part of *asynq.Client the queue helpers need.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueMeasure enqueues a measurement job.
func EnqueueMeasure(ctx context.Context, client Enqueuer, payload MeasurePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(MeasureScanTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.Queue(MeasurementsQueue), asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue measure task: %w", err)
	}
	return nil
}

// EnqueueTryOn enqueues a try-on counter increment.
func EnqueueTryOn(ctx context.Context, client Enqueuer, payload TryOnPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(TryOnTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue try-on task: %w", err)
	}
	return nil
}

// Notifier forwards saved scans to the measurement queue.
type Notifier struct {
	client Enqueuer
}

// NewNotifier constructs a Notifier.
func NewNotifier(client Enqueuer) *Notifier {
	return &Notifier{client: client}
}

// ScanSaved implements session.Notifier.
func (n *Notifier) ScanSaved(ctx context.Context, userID string, record model.ScanRecord) error {
	return EnqueueMeasure(ctx, n.client, MeasurePayload{
		UserID:   userID,
		ScanID:   record.ScanID,
		ImageURL: record.ImageURL,
	})
}
