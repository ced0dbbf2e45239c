package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FitScan/internal/model"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestNotifierEnqueuesMeasure(t *testing.T) {
	client := &fakeEnqueuer{}
	url := "s3://scan-images/scans/u1/s1.raw"
	n := NewNotifier(client)

	require.NoError(t, n.ScanSaved(context.Background(), "u1", model.ScanRecord{ScanID: "s1", ImageURL: &url}))
	require.Len(t, client.tasks, 1)
	require.Equal(t, MeasureScanTask, client.tasks[0].Type())

	var payload MeasurePayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	require.Equal(t, "u1", payload.UserID)
	require.Equal(t, "s1", payload.ScanID)
	require.Equal(t, url, *payload.ImageURL)

	var queue string
	for _, opt := range client.opts[0] {
		if opt.Type() == asynq.QueueOpt {
			queue = opt.Value().(string)
		}
	}
	require.Equal(t, MeasurementsQueue, queue)
}

func TestEnqueueTryOnWrapsErrors(t *testing.T) {
	client := &fakeEnqueuer{err: errors.New("redis down")}
	err := EnqueueTryOn(context.Background(), client, TryOnPayload{UserID: "u1", ScanID: "s1"})
	require.ErrorContains(t, err, "enqueue try-on task")
}
