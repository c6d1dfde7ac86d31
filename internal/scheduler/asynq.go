package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TaskTypeFinalize is the asynq task type for deferred job finalization.
	TaskTypeFinalize = "job:finalize"

	// QueueJobs is the asynq queue finalization tasks are placed on.
	QueueJobs = "jobs"
)

type finalizeTaskPayload struct {
	JobID string `json:"jobId"`
}

// Asynq schedules finalizations as delayed asynq tasks on Redis. Unlike the
// in-process Timer, pending finalizations survive a process restart.
type Asynq struct {
	client *asynq.Client
}

func NewAsynq(client *asynq.Client) *Asynq {
	return &Asynq{client: client}
}

// Schedule enqueues a finalize task to be processed after delay. The task is
// never retried: the finalize step contains its own failure handling.
func (s *Asynq) Schedule(ctx context.Context, jobID string, delay time.Duration) error {
	payload, err := json.Marshal(finalizeTaskPayload{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TaskTypeFinalize, payload)
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueJobs),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue finalize task: %w", err)
	}
	return nil
}

// FinalizeHandler adapts the finalize callback to an asynq task handler.
func FinalizeHandler(fn FinalizeFunc) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload finalizeTaskPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("failed to unmarshal task payload: %w", err)
		}
		fn(payload.JobID)
		return nil
	}
}
