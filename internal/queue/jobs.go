// Package queue schedules artifact expiries as durable Redis tasks so that
// physical cleanup survives a process restart.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// ExpireArtifactTask fires once when an artifact's lifetime elapses.
	ExpireArtifactTask = "artifact:expire"
	// ExpiryQueue is the queue expiry tasks are enqueued on.
	ExpiryQueue = "expiry"
)

// ExpirePayload is serialized into the task payload.
type ExpirePayload struct {
	ArtifactID string `json:"artifact_id"`
}

// enqueuer is the slice of *asynq.Client used here.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler enqueues fire-once expiry tasks. It satisfies expiry.Scheduler.
type Scheduler struct {
	client enqueuer
}

// NewScheduler wraps an asynq client.
func NewScheduler(client *asynq.Client) *Scheduler {
	return &Scheduler{client: client}
}

// NewExpireTask builds the task for id.
func NewExpireTask(id string) (*asynq.Task, error) {
	data, err := json.Marshal(ExpirePayload{ArtifactID: id})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ExpireArtifactTask, data), nil
}

// Schedule enqueues the expiry of id to be processed at the given instant.
// Expiry tasks are never retried and the task id is unique per artifact.
func (s *Scheduler) Schedule(ctx context.Context, id string, at time.Time) error {
	task, err := NewExpireTask(id)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(at),
		asynq.MaxRetry(0),
		asynq.TaskID("expire:"+id),
		asynq.Queue(ExpiryQueue),
	)
	if err != nil {
		return fmt.Errorf("enqueue expire task: %w", err)
	}
	return nil
}
