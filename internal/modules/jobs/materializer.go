package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shareloom/core/internal/pkg/taskqueue"
)

// Materializer turns a staged upload into stored derivatives. The queued
// implementation is the normal path; the sync one exists for development
// setups without workers.
type Materializer interface {
	// Materialize schedules (or runs) the transform for the given job type
	// and returns the job id a client can poll.
	Materialize(ctx context.Context, jobType string, payload FilePayload) (string, error)
}

// QueuedMaterializer enqueues the transform onto the durable queue.
type QueuedMaterializer struct {
	queue *taskqueue.Queue
}

func NewQueuedMaterializer(queue *taskqueue.Queue) *QueuedMaterializer {
	return &QueuedMaterializer{queue: queue}
}

func (m *QueuedMaterializer) Materialize(ctx context.Context, jobType string, payload FilePayload) (string, error) {
	job, err := m.queue.Enqueue(ctx, jobType, payload, taskqueue.Options{})
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

// SyncMaterializer runs the transform inline on the request goroutine.
type SyncMaterializer struct {
	handlers map[string]Handler
}

func NewSyncMaterializer(handlers map[string]Handler) *SyncMaterializer {
	return &SyncMaterializer{handlers: handlers}
}

func (m *SyncMaterializer) Materialize(ctx context.Context, jobType string, payload FilePayload) (string, error) {
	h, ok := m.handlers[jobType]
	if !ok {
		return "", fmt.Errorf("jobs: no handler for type %q", jobType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	now := time.Now()
	job := &taskqueue.Job{
		ID:           uuid.New().String(),
		Type:         jobType,
		Payload:      raw,
		State:        taskqueue.StateActive,
		AttemptsMade: 1,
		MaxAttempts:  1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := h.Handle(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}
