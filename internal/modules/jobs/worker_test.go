package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shareloom/core/internal/pkg/apperr"
	pkgredis "github.com/shareloom/core/internal/pkg/redis"
	"github.com/shareloom/core/internal/pkg/taskqueue"
)

type countingHandler struct {
	calls int32
	err   error
}

func (h *countingHandler) Handle(ctx context.Context, job *taskqueue.Job) (interface{}, error) {
	atomic.AddInt32(&h.calls, 1)
	if h.err != nil {
		return nil, h.err
	}
	return map[string]string{"ok": "1"}, nil
}

func workerQueue(t *testing.T) *taskqueue.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return taskqueue.New(pkgredis.Wrap(rdb))
}

func waitForState(t *testing.T, q *taskqueue.Queue, id string, want taskqueue.JobState) *taskqueue.Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, found, err := q.Status(context.Background(), id)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if found && job.State == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached state %s", id, want)
	return nil
}

func TestPoolCompletesJob(t *testing.T) {
	q := workerQueue(t)
	h := &countingHandler{}

	pool := NewPool(q, zap.NewNop(), 10*time.Millisecond)
	pool.Register("image", h, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	job, err := q.Enqueue(ctx, "image", FilePayload{SourcePath: "/x", ContentID: "c"}, taskqueue.Options{})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	done := waitForState(t, q, job.ID, taskqueue.StateCompleted)
	if done.AttemptsMade != 1 {
		t.Fatalf("attempts=%d, want 1", done.AttemptsMade)
	}
	if atomic.LoadInt32(&h.calls) != 1 {
		t.Fatalf("handler calls=%d, want exactly 1", h.calls)
	}
}

func TestPoolTerminalErrorFailsWithoutRetry(t *testing.T) {
	q := workerQueue(t)
	h := &countingHandler{err: apperr.TerminalJob("broken bytes")}

	pool := NewPool(q, zap.NewNop(), 10*time.Millisecond)
	pool.Register("pdf", h, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	job, err := q.Enqueue(ctx, "pdf", FilePayload{SourcePath: "/x", ContentID: "c"}, taskqueue.Options{MaxAttempts: 5})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	failed := waitForState(t, q, job.ID, taskqueue.StateFailed)
	if failed.AttemptsMade != 1 {
		t.Fatalf("attempts=%d, terminal failure must not retry", failed.AttemptsMade)
	}
	if failed.FailureReason == "" {
		t.Fatal("failure reason must be recorded")
	}
}

func TestPoolRetryableErrorRequeues(t *testing.T) {
	q := workerQueue(t)
	h := &countingHandler{err: errors.New("transient")}

	pool := NewPool(q, zap.NewNop(), 10*time.Millisecond)
	pool.Register("image", h, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	job, err := q.Enqueue(ctx, "image", FilePayload{SourcePath: "/x", ContentID: "c"},
		taskqueue.Options{MaxAttempts: 2, Backoff: time.Millisecond})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	failed := waitForState(t, q, job.ID, taskqueue.StateFailed)
	if failed.AttemptsMade != 2 {
		t.Fatalf("attempts=%d, want the full retry budget", failed.AttemptsMade)
	}
	if atomic.LoadInt32(&h.calls) != 2 {
		t.Fatalf("handler calls=%d, want 2", h.calls)
	}
}
