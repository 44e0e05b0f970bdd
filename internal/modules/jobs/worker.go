package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shareloom/core/internal/pkg/apperr"
	"github.com/shareloom/core/internal/pkg/taskqueue"
)

const handlerTimeout = 2 * time.Minute

// Pool is the bounded worker pool. Each job type gets its own fixed set of
// long-lived workers pulling from the shared queue; the queue's lease
// keeps a claimed job invisible to the other workers.
type Pool struct {
	queue *taskqueue.Queue
	log   *zap.Logger
	poll  time.Duration

	mu       sync.Mutex
	handlers map[string]Handler
	workers  map[string]int
}

func NewPool(queue *taskqueue.Queue, log *zap.Logger, poll time.Duration) *Pool {
	if poll <= 0 {
		poll = time.Second
	}
	return &Pool{
		queue:    queue,
		log:      log,
		poll:     poll,
		handlers: make(map[string]Handler),
		workers:  make(map[string]int),
	}
}

// Register binds a handler and a worker count to a job type. Must be
// called before Start.
func (p *Pool) Register(jobType string, h Handler, workers int) {
	if workers < 1 {
		workers = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[jobType] = h
	p.workers[jobType] = workers
}

// Start launches the workers; they run until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for jobType, n := range p.workers {
		for i := 0; i < n; i++ {
			go p.runWorker(ctx, jobType, p.handlers[jobType])
		}
	}
}

func (p *Pool) runWorker(ctx context.Context, jobType string, h Handler) {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// drain everything due before sleeping again
		for {
			job, err := p.queue.Claim(ctx, jobType)
			if err != nil {
				p.log.Warn("claim failed", zap.String("type", jobType), zap.Error(err))
				break
			}
			if job == nil {
				break
			}
			p.runJob(ctx, h, job)
		}
	}
}

func (p *Pool) runJob(ctx context.Context, h Handler, job *taskqueue.Job) {
	jobCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	result, err := h.Handle(jobCtx, job)
	if err == nil {
		if cerr := p.queue.Complete(ctx, job.ID, result); cerr != nil {
			p.log.Warn("complete failed", zap.String("job", job.ID), zap.Error(cerr))
		}
		return
	}

	terminal := apperr.CodeOf(err) == apperr.CodeTerminalJob
	p.log.Warn("job attempt failed",
		zap.String("job", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempt", job.AttemptsMade),
		zap.Bool("terminal", terminal),
		zap.Error(err),
	)
	if ferr := p.queue.Fail(ctx, job.ID, err.Error(), terminal); ferr != nil {
		p.log.Warn("fail report failed", zap.String("job", job.ID), zap.Error(ferr))
	}
}
