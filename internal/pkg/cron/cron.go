// Package cron runs named background jobs on fixed intervals. It drives the
// queue lease reaper and storage hygiene sweeps.
package cron

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job defines a scheduled background task.
type Job struct {
	Name     string
	Interval time.Duration
	Fn       func(ctx context.Context) error
}

type jobState struct {
	Job
	mu        sync.Mutex
	running   bool
	lastErr   error
	lastRunAt time.Time
	nextRunAt time.Time
}

// Scheduler manages a collection of interval jobs.
type Scheduler struct {
	mu   sync.RWMutex
	log  *zap.Logger
	jobs map[string]*jobState
}

// New creates an empty Scheduler.
func New(log *zap.Logger) *Scheduler {
	return &Scheduler{log: log, jobs: make(map[string]*jobState)}
}

// Register adds a job to the scheduler. Must be called before Start.
func (s *Scheduler) Register(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name] = &jobState{
		Job:       job,
		nextRunAt: time.Now().Add(job.Interval),
	}
}

// Start launches all registered jobs; each runs in its own goroutine until
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, js := range s.jobs {
		go s.runLoop(ctx, js)
	}
}

func (s *Scheduler) runLoop(ctx context.Context, js *jobState) {
	for {
		wait := time.Until(js.nextRunAt)
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			s.execute(ctx, js)
			js.mu.Lock()
			js.nextRunAt = time.Now().Add(js.Interval)
			js.mu.Unlock()
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, js *jobState) {
	js.mu.Lock()
	if js.running {
		js.mu.Unlock()
		return
	}
	js.running = true
	js.mu.Unlock()

	start := time.Now()
	err := js.Fn(ctx)

	js.mu.Lock()
	js.running = false
	js.lastRunAt = start
	js.lastErr = err
	js.mu.Unlock()

	if err != nil {
		s.log.Warn("scheduled job failed", zap.String("job", js.Name), zap.Error(err))
	}
}
