package app

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shareloom/core/internal/modules/interaction"
	pkgcron "github.com/shareloom/core/internal/pkg/cron"
	"github.com/shareloom/core/internal/pkg/taskqueue"
)

// registerCronJobs wires the periodic maintenance work: requeueing jobs
// whose workers died mid-flight and pruning interaction events no window
// can see anymore.
func registerCronJobs(sched *pkgcron.Scheduler, db *gorm.DB, queue *taskqueue.Queue, log *zap.Logger) {
	interactions := interaction.NewService(db)

	sched.Register(pkgcron.Job{
		Name:     "reap-expired-leases",
		Interval: 30 * time.Second,
		Fn: func(ctx context.Context) error {
			n, err := queue.ReapExpiredLeases(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				log.Info("requeued jobs with expired leases", zap.Int("count", n))
			}
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:     "purge-stale-interactions",
		Interval: 6 * time.Hour,
		Fn: func(ctx context.Context) error {
			n, err := interactions.PurgeExpired(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				log.Info("purged stale interaction events", zap.Int64("count", n))
			}
			return nil
		},
	})
}
