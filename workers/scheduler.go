package workers

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// CurseSweeper lifts curses whose expiry has passed.
type CurseSweeper interface {
	SweepExpiredCurses(ctx context.Context) (int64, error)
}

// StartScheduler runs the payment watcher and the curse sweeper as singleton jobs.
// Each cycle gets its own deadline so a slow indexer never overlaps the next run.
func StartScheduler(ctx context.Context, watcher *PaymentWatcher, sweeper CurseSweeper, watchEvery, sweepEvery time.Duration, logger *zap.Logger) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(watchEvery),
		gocron.NewTask(func() {
			cycleCtx, cancel := context.WithTimeout(ctx, watchEvery)
			defer cancel()
			if _, err := watcher.Poll(cycleCtx); err != nil {
				logger.Warn("payment watch cycle failed", zap.Error(err))
			}
		}),
		gocron.WithName("payment-watcher"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(sweepEvery),
		gocron.NewTask(func() {
			cycleCtx, cancel := context.WithTimeout(ctx, sweepEvery)
			defer cancel()
			if _, err := sweeper.SweepExpiredCurses(cycleCtx); err != nil {
				logger.Warn("curse sweep failed", zap.Error(err))
			}
		}),
		gocron.WithName("curse-sweeper"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	logger.Info("scheduler started",
		zap.Duration("watch_interval", watchEvery),
		zap.Duration("sweep_interval", sweepEvery))
	return sched, nil
}
