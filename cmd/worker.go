package main

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// pollInterval is how often a worker loop checks for new work when its last
// pass found nothing — short enough to feel responsive, long enough not to
// hammer an idle queue.
const pollInterval = 2 * time.Second

// runWorkerLoop repeatedly invokes step until ctx is cancelled, sleeping
// pollInterval between passes that process zero items. step returns the
// number of items it processed (for the idle back-off) and any error; a
// non-nil error is logged and does not stop the loop. Workers keep running
// under transient failures; only ctx cancellation (the platform's own
// shutdown signal) ends a worker.
func runWorkerLoop(ctx context.Context, name string, step func(ctx context.Context) (int, error)) error {
	log := zap.L().With(zap.String("component", name))
	log.Info("worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopped")
			return nil
		default:
		}

		n, err := step(ctx)
		if err != nil {
			log.Error("worker pass failed", zap.Error(err))
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				log.Info("worker stopped")
				return nil
			case <-time.After(pollInterval):
			}
		}
	}
}
