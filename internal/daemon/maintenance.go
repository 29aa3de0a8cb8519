package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	purgeInterval = time.Hour

	// Invites stay queryable for a week past their event date before the
	// purge removes them and, via cascade, their notification jobs.
	inviteRetention = 7 * 24 * time.Hour
)

type jobRunner interface {
	Run(ctx context.Context) (int, error)
}

type invitePurger interface {
	PurgeExpiredInvites(ctx context.Context, cutoff time.Time) (int64, error)
}

// runProcessorLoop drains due notification jobs on every tick. This is the
// resident counterpart of the HTTP trigger; both run the same processor.
func runProcessorLoop(ctx context.Context, runner jobRunner, logger *zap.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := runner.Run(ctx)
			if err != nil {
				logger.Error("job processing tick failed", zap.Error(err))
				continue
			}
			if count > 0 {
				logger.Info("job processing tick", zap.Int("count", count))
			}
		}
	}
}

// runPurgeLoop removes invites whose event date is past the retention
// window, once per hour.
func runPurgeLoop(ctx context.Context, purger invitePurger, logger *zap.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := purger.PurgeExpiredInvites(ctx, time.Now().Add(-inviteRetention))
			if err != nil {
				logger.Error("invite purge failed", zap.Error(err))
				continue
			}
			if purged > 0 {
				logger.Info("purged expired invites", zap.Int64("count", purged))
			}
		}
	}
}
