package server

import (
	"context"
	"time"

	"go.uber.org/zap"

	"agencyline/internal/engine"
	"agencyline/internal/logging"
)

// StartOverdueScheduler pauses projects with overdue payments every interval
// until ctx is cancelled. A non-positive interval disables it.
func StartOverdueScheduler(ctx context.Context, e engine.Engine, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		return
	}
	log = logging.OrNop(log).Named("overdue")
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runOverdueCheck(ctx, e, log)
			}
		}
	}()
}

func runOverdueCheck(ctx context.Context, e engine.Engine, log *zap.Logger) {
	paused, err := e.CheckAllOverdue(ctx, engine.SystemActor)
	if err != nil {
		log.Warn("overdue check failed", zap.Error(err))
	}
	if len(paused) > 0 {
		log.Info("paused projects with overdue payments", zap.Strings("project_ids", paused))
	}
}
