package db

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner removes registry entries last seen before cutoff (Unix seconds).
type Pruner interface {
	DeleteStale(ctx context.Context, cutoff int64) (int64, error)
}

// StartStaleContextCleaner drops contexts that have not been seen within
// retention, once per interval, until ctx is cancelled.
func StartStaleContextCleaner(
	ctx context.Context,
	pruner Pruner,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-retention).Unix()
				removed, err := pruner.DeleteStale(ctx, cutoff)
				if err != nil {
					log.Error("failed to prune stale contexts", zap.Error(err))
					continue
				}
				if removed > 0 {
					log.Info("pruned stale contexts", zap.Int64("removed", removed))
				}
			}
		}
	}()
}
