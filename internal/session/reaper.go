package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const DefaultReapInterval = 5 * time.Minute

// StartReaper evicts sessions idle for longer than ttl until ctx is done.
// A non-positive ttl disables eviction.
func StartReaper(ctx context.Context, store Store, ttl, interval time.Duration, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		logger.Info("session reaper disabled")
		return
	}
	if interval <= 0 {
		interval = DefaultReapInterval
	}

	logger.Info("session reaper started",
		zap.Duration("idle_ttl", ttl),
		zap.Duration("interval", interval),
	)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Debug("session reaper stopped")
				return
			case <-ticker.C:
				Reap(ctx, store, ttl, logger)
			}
		}
	}()
}

// Reap runs a single eviction pass.
func Reap(ctx context.Context, store Store, ttl time.Duration, logger *zap.Logger) int {
	removed, err := store.DeleteIdle(ctx, time.Now().Add(-ttl))
	if err != nil {
		logger.Warn("evicting idle sessions failed", zap.Error(err))
		return 0
	}
	if removed > 0 {
		logger.Info("evicted idle sessions", zap.Int("sessions", removed))
	}
	return removed
}
