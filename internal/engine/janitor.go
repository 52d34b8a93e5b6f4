package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/healthconnect/feed-engine/internal/cache"
	"github.com/healthconnect/feed-engine/pkg/config"
	"github.com/healthconnect/feed-engine/pkg/logger"
)

// Janitor periodically drops snapshots that have aged past the freshness
// window, so a cold start never even considers them.
type Janitor struct {
	store     cache.Store
	logger    logger.Logger
	interval  time.Duration
	window    time.Duration
	scheduler gocron.Scheduler
}

func NewJanitor(store cache.Store, log logger.Logger, cfg *config.Config) *Janitor {
	return &Janitor{
		store:    store,
		logger:   log.WithComponent("SnapshotJanitor"),
		interval: cfg.Cache.CleanupInterval,
		window:   cfg.Cache.FreshnessWindow,
	}
}

// Schedule sets up the recurring cleanup job.
func (j *Janitor) Schedule(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create cleanup scheduler: %w", err)
	}
	j.scheduler = scheduler

	_, err = scheduler.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				j.logger.Info("Context cancelled, stopping snapshot cleanup job")
				return
			}

			sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			j.Sweep(sweepCtx)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule snapshot cleanup: %w", err)
	}

	scheduler.Start()

	go func() {
		<-ctx.Done()
		j.logger.Info("Stopping snapshot cleanup scheduler")
		if err := scheduler.Shutdown(); err != nil {
			j.logger.Error("Failed to shut down cleanup scheduler", "error", err)
		}
	}()

	return nil
}

// Sweep deletes stale and malformed snapshots in one pass.
func (j *Janitor) Sweep(ctx context.Context) {
	keys, err := j.store.Keys(ctx, cache.SnapshotKeyPrefix)
	if err != nil {
		j.logger.Error("Failed to list snapshot keys", "error", err)
		return
	}

	removed := 0
	for _, key := range keys {
		raw, err := j.store.Get(ctx, key)
		if err != nil {
			continue
		}

		snap, err := cache.DecodeSnapshot(raw)
		stale := err != nil || time.Since(snap.CachedAt) > j.window
		if !stale {
			continue
		}

		if err := j.store.Delete(ctx, key); err != nil {
			j.logger.Warn("Failed to delete stale snapshot", "key", key, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		j.logger.Info("Snapshot cleanup completed", "removed", removed)
	}
}
