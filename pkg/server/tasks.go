package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nicktill/clusterwatch/pkg/config"
	"github.com/nicktill/clusterwatch/pkg/storage"
	"github.com/nicktill/clusterwatch/pkg/storage/badger"
)

// errNoEntities is recorded when a pass has nothing to regenerate
var errNoEntities = errors.New("no entities configured or stored")

// RunRegeneration regenerates the configured entities on startup and then
// every interval until ctx is cancelled.
func (a *App) RunRegeneration(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	interval := a.Config.Regeneration.Interval
	if interval <= 0 {
		a.Logger.Info("scheduled regeneration disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.Logger.Info("running initial regeneration")
	a.regenerateWithRetry(ctx)

	for {
		select {
		case <-ticker.C:
			a.Logger.Info("scheduled regeneration started")
			a.regenerateWithRetry(ctx)
		case <-ctx.Done():
			a.Logger.Info("stopping regeneration scheduler")
			return
		}
	}
}

// regenerateWithRetry runs one pass, retrying failed passes with
// exponential backoff: delay, 2*delay, 4*delay...
func (a *App) regenerateWithRetry(ctx context.Context) error {
	maxRetries := a.Config.Regeneration.MaxRetries
	baseDelay := a.Config.Regeneration.RetryDelay

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<(attempt-1))
			a.Logger.Info("retrying regeneration",
				zap.Duration("delay", delay), zap.Int("attempt", attempt+1), zap.Int("max_attempts", maxRetries+1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		start := time.Now()
		var n int
		n, err = a.regeneratePass(ctx)
		if err == nil {
			a.RegenMonitor.RecordSuccess(n)
			a.Logger.Info("regeneration completed",
				zap.Int("entities", n), zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
			return nil
		}

		a.RegenMonitor.RecordFailure(err)
		a.Logger.Warn("regeneration failed",
			zap.Int("attempt", attempt+1), zap.Int("max_attempts", maxRetries+1), zap.Error(err))

		if status := a.RegenMonitor.Status(); status.ConsecutiveErrors > config.RegenerationMaxRetries {
			a.Logger.Error("regeneration keeps failing", zap.Int("consecutive_errors", status.ConsecutiveErrors))
		}
		if errors.Is(err, errNoEntities) {
			break
		}
	}

	a.Logger.Warn("regeneration gave up, will retry on next schedule", zap.Error(err))
	return err
}

// regeneratePass regenerates every target entity once
func (a *App) regeneratePass(ctx context.Context) (int, error) {
	if a.StorageMonitor != nil {
		if err := a.StorageMonitor.CheckLimit(); err != nil {
			return 0, err
		}
	}

	entities, err := a.targetEntities(ctx)
	if err != nil {
		return 0, err
	}
	if len(entities) == 0 {
		return 0, errNoEntities
	}

	passCtx, cancel := context.WithTimeout(ctx, config.RegenerationTimeout)
	defer cancel()

	results, err := a.Regenerator.RegenerateAll(passCtx, entities)
	return len(results), err
}

// targetEntities returns the configured entities, or every stored entity
// when none are configured.
func (a *App) targetEntities(ctx context.Context) ([]string, error) {
	if len(a.Config.Regeneration.Entities) > 0 {
		return a.Config.Regeneration.Entities, nil
	}
	listCtx, cancel := context.WithTimeout(ctx, config.EntitiesTimeout)
	defer cancel()
	return a.Repo.Entities(listCtx)
}

// RunBadgerGC runs BadgerDB value log GC periodically. Other backends
// return immediately.
func RunBadgerGC(ctx context.Context, repo storage.Repository, logger *zap.Logger, wg *sync.WaitGroup) {
	defer wg.Done()

	badgerStore, ok := repo.(*badger.Storage)
	if !ok {
		logger.Debug("storage is not BadgerDB, skipping GC")
		return
	}

	ticker := time.NewTicker(config.BadgerGCInterval)
	defer ticker.Stop()

	logger.Info("BadgerDB GC scheduler started", zap.Duration("interval", config.BadgerGCInterval))

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			// An error means nothing was rewritten
			if err := badgerStore.RunGC(config.BadgerGCDiscardRatio); err != nil {
				logger.Debug("GC found nothing to reclaim", zap.Duration("duration", time.Since(start)))
			} else {
				logger.Info("GC reclaimed disk space", zap.Duration("duration", time.Since(start)))
			}
		case <-ctx.Done():
			logger.Info("stopping BadgerDB GC scheduler")
			return
		}
	}
}
