package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// OverrideStore is the persistence slice the override sweep needs.
type OverrideStore interface {
	DeleteExpiredOverrides(ctx context.Context, before time.Time) (int64, error)
}

// CacheBumper invalidates cached authorization decisions.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// OverrideSweepJob deletes expired permission overrides and invalidates the
// decision cache so the expiry crossing is visible immediately. The
// resolver already treats expired overrides as absent; the sweep keeps the
// table small and the cache honest.
type OverrideSweepJob struct {
	store  OverrideStore
	cache  CacheBumper
	logger *slog.Logger
	now    func() time.Time
}

// NewOverrideSweepJob constructs the job. cache may be nil.
func NewOverrideSweepJob(store OverrideStore, cache CacheBumper, logger *slog.Logger) *OverrideSweepJob {
	return &OverrideSweepJob{store: store, cache: cache, logger: logger, now: time.Now}
}

// Handle processes TaskOverrideSweep tasks.
func (j *OverrideSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	deleted, err := j.store.DeleteExpiredOverrides(ctx, j.now())
	if err != nil {
		j.logger.Error("override sweep", slog.Any("error", err))
		return err
	}
	if deleted == 0 {
		return nil
	}
	if j.cache != nil {
		if err := j.cache.Bump(ctx); err != nil {
			j.logger.Warn("override sweep cache bump", slog.Any("error", err))
		}
	}
	j.logger.Info("override sweep", slog.Int64("deleted", deleted))
	return nil
}
