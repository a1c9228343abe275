package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/partnerdesk/partnerdesk/internal/shared"
)

// StaleSweeper is the amendment engine slice the sweep needs.
type StaleSweeper interface {
	SweepStale(ctx context.Context, systemActorID int64) (int, error)
}

// StaleAmendmentSweepJob auto-rejects PENDING amendment requests whose
// pinned expected version was overtaken by another approval.
type StaleAmendmentSweepJob struct {
	engine StaleSweeper
	logger *slog.Logger
}

// NewStaleAmendmentSweepJob constructs the job.
func NewStaleAmendmentSweepJob(engine StaleSweeper, logger *slog.Logger) *StaleAmendmentSweepJob {
	return &StaleAmendmentSweepJob{engine: engine, logger: logger}
}

// Handle processes TaskStaleAmendmentSweep tasks.
func (j *StaleAmendmentSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	closed, err := j.engine.SweepStale(ctx, shared.SystemActorID)
	if err != nil {
		j.logger.Error("stale amendment sweep", slog.Any("error", err))
		return err
	}
	if closed > 0 {
		j.logger.Info("stale amendment sweep", slog.Int("closed", closed))
	}
	return nil
}
