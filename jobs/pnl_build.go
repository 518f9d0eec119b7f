package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/shiftledger/shiftledger/internal/jobs"
	"github.com/shiftledger/shiftledger/internal/pnl"
	"github.com/shiftledger/shiftledger/internal/shift"
)

// SnapshotBuilder is the subset of pnl.Service used by the job.
type SnapshotBuilder interface {
	Build(ctx context.Context, start, end time.Time) (pnl.BuildResult, error)
}

// PnLBuildJob builds P&L snapshots in the background.
type PnLBuildJob struct {
	Service SnapshotBuilder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPnLBuildJob initialises the snapshot handler.
func NewPnLBuildJob(service SnapshotBuilder, logger *slog.Logger, metrics *jobmetrics.Metrics) *PnLBuildJob {
	return &PnLBuildJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes the snapshot build.
func (j *PnLBuildJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("pnl build: handler not configured")
	}
	var payload PnLBuildPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	start, err := shift.ParseDate(payload.From)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	end, err := shift.ParseDate(payload.To)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskPnLBuild)
	defer func() {
		err = tracker.End(err)
	}()

	var res pnl.BuildResult
	res, err = j.Service.Build(ctx, start, end)
	if errors.Is(err, pnl.ErrInvalidPeriod) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		j.logger().Error("pnl build failed", slog.String("from", payload.From), slog.String("to", payload.To), slog.Any("error", err))
		return err
	}
	j.logger().Info("pnl snapshot stored",
		slog.String("from", payload.From),
		slog.String("to", payload.To),
		slog.Bool("changed", res.Changed),
	)
	return nil
}

func (j *PnLBuildJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPnLBuild))
	}
	return slog.Default().With(slog.String("job", TaskPnLBuild))
}

func (j *PnLBuildJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
