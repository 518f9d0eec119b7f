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
	"github.com/shiftledger/shiftledger/internal/ledger"
	"github.com/shiftledger/shiftledger/internal/shift"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// LedgerRebuilder is the subset of ledger.Service used by the job.
type LedgerRebuilder interface {
	RebuildRange(ctx context.Context, family ledger.Family, start, end time.Time) ([]ledger.RangeResult, error)
	RebuildAll(ctx context.Context, start, end time.Time) (map[ledger.Family][]ledger.RangeResult, error)
}

// ErrPartialRebuild reports that some dates of a rebuild failed. The task is
// retried so transient POS outages heal on their own.
var ErrPartialRebuild = errors.New("ledger rebuild: some dates failed")

// LedgerRebuildJob rebuilds ledger ranges in the background.
type LedgerRebuildJob struct {
	Service         LedgerRebuilder
	Logger          *slog.Logger
	Metrics         *jobmetrics.Metrics
	DefaultLookback int
	clock           func() time.Time
}

// NewLedgerRebuildJob initialises the rebuild handler.
func NewLedgerRebuildJob(service LedgerRebuilder, logger *slog.Logger, metrics *jobmetrics.Metrics, lookback int) *LedgerRebuildJob {
	return &LedgerRebuildJob{
		Service:         service,
		Logger:          logger,
		Metrics:         metrics,
		DefaultLookback: lookback,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the rebuild.
func (j *LedgerRebuildJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("ledger rebuild: handler not configured")
	}
	var payload LedgerRebuildPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	start, end, err := j.period(payload)
	if err != nil {
		j.logger().Warn("invalid rebuild payload", slog.Any("error", err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	var family ledger.Family
	if payload.Family != "" {
		family, err = ledger.ParseFamily(payload.Family)
		if err != nil {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
	}

	tracker := j.metrics().Track(TaskLedgerRebuild)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(
		slog.String("from", shift.FormatDate(start)),
		slog.String("to", shift.FormatDate(end)),
		slog.String("family", payload.Family),
	)
	logger.Info("starting ledger rebuild")

	results := make(map[ledger.Family][]ledger.RangeResult)
	if family != "" {
		var rows []ledger.RangeResult
		rows, err = j.Service.RebuildRange(ctx, family, start, end)
		if err != nil {
			logger.Error("ledger rebuild failed", slog.Any("error", err))
			return err
		}
		results[family] = rows
	} else {
		results, err = j.Service.RebuildAll(ctx, start, end)
		if err != nil {
			logger.Error("ledger rebuild failed", slog.Any("error", err))
			return err
		}
	}

	failed := j.record(results)
	logger.Info("completed ledger rebuild", slog.Int("failed_dates", failed))
	if failed > 0 {
		return fmt.Errorf("%w: %d", ErrPartialRebuild, failed)
	}
	return nil
}

func (j *LedgerRebuildJob) record(results map[ledger.Family][]ledger.RangeResult) int {
	failed := 0
	for family, rows := range results {
		var ok, bad int
		flagged := map[ledger.Status]int{}
		for _, res := range rows {
			if res.Err != nil {
				bad++
				continue
			}
			ok++
			if res.Row.Status != ledger.StatusOK {
				flagged[res.Row.Status]++
			}
		}
		j.metrics().AddDates(string(family), false, ok)
		j.metrics().AddDates(string(family), true, bad)
		for status, n := range flagged {
			j.metrics().AddFlagged(string(family), string(status), n)
		}
		failed += bad
	}
	return failed
}

func (j *LedgerRebuildJob) period(payload LedgerRebuildPayload) (time.Time, time.Time, error) {
	if payload.From != "" || payload.To != "" {
		start, err := shift.ParseDate(payload.From)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end, err := shift.ParseDate(payload.To)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if start.After(end) {
			return time.Time{}, time.Time{}, ledger.ErrInvalidRange
		}
		return start, end, nil
	}
	days := payload.LookbackDays
	if days <= 0 {
		days = j.DefaultLookback
	}
	if days <= 0 {
		days = 1
	}
	end := shift.LastClosed(j.now())
	return end.AddDate(0, 0, -(days - 1)), end, nil
}

func (j *LedgerRebuildJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerRebuild))
	}
	return slog.Default().With(slog.String("job", TaskLedgerRebuild))
}

func (j *LedgerRebuildJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *LedgerRebuildJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
