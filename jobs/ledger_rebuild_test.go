package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/shiftledger/shiftledger/internal/jobs"
	"github.com/shiftledger/shiftledger/internal/ledger"
	"github.com/shiftledger/shiftledger/internal/pnl"
	"github.com/shiftledger/shiftledger/internal/shift"
)

type fakeRebuilder struct {
	family     ledger.Family
	start, end time.Time
	all        bool
	failDate   string
}

func (f *fakeRebuilder) results(family ledger.Family, start, end time.Time) []ledger.RangeResult {
	var out []ledger.RangeResult
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		res := ledger.RangeResult{Date: d, Row: ledger.Row{Family: family, ShiftDate: d, Status: ledger.StatusOK}}
		if shift.FormatDate(d) == f.failDate {
			res.Row = ledger.Row{}
			res.Err = ledger.ErrUsageSourceUnavailable
		} else if family == ledger.FamilyMeat {
			res.Row.Status = ledger.StatusAlert
		}
		out = append(out, res)
	}
	return out
}

func (f *fakeRebuilder) RebuildRange(ctx context.Context, family ledger.Family, start, end time.Time) ([]ledger.RangeResult, error) {
	f.family, f.start, f.end = family, start, end
	return f.results(family, start, end), nil
}

func (f *fakeRebuilder) RebuildAll(ctx context.Context, start, end time.Time) (map[ledger.Family][]ledger.RangeResult, error) {
	f.all, f.start, f.end = true, start, end
	out := make(map[ledger.Family][]ledger.RangeResult)
	for _, fam := range ledger.Families {
		out[fam] = f.results(fam, start, end)
	}
	return out, nil
}

func ledgerTask(t *testing.T, payload LedgerRebuildPayload) *asynq.Task {
	t.Helper()
	task, err := NewLedgerRebuildTask(payload)
	require.NoError(t, err)
	return task
}

func TestLedgerRebuildJobSingleFamily(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	fake := &fakeRebuilder{}
	job := NewLedgerRebuildJob(fake, nil, metrics, 7)

	err := job.Handle(context.Background(), ledgerTask(t, LedgerRebuildPayload{Family: "rolls", From: "2025-08-01", To: "2025-08-03"}))
	require.NoError(t, err)
	require.Equal(t, ledger.FamilyRolls, fake.family)
	require.Equal(t, "2025-08-01", shift.FormatDate(fake.start))
	require.Equal(t, "2025-08-03", shift.FormatDate(fake.end))
	require.False(t, fake.all)
}

func TestLedgerRebuildJobLookbackAllFamilies(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	fake := &fakeRebuilder{}
	job := NewLedgerRebuildJob(fake, nil, metrics, 3)
	job.clock = func() time.Time { return time.Date(2025, 8, 10, 13, 0, 0, 0, time.UTC) } // 20:00 local

	require.NoError(t, job.Handle(context.Background(), ledgerTask(t, LedgerRebuildPayload{})))
	require.True(t, fake.all)
	require.Equal(t, "2025-08-07", shift.FormatDate(fake.start))
	require.Equal(t, "2025-08-09", shift.FormatDate(fake.end))

	flagged := testutil.ToFloat64(metrics.FlaggedCounter(string(ledger.FamilyMeat), string(ledger.StatusAlert)))
	require.Equal(t, 3.0, flagged)
}

func TestLedgerRebuildJobReportsPartialFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	fake := &fakeRebuilder{failDate: "2025-08-02"}
	job := NewLedgerRebuildJob(fake, nil, metrics, 1)

	err := job.Handle(context.Background(), ledgerTask(t, LedgerRebuildPayload{Family: "DRINKS", From: "2025-08-01", To: "2025-08-03"}))
	require.ErrorIs(t, err, ErrPartialRebuild)
	require.False(t, errors.Is(err, asynq.SkipRetry))

	expected := `
# HELP shiftledger_jobs_total Total job executions partitioned by job name and status.
# TYPE shiftledger_jobs_total counter
shiftledger_jobs_total{job="ledger:rebuild",status="failure"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "shiftledger_jobs_total"))
}

func TestLedgerRebuildJobRejectsBadPayload(t *testing.T) {
	job := NewLedgerRebuildJob(&fakeRebuilder{}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()), 1)

	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerRebuild, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), ledgerTask(t, LedgerRebuildPayload{From: "2025-8-1", To: "2025-08-03"}))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), ledgerTask(t, LedgerRebuildPayload{Family: "FRIES"}))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeBuilder struct {
	calls int
	err   error
}

func (f *fakeBuilder) Build(ctx context.Context, start, end time.Time) (pnl.BuildResult, error) {
	f.calls++
	if f.err != nil {
		return pnl.BuildResult{}, f.err
	}
	return pnl.BuildResult{Changed: true}, nil
}

func TestPnLBuildJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	fake := &fakeBuilder{}
	job := NewPnLBuildJob(fake, nil, jobmetrics.NewMetrics(reg))

	body, err := json.Marshal(PnLBuildPayload{From: "2025-08-01", To: "2025-08-31"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskPnLBuild, body)))
	require.Equal(t, 1, fake.calls)

	fake.err = pnl.ErrInvalidPeriod
	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskPnLBuild, body)), asynq.SkipRetry)

	fake.err = errors.New("db down")
	err = job.Handle(context.Background(), asynq.NewTask(TaskPnLBuild, body))
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry))

	expected := `
# HELP shiftledger_jobs_total Total job executions partitioned by job name and status.
# TYPE shiftledger_jobs_total counter
shiftledger_jobs_total{job="pnl:build",status="failure"} 2
shiftledger_jobs_total{job="pnl:build",status="success"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "shiftledger_jobs_total"))
}
