package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/shiftledger/shiftledger/internal/ledger"
	"github.com/shiftledger/shiftledger/internal/pnl"
	"github.com/shiftledger/shiftledger/jobs"
)

type stubRebuilder struct {
	failOn  string
	family  ledger.Family
	allCall bool
}

func (s *stubRebuilder) results(family ledger.Family, start, end time.Time) []ledger.RangeResult {
	var out []ledger.RangeResult
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Format("2006-01-02") == s.failOn {
			out = append(out, ledger.RangeResult{Date: d, Err: ledger.ErrUsageSourceUnavailable})
			continue
		}
		variance := 0.0
		out = append(out, ledger.RangeResult{Date: d, Row: ledger.Row{Family: family, ShiftDate: d, Status: ledger.StatusOK, VarianceQty: &variance}})
	}
	return out
}

func (s *stubRebuilder) RebuildRange(ctx context.Context, family ledger.Family, start, end time.Time) ([]ledger.RangeResult, error) {
	s.family = family
	return s.results(family, start, end), nil
}

func (s *stubRebuilder) RebuildAll(ctx context.Context, start, end time.Time) (map[ledger.Family][]ledger.RangeResult, error) {
	s.allCall = true
	out := make(map[ledger.Family][]ledger.RangeResult)
	for _, f := range ledger.Families {
		out[f] = s.results(f, start, end)
	}
	return out, nil
}

func TestLedgerRebuildCommandJSON(t *testing.T) {
	svc := &stubRebuilder{}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := NewLedgerCLI(svc).RebuildCommand(context.Background(), LedgerRebuildOptions{
		Family:     "meat",
		From:       "2025-08-08",
		To:         "2025-08-10",
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Zero(t, code)
	require.Empty(t, stderr.String())
	require.Equal(t, ledger.FamilyMeat, svc.family)

	var summary LedgerRebuildSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.OK)
	require.Len(t, summary.Dates, 3)
	require.Equal(t, "2025-08-08", summary.Dates[0].Date)
	require.Equal(t, "OK", summary.Dates[0].Status)
}

func TestLedgerRebuildCommandPartialFailure(t *testing.T) {
	svc := &stubRebuilder{failOn: "2025-08-09"}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := NewLedgerCLI(svc).RebuildCommand(context.Background(), LedgerRebuildOptions{
		From:       "2025-08-08",
		To:         "2025-08-10",
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Equal(t, ExitPartialFailure, code)
	require.True(t, svc.allCall)

	var summary LedgerRebuildSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.False(t, summary.OK)
	require.Equal(t, 3, summary.Failed)
	require.Len(t, summary.Dates, 9)
	for _, day := range summary.Dates {
		if day.Date == "2025-08-09" {
			require.Contains(t, day.Error, "usage source unavailable")
		}
	}
}

func TestLedgerRebuildCommandRejectsBadInput(t *testing.T) {
	cases := []LedgerRebuildOptions{
		{From: "2025-8-9"},
		{From: "2025-08-10", To: "2025-08-09"},
		{From: "2025-08-09", Family: "fries"},
	}
	for _, opts := range cases {
		stderr := new(bytes.Buffer)
		opts.Stdout = new(bytes.Buffer)
		opts.Stderr = stderr
		require.Equal(t, 1, NewLedgerCLI(&stubRebuilder{}).RebuildCommand(context.Background(), opts))
		require.Contains(t, stderr.String(), "ledger rebuild:")
	}
}

type stubBuilder struct {
	err error
}

func (s stubBuilder) Build(ctx context.Context, start, end time.Time) (pnl.BuildResult, error) {
	if s.err != nil {
		return pnl.BuildResult{}, s.err
	}
	snap := pnl.Snapshot{
		PeriodStart:     start,
		PeriodEnd:       end,
		RevenueTotal:    decimal.RequireFromString("1759.75"),
		ExpenseTotal:    decimal.RequireFromString("900.10"),
		POSReceiptCount: 3,
	}
	return pnl.BuildResult{Snapshot: snap, Changed: true}, nil
}

func TestPnLBuildCommand(t *testing.T) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := NewPnLCLI(stubBuilder{}).BuildCommand(context.Background(), PnLBuildOptions{
		From:   "2025-08-01",
		To:     "2025-08-31",
		Stdout: stdout,
		Stderr: stderr,
	})
	require.Zero(t, code)
	require.Contains(t, stdout.String(), "profit   859.65")
	require.Contains(t, stdout.String(), "(3 receipts)")

	stdout.Reset()
	code = NewPnLCLI(stubBuilder{}).BuildCommand(context.Background(), PnLBuildOptions{
		From: "2025-08-01", To: "2025-08-31", JSONOutput: true, Stdout: stdout, Stderr: stderr,
	})
	require.Zero(t, code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	require.Equal(t, "859.65", out["profit_total"])
}

func TestPnLBuildCommandSurfacesErrors(t *testing.T) {
	stderr := new(bytes.Buffer)
	code := NewPnLCLI(stubBuilder{err: errors.New("boom")}).BuildCommand(context.Background(), PnLBuildOptions{
		From: "2025-08-01", To: "2025-08-31", Stdout: new(bytes.Buffer), Stderr: stderr,
	})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "boom")
}

func TestResolveShiftCommand(t *testing.T) {
	stdout := new(bytes.Buffer)
	require.Zero(t, ResolveShiftCommand(ShiftResolveOptions{Date: "2025-08-09", Stdout: stdout}))
	require.Equal(t, "2025-08-09 [2025-08-09T11:00:00Z, 2025-08-09T20:00:00Z)\n", stdout.String())

	stdout.Reset()
	require.Zero(t, ResolveShiftCommand(ShiftResolveOptions{At: "2025-08-10T01:30:00+07:00", Stdout: stdout}))
	require.Contains(t, stdout.String(), "2025-08-09 [")

	stderr := new(bytes.Buffer)
	require.Equal(t, 1, ResolveShiftCommand(ShiftResolveOptions{At: "2025-08-10T10:00:00+07:00", Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "outside every shift")

	stderr.Reset()
	require.Equal(t, 1, ResolveShiftCommand(ShiftResolveOptions{Stdout: new(bytes.Buffer), Stderr: stderr}))
}

func TestBuildTask(t *testing.T) {
	task, err := BuildTask(jobs.TaskLedgerRebuild, TriggerOptions{Family: "ROLLS"})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskLedgerRebuild, task.Type())
	var payload jobs.LedgerRebuildPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "ROLLS", payload.Family)
	require.Equal(t, "shiftctl", payload.RequestedBy)

	_, err = BuildTask(jobs.TaskPnLBuild, TriggerOptions{From: "2025-08-01"})
	require.Error(t, err)

	_, err = BuildTask("inventory:reval", TriggerOptions{})
	require.Error(t, err)
}
