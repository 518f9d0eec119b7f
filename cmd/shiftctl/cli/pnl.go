package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shiftledger/shiftledger/internal/pnl"
	"github.com/shiftledger/shiftledger/internal/shift"
)

// SnapshotBuilder is the subset of pnl.Service the CLI drives.
type SnapshotBuilder interface {
	Build(ctx context.Context, start, end time.Time) (pnl.BuildResult, error)
}

// PnLCLI builds snapshots from the command line.
type PnLCLI struct {
	service SnapshotBuilder
}

// NewPnLCLI constructs the helper.
func NewPnLCLI(service SnapshotBuilder) *PnLCLI {
	return &PnLCLI{service: service}
}

// PnLBuildOptions defines the flags of pnl build.
type PnLBuildOptions struct {
	From       string
	To         string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// BuildCommand builds the inclusive period and prints the totals.
func (c *PnLCLI) BuildCommand(ctx context.Context, opts PnLBuildOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if c == nil || c.service == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "pnl build: service not configured")
		return 1
	}
	from, err := shift.ParseDate(opts.From)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "pnl build: invalid --from %q (expected YYYY-MM-DD)\n", opts.From)
		return 1
	}
	to, err := shift.ParseDate(opts.To)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "pnl build: invalid --to %q (expected YYYY-MM-DD)\n", opts.To)
		return 1
	}
	res, err := c.service.Build(ctx, from, to)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "pnl build: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		out := struct {
			pnl.BuildResult
			ProfitTotal string `json:"profit_total"`
		}{BuildResult: res, ProfitTotal: res.Snapshot.ProfitTotal().StringFixed(2)}
		if err := json.NewEncoder(opts.Stdout).Encode(out); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "pnl build: %v\n", err)
			return 1
		}
		return 0
	}
	snap := res.Snapshot
	_, _ = fmt.Fprintf(opts.Stdout, "P&L %s to %s\n", shift.FormatDate(snap.PeriodStart), shift.FormatDate(snap.PeriodEnd))
	_, _ = fmt.Fprintf(opts.Stdout, "  revenue  %s (%d receipts)\n", snap.RevenueTotal.StringFixed(2), snap.POSReceiptCount)
	_, _ = fmt.Fprintf(opts.Stdout, "  expenses %s\n", snap.ExpenseTotal.StringFixed(2))
	_, _ = fmt.Fprintf(opts.Stdout, "  profit   %s\n", snap.ProfitTotal().StringFixed(2))
	if res.Previous != nil {
		if res.Changed {
			_, _ = fmt.Fprintln(opts.Stdout, "Inputs changed since the previous build.")
		} else {
			_, _ = fmt.Fprintln(opts.Stdout, "Inputs unchanged since the previous build.")
		}
	}
	return 0
}
