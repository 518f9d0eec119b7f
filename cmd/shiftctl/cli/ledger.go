package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shiftledger/shiftledger/internal/ledger"
	"github.com/shiftledger/shiftledger/internal/shift"
)

// ExitPartialFailure is returned when some dates could not be rebuilt.
const ExitPartialFailure = 10

// LedgerRebuilder is the subset of ledger.Service the CLI drives.
type LedgerRebuilder interface {
	RebuildRange(ctx context.Context, family ledger.Family, start, end time.Time) ([]ledger.RangeResult, error)
	RebuildAll(ctx context.Context, start, end time.Time) (map[ledger.Family][]ledger.RangeResult, error)
}

// LedgerCLI offers operational helpers around ledger rebuilds.
type LedgerCLI struct {
	service LedgerRebuilder
}

// NewLedgerCLI constructs the helper.
func NewLedgerCLI(service LedgerRebuilder) *LedgerCLI {
	return &LedgerCLI{service: service}
}

// LedgerRebuildOptions defines the flags of ledger rebuild.
type LedgerRebuildOptions struct {
	Family     string
	From       string
	To         string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// LedgerRebuildSummary is the structured outcome of a rebuild.
type LedgerRebuildSummary struct {
	From   string             `json:"from"`
	To     string             `json:"to"`
	OK     bool               `json:"ok"`
	Failed int                `json:"failed"`
	Dates  []LedgerRebuiltDay `json:"dates"`
}

// LedgerRebuiltDay reports one (family, date) outcome.
type LedgerRebuiltDay struct {
	Family   string   `json:"family"`
	Date     string   `json:"date"`
	Status   string   `json:"status,omitempty"`
	Variance *float64 `json:"variance_qty,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// RebuildCommand rebuilds the inclusive range and prints one line per date.
// An empty family rebuilds every family.
func (c *LedgerCLI) RebuildCommand(ctx context.Context, opts LedgerRebuildOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if c == nil || c.service == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "ledger rebuild: service not configured")
		return 1
	}
	from, err := shift.ParseDate(opts.From)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger rebuild: invalid --from %q (expected YYYY-MM-DD)\n", opts.From)
		return 1
	}
	to := from
	if strings.TrimSpace(opts.To) != "" {
		if to, err = shift.ParseDate(opts.To); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "ledger rebuild: invalid --to %q (expected YYYY-MM-DD)\n", opts.To)
			return 1
		}
	}
	if from.After(to) {
		_, _ = fmt.Fprintln(opts.Stderr, "ledger rebuild: --from must not be after --to")
		return 1
	}

	results := make(map[ledger.Family][]ledger.RangeResult)
	if strings.TrimSpace(opts.Family) == "" {
		results, err = c.service.RebuildAll(ctx, from, to)
	} else {
		family, parseErr := ledger.ParseFamily(opts.Family)
		if parseErr != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "ledger rebuild: %v\n", parseErr)
			return 1
		}
		results[family], err = c.service.RebuildRange(ctx, family, from, to)
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger rebuild: %v\n", err)
		return 1
	}

	summary := summariseRebuild(from, to, results)
	if err := writeLedgerOutput(opts, summary); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger rebuild: %v\n", err)
		return 1
	}
	if summary.Failed > 0 {
		return ExitPartialFailure
	}
	return 0
}

func summariseRebuild(from, to time.Time, results map[ledger.Family][]ledger.RangeResult) LedgerRebuildSummary {
	summary := LedgerRebuildSummary{From: shift.FormatDate(from), To: shift.FormatDate(to), Dates: []LedgerRebuiltDay{}}
	for family, items := range results {
		for _, item := range items {
			day := LedgerRebuiltDay{Family: string(family), Date: shift.FormatDate(item.Date)}
			if item.Err != nil {
				day.Error = item.Err.Error()
				summary.Failed++
			} else {
				day.Status = string(item.Row.Status)
				day.Variance = item.Row.VarianceQty
			}
			summary.Dates = append(summary.Dates, day)
		}
	}
	sort.Slice(summary.Dates, func(i, j int) bool {
		if summary.Dates[i].Date != summary.Dates[j].Date {
			return summary.Dates[i].Date < summary.Dates[j].Date
		}
		return summary.Dates[i].Family < summary.Dates[j].Family
	})
	summary.OK = summary.Failed == 0
	return summary
}

func writeLedgerOutput(opts LedgerRebuildOptions, summary LedgerRebuildSummary) error {
	if opts.JSONOutput {
		return json.NewEncoder(opts.Stdout).Encode(summary)
	}
	_, _ = fmt.Fprintf(opts.Stdout, "Ledger rebuild %s to %s\n", summary.From, summary.To)
	for _, day := range summary.Dates {
		if day.Error != "" {
			_, _ = fmt.Fprintf(opts.Stdout, " - %s %-6s FAILED %s\n", day.Date, day.Family, day.Error)
			continue
		}
		variance := "n/a"
		if day.Variance != nil {
			variance = fmt.Sprintf("%.2f", *day.Variance)
		}
		_, _ = fmt.Fprintf(opts.Stdout, " - %s %-6s %-12s variance %s\n", day.Date, day.Family, day.Status, variance)
	}
	if summary.Failed > 0 {
		_, _ = fmt.Fprintf(opts.Stdout, "%d date(s) failed.\n", summary.Failed)
	}
	return nil
}
