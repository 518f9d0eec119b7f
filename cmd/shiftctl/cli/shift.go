package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shiftledger/shiftledger/internal/shift"
)

// ShiftResolveOptions defines the flags of shift resolve. Exactly one of
// Date or At is expected; At is an RFC3339 instant mapped to its shift.
type ShiftResolveOptions struct {
	Date       string
	At         string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ResolveShiftCommand prints the UTC window of a shift date.
func ResolveShiftCommand(opts ShiftResolveOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	date, at := strings.TrimSpace(opts.Date), strings.TrimSpace(opts.At)
	if (date == "") == (at == "") {
		_, _ = fmt.Fprintln(opts.Stderr, "shift resolve: exactly one of --date or --at is required")
		return 1
	}

	var window shift.Window
	if date != "" {
		w, err := shift.Resolve(date)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "shift resolve: %v\n", err)
			return 1
		}
		window = w
	} else {
		instant, err := time.Parse(time.RFC3339, at)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "shift resolve: invalid --at %q (expected RFC3339)\n", opts.At)
			return 1
		}
		d, err := shift.ShiftDateContaining(instant)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "shift resolve: %s is outside every shift: %v\n", at, err)
			return 1
		}
		window = shift.ForDate(d)
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(window); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "shift resolve: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintln(opts.Stdout, window.String())
	return 0
}
