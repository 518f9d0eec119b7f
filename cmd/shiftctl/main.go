// Command shiftctl runs ledger rebuilds, snapshot builds and shift lookups
// against the configured database without going through the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/shiftledger/shiftledger/cmd/shiftctl/cli"
	"github.com/shiftledger/shiftledger/internal/app"
	"github.com/shiftledger/shiftledger/internal/platform/cache"
	"github.com/shiftledger/shiftledger/internal/platform/db"
)

const usage = `usage:
  shiftctl ledger rebuild --from YYYY-MM-DD [--to YYYY-MM-DD] [--family ROLLS|MEAT|DRINKS] [--json]
  shiftctl pnl build --from YYYY-MM-DD --to YYYY-MM-DD [--json]
  shiftctl shift resolve (--date YYYY-MM-DD | --at RFC3339) [--json]
  shiftctl jobs trigger (ledger:rebuild|pnl:build) [--family F] [--from D] [--to D]
  shiftctl jobs stats
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	group, command, rest := args[0], args[1], args[2:]
	switch group + " " + command {
	case "ledger rebuild":
		return ledgerRebuild(ctx, rest, stdout, stderr)
	case "pnl build":
		return pnlBuild(ctx, rest, stdout, stderr)
	case "shift resolve":
		return shiftResolve(rest, stdout, stderr)
	case "jobs stats":
		return jobsStats(ctx, stdout, stderr)
	case "jobs trigger":
		return jobsTrigger(ctx, rest, stdout, stderr)
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
}

func ledgerRebuild(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ledger rebuild", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := cli.LedgerRebuildOptions{Stdout: stdout, Stderr: stderr}
	fs.StringVar(&opts.Family, "family", "", "item family; empty rebuilds all")
	fs.StringVar(&opts.From, "from", "", "first shift date")
	fs.StringVar(&opts.To, "to", "", "last shift date (defaults to --from)")
	fs.BoolVar(&opts.JSONOutput, "json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	return withServices(ctx, stderr, func(services *app.Services) int {
		return cli.NewLedgerCLI(services.Ledger).RebuildCommand(ctx, opts)
	})
}

func pnlBuild(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pnl build", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := cli.PnLBuildOptions{Stdout: stdout, Stderr: stderr}
	fs.StringVar(&opts.From, "from", "", "period start")
	fs.StringVar(&opts.To, "to", "", "period end (inclusive)")
	fs.BoolVar(&opts.JSONOutput, "json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	return withServices(ctx, stderr, func(services *app.Services) int {
		return cli.NewPnLCLI(services.PnL).BuildCommand(ctx, opts)
	})
}

func shiftResolve(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("shift resolve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := cli.ShiftResolveOptions{Stdout: stdout, Stderr: stderr}
	fs.StringVar(&opts.Date, "date", "", "shift date")
	fs.StringVar(&opts.At, "at", "", "instant to map to its shift")
	fs.BoolVar(&opts.JSONOutput, "json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	return cli.ResolveShiftCommand(opts)
}

func jobsTrigger(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	name := args[0]
	fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts cli.TriggerOptions
	fs.StringVar(&opts.Family, "family", "", "item family (ledger:rebuild)")
	fs.StringVar(&opts.From, "from", "", "first date")
	fs.StringVar(&opts.To, "to", "", "last date")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	cfg, code := loadConfig(stderr)
	if cfg == nil {
		return code
	}
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() { _ = jobsCLI.Close() }()
	info, err := jobsCLI.Trigger(ctx, name, opts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	return 0
}

func jobsStats(ctx context.Context, stdout, stderr io.Writer) int {
	cfg, code := loadConfig(stderr)
	if cfg == nil {
		return code
	}
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() { _ = jobsCLI.Close() }()
	stats, err := jobsCLI.InspectQueue(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs stats: %v\n", err)
		return 1
	}
	if err := json.NewEncoder(stdout).Encode(stats); err != nil {
		return 1
	}
	return 0
}

func loadConfig(stderr io.Writer) (*app.Config, int) {
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return nil, 1
	}
	return cfg, 0
}

// withServices opens the database and redis, builds the services and hands
// them to fn. Redis is optional; without it rebuilds run unlocked.
func withServices(ctx context.Context, stderr io.Writer, fn func(*app.Services) int) int {
	cfg, code := loadConfig(stderr)
	if cfg == nil {
		return code
	}
	logger := app.NewLoggerTo(cfg, stderr)
	slog.SetDefault(logger)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "connect postgres: %v\n", err)
		return 1
	}
	defer pool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, running without locks", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() { _ = redisClient.Close() }()
	}

	services, err := app.NewServices(cfg, pool, redisClient, logger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "init services: %v\n", err)
		return 1
	}
	return fn(services)
}
