package pnl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shiftledger/shiftledger/internal/platform/cache"
	"github.com/shiftledger/shiftledger/internal/shared"
	"github.com/shiftledger/shiftledger/internal/shift"
)

// Store provides snapshot inputs and persistence.
type Store interface {
	RevenueRows(ctx context.Context, start, end time.Time) ([]RevenueRow, error)
	ExpenseRows(ctx context.Context, start, end time.Time) ([]ExpenseRow, error)
	GetSnapshot(ctx context.Context, start, end time.Time) (Snapshot, error)
	UpsertSnapshot(ctx context.Context, snap Snapshot) error
}

// Locker serialises builds of the same period across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// Options carries optional collaborators.
type Options struct {
	Cache  *cache.Cache
	Locker Locker
	Logger *slog.Logger
	Clock  func() time.Time
}

// Service builds and reads P&L snapshots.
type Service struct {
	store  Store
	cache  *cache.Cache
	locker Locker
	logger *slog.Logger
	clock  func() time.Time
}

// NewService constructs the snapshot builder.
func NewService(store Store, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{store: store, cache: opts.Cache, locker: opts.Locker, logger: logger, clock: clock}
}

// Build aggregates the inclusive period and upserts its snapshot.
func (s *Service) Build(ctx context.Context, start, end time.Time) (BuildResult, error) {
	start, end = shift.Day(start), shift.Day(end)
	if start.After(end) {
		return BuildResult{}, ErrInvalidPeriod
	}
	label := shift.FormatDate(start) + ".." + shift.FormatDate(end)

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, shared.SnapshotLockKey(shift.FormatDate(start), shift.FormatDate(end)))
		if errors.Is(err, shared.ErrLockHeld) {
			return BuildResult{}, fmt.Errorf("%w: %s", ErrBuildInProgress, label)
		}
		if err != nil {
			return BuildResult{}, fmt.Errorf("pnl: lock %s: %w", label, err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release pnl lock", slog.String("period", label), slog.Any("error", err))
			}
		}()
	}

	var previous *Snapshot
	prev, err := s.store.GetSnapshot(ctx, start, end)
	switch {
	case err == nil:
		previous = &prev
	case errors.Is(err, ErrSnapshotNotFound):
	default:
		return BuildResult{}, fmt.Errorf("pnl: load snapshot %s: %w", label, err)
	}

	revenue, err := s.store.RevenueRows(ctx, start, end)
	if err != nil {
		return BuildResult{}, fmt.Errorf("pnl: revenue rows %s: %w", label, err)
	}
	expenses, err := s.store.ExpenseRows(ctx, start, end)
	if err != nil {
		return BuildResult{}, fmt.Errorf("pnl: expense rows %s: %w", label, err)
	}

	snap := Aggregate(start, end, revenue, expenses)
	snap.BuiltAt = s.clock()
	if err := s.store.UpsertSnapshot(ctx, snap); err != nil {
		return BuildResult{}, fmt.Errorf("pnl: upsert snapshot %s: %w", label, err)
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump pnl cache", slog.Any("error", err))
	}

	changed := previous == nil || !previous.SameContent(snap)
	s.logger.Info("built pnl snapshot",
		slog.String("period", label),
		slog.String("revenue_total", snap.RevenueTotal.StringFixed(2)),
		slog.String("expense_total", snap.ExpenseTotal.StringFixed(2)),
		slog.Int("receipts", snap.POSReceiptCount),
		slog.Bool("changed", changed),
	)
	return BuildResult{Snapshot: snap, Changed: changed, Previous: previous}, nil
}

// Aggregate computes totals and checksums over the rows. The inputs are
// copied and re-sorted by (date, id) so caller ordering never leaks into the
// checksum.
func Aggregate(start, end time.Time, revenue []RevenueRow, expenses []ExpenseRow) Snapshot {
	rev := append([]RevenueRow(nil), revenue...)
	exp := append([]ExpenseRow(nil), expenses...)
	SortRevenue(rev)
	SortExpenses(exp)

	revTotal := decimal.Zero
	for _, r := range rev {
		revTotal = revTotal.Add(r.Amount)
	}
	expTotal := decimal.Zero
	for _, e := range exp {
		expTotal = expTotal.Add(e.Amount)
	}
	return Snapshot{
		PeriodStart:     shift.Day(start),
		PeriodEnd:       shift.Day(end),
		RevenueTotal:    revTotal,
		ExpenseTotal:    expTotal,
		POSReceiptCount: len(rev),
		RevenueChecksum: RevenueChecksum(rev),
		ExpenseChecksum: ExpenseChecksum(exp),
	}
}

// Get returns the stored snapshot, served from the read cache when present.
func (s *Service) Get(ctx context.Context, start, end time.Time) (Snapshot, error) {
	start, end = shift.Day(start), shift.Day(end)
	if start.After(end) {
		return Snapshot{}, ErrInvalidPeriod
	}
	key, err := s.cache.BuildKey(ctx, "snapshot", shift.FormatDate(start), shift.FormatDate(end))
	if err != nil {
		s.logger.Warn("pnl cache key", slog.Any("error", err))
		return s.store.GetSnapshot(ctx, start, end)
	}
	var snap Snapshot
	err = s.cache.FetchJSON(ctx, key, &snap, func(ctx context.Context) (any, error) {
		return s.store.GetSnapshot(ctx, start, end)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
