package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shiftledger/shiftledger/internal/shared"
	"github.com/shiftledger/shiftledger/internal/shift"
)

// Store persists one ledger row per (family, shift date).
type Store interface {
	GetRow(ctx context.Context, family Family, date time.Time) (Row, error)
	UpsertRow(ctx context.Context, row Row) error
	GetRange(ctx context.Context, family Family, start, end time.Time) ([]Row, error)
}

// UsageSource reports POS-derived consumption for a shift window. Zero means
// no activity; failures must be errors, never zero.
type UsageSource interface {
	Usage(ctx context.Context, family Family, window shift.Window) (float64, error)
}

// DeclarationSource loads the staff daily stock form for a shift.
type DeclarationSource interface {
	Declared(ctx context.Context, family Family, date time.Time) (Declaration, error)
}

// Locker serialises rebuilds of the same key across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// Auditor records manual corrections.
type Auditor interface {
	Record(ctx context.Context, entry shared.AuditEntry) error
}

// ServiceConfig carries optional collaborators.
type ServiceConfig struct {
	Tolerances   Tolerances
	Declarations DeclarationSource
	Locker       Locker
	Auditor      Auditor
	Logger       *slog.Logger
}

// Service rebuilds ledger rows from upstream data.
type Service struct {
	store        Store
	usage        UsageSource
	declarations DeclarationSource
	locker       Locker
	auditor      Auditor
	tolerances   Tolerances
	logger       *slog.Logger
}

// NewService constructs the rebuild orchestrator.
func NewService(store Store, usage UsageSource, cfg ServiceConfig) *Service {
	tol := cfg.Tolerances
	if len(tol) == 0 {
		tol = DefaultTolerances()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:        store,
		usage:        usage,
		declarations: cfg.Declarations,
		locker:       cfg.Locker,
		auditor:      cfg.Auditor,
		tolerances:   tol,
		logger:       logger,
	}
}

// Tolerances exposes the configured tolerance band.
func (s *Service) Tolerances() Tolerances {
	out := make(Tolerances, len(s.tolerances))
	for k, v := range s.tolerances {
		out[k] = v
	}
	return out
}

// Rebuild recomputes and upserts the row for family on date.
func (s *Service) Rebuild(ctx context.Context, family Family, date time.Time) (Row, error) {
	return s.rebuild(ctx, family, date, nil)
}

// SetOverrides stores manual corrections on a row and recomputes it. When the
// row's actual end changes, later stored rows are rebuilt in order so their
// carried-forward start follows the correction. Forward rebuilds stop at the
// first date without a stored row, the first date whose actual end is
// unchanged, or the first failure, which is logged and leaves that date for
// the next scheduled rebuild.
func (s *Service) SetOverrides(ctx context.Context, family Family, date time.Time, overrides Overrides, notes *string) (Row, error) {
	var before *float64
	row, err := s.rebuild(ctx, family, date, func(existing *Row) {
		before = clone(existing.ActualEndQty)
		existing.Overrides = copyOverrides(overrides)
		if notes != nil {
			existing.Notes = *notes
		}
	})
	if err != nil {
		return Row{}, err
	}
	s.audit(ctx, "ledger.overrides", row, map[string]any{
		"start_manual":      overrides.Start,
		"purchased_manual":  overrides.Purchased,
		"actual_end_manual": overrides.ActualEnd,
		"status":            row.Status,
	})
	s.carryForward(ctx, family, row.ShiftDate, before, row.ActualEndQty)
	return row, nil
}

// carryForward rebuilds stored rows after date while each rebuild keeps
// changing the actual end handed to the next date.
func (s *Service) carryForward(ctx context.Context, family Family, date time.Time, before, after *float64) {
	for !sameQty(before, after) {
		date = date.AddDate(0, 0, 1)
		label := shift.FormatDate(date)
		stored, err := s.store.GetRow(ctx, family, date)
		if errors.Is(err, ErrRowNotFound) {
			return
		}
		if err != nil {
			s.logger.Warn("carry correction forward", slog.String("family", string(family)), slog.String("date", label), slog.Any("error", err))
			return
		}
		row, err := s.Rebuild(ctx, family, date)
		if err != nil {
			s.logger.Warn("carry correction forward", slog.String("family", string(family)), slog.String("date", label), slog.Any("error", err))
			return
		}
		before, after = stored.ActualEndQty, row.ActualEndQty
	}
}

func sameQty(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Approve flags a stored row as reviewed without recomputing it.
func (s *Service) Approve(ctx context.Context, family Family, date time.Time, approved bool) (Row, error) {
	if _, err := ParseFamily(string(family)); err != nil {
		return Row{}, err
	}
	row, err := s.store.GetRow(ctx, family, shift.Day(date))
	if err != nil {
		return Row{}, err
	}
	row.Approved = approved
	if err := s.store.UpsertRow(ctx, row); err != nil {
		return Row{}, fmt.Errorf("ledger: upsert %s %s: %w", family, shift.FormatDate(row.ShiftDate), err)
	}
	s.audit(ctx, "ledger.approve", row, map[string]any{"approved": approved})
	return row, nil
}

// audit records a manual action. Failures are logged; the change itself stands.
func (s *Service) audit(ctx context.Context, action string, row Row, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	entry := shared.AuditEntry{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "ledger_row",
		EntityID: string(row.Family) + ":" + shift.FormatDate(row.ShiftDate),
		Meta:     meta,
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Warn("record ledger audit", slog.String("action", action), slog.String("entity_id", entry.EntityID), slog.Any("error", err))
	}
}

// Range returns stored rows ordered by date.
func (s *Service) Range(ctx context.Context, family Family, start, end time.Time) ([]Row, error) {
	if _, err := ParseFamily(string(family)); err != nil {
		return nil, err
	}
	start, end = shift.Day(start), shift.Day(end)
	if start.After(end) {
		return nil, ErrInvalidRange
	}
	return s.store.GetRange(ctx, family, start, end)
}

// RebuildRange rebuilds every date in [start, end] in order. Each date runs
// independently: a failure is recorded in its result and iteration goes on.
// Dates are never processed concurrently because each carries the previous
// date's persisted actual end forward.
func (s *Service) RebuildRange(ctx context.Context, family Family, start, end time.Time) ([]RangeResult, error) {
	if _, err := ParseFamily(string(family)); err != nil {
		return nil, err
	}
	start, end = shift.Day(start), shift.Day(end)
	if start.After(end) {
		return nil, ErrInvalidRange
	}
	runID := uuid.NewString()
	logger := s.logger.With(slog.String("run_id", runID), slog.String("family", string(family)))

	var results []RangeResult
	failed := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			results = append(results, RangeResult{Date: d, Err: err})
			failed++
			continue
		}
		row, err := s.Rebuild(ctx, family, d)
		if err != nil {
			failed++
			logger.Error("rebuild ledger date", slog.String("date", shift.FormatDate(d)), slog.Any("error", err))
		}
		results = append(results, RangeResult{Date: d, Row: row, Err: err})
	}
	logger.Info("rebuilt ledger range",
		slog.String("from", shift.FormatDate(start)),
		slog.String("to", shift.FormatDate(end)),
		slog.Int("dates", len(results)),
		slog.Int("failed", failed),
	)
	return results, nil
}

// RebuildAll rebuilds every family over the range. Families run concurrently;
// dates within a family stay sequential.
func (s *Service) RebuildAll(ctx context.Context, start, end time.Time) (map[Family][]RangeResult, error) {
	var (
		mu  sync.Mutex
		out = make(map[Family][]RangeResult, len(Families))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, family := range Families {
		family := family
		g.Go(func() error {
			results, err := s.RebuildRange(gctx, family, start, end)
			if err != nil {
				return err
			}
			mu.Lock()
			out[family] = results
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) rebuild(ctx context.Context, family Family, date time.Time, mutate func(*Row)) (Row, error) {
	if _, err := ParseFamily(string(family)); err != nil {
		return Row{}, err
	}
	date = shift.Day(date)
	label := shift.FormatDate(date)

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, shared.LedgerLockKey(string(family), label))
		if errors.Is(err, shared.ErrLockHeld) {
			return Row{}, fmt.Errorf("%w: %s %s", ErrRebuildInProgress, family, label)
		}
		if err != nil {
			return Row{}, fmt.Errorf("ledger: lock %s %s: %w", family, label, err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release ledger lock", slog.String("family", string(family)), slog.String("date", label), slog.Any("error", err))
			}
		}()
	}

	var prior *float64
	prev, err := s.store.GetRow(ctx, family, date.AddDate(0, 0, -1))
	switch {
	case err == nil:
		prior = clone(prev.ActualEndQty)
	case errors.Is(err, ErrRowNotFound):
	default:
		return Row{}, fmt.Errorf("ledger: load prior row %s %s: %w", family, label, err)
	}

	existing, err := s.store.GetRow(ctx, family, date)
	if err != nil && !errors.Is(err, ErrRowNotFound) {
		return Row{}, fmt.Errorf("ledger: load row %s %s: %w", family, label, err)
	}
	if mutate != nil {
		mutate(&existing)
	}

	var declared Declaration
	if s.declarations != nil {
		declared, err = s.declarations.Declared(ctx, family, date)
		if err != nil {
			return Row{}, fmt.Errorf("ledger: load declaration %s %s: %w", family, label, err)
		}
	}

	window := shift.ForDate(date)
	usage, err := s.usage.Usage(ctx, family, window)
	if err != nil {
		if !errors.Is(err, ErrUsageSourceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrUsageSourceUnavailable, err)
		}
		return Row{}, fmt.Errorf("ledger: usage %s %s: %w", family, label, err)
	}

	row := Compute(Input{
		Family:         family,
		ShiftDate:      date,
		PriorActualEnd: prior,
		Usage:          usage,
		Declared:       declared,
		Overrides:      existing.Overrides,
	}, s.tolerances)
	row.Approved = existing.Approved
	row.Notes = existing.Notes

	if err := s.store.UpsertRow(ctx, row); err != nil {
		return Row{}, fmt.Errorf("ledger: upsert %s %s: %w", family, label, err)
	}
	if row.Status != StatusOK {
		s.logger.Info("ledger row flagged",
			slog.String("family", string(family)),
			slog.String("date", label),
			slog.String("status", string(row.Status)),
		)
	}
	return row, nil
}
