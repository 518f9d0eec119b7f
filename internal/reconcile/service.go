package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shiftledger/shiftledger/internal/ledger"
	"github.com/shiftledger/shiftledger/internal/shift"
)

// Source loads both sides of a shift reconciliation.
type Source interface {
	Staff(ctx context.Context, date time.Time) (StaffDeclared, error)
	POS(ctx context.Context, window shift.Window) (POSObserved, error)
}

// Service reconciles stored shifts.
type Service struct {
	engine *Engine
	source Source
	logger *slog.Logger
}

// NewService constructs the stored-shift reconciler.
func NewService(engine *Engine, source Source, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, source: source, logger: logger}
}

// Engine exposes the pure reconciliation engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// ForDate loads the staff report and POS totals of the shift and reconciles them.
func (s *Service) ForDate(ctx context.Context, date time.Time) (Result, error) {
	window := shift.ForDate(date)
	label := shift.FormatDate(window.ShiftDate)
	staff, err := s.source.Staff(ctx, window.ShiftDate)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: staff report %s: %w", label, err)
	}
	pos, err := s.source.POS(ctx, window)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: pos totals %s: %w", label, err)
	}
	missing := splitMissingStock(&staff, &pos)
	res := s.engine.Reconcile(window, staff, pos)
	res.MissingStock = missing
	if len(missing) > 0 {
		s.logger.Info("stock not comparable",
			slog.String("shift_date", label),
			slog.Any("families", missing),
		)
	}
	if !res.Balanced {
		s.logger.Warn("shift out of balance",
			slog.String("shift_date", label),
			slog.Any("fields", res.Flagged()),
		)
	}
	return res, nil
}

// splitMissingStock removes families known to only one side. A ledger row
// without an expectation is missing data, not a zero count.
func splitMissingStock(staff *StaffDeclared, pos *POSObserved) []ledger.Family {
	var missing []ledger.Family
	staffStock := make(map[ledger.Family]float64, len(staff.StockEnd))
	posStock := make(map[ledger.Family]float64, len(pos.StockEnd))
	for _, fam := range stockFamilies(staff.StockEnd, pos.StockEnd) {
		s, okStaff := staff.StockEnd[fam]
		p, okPOS := pos.StockEnd[fam]
		if !okStaff || !okPOS {
			missing = append(missing, fam)
			continue
		}
		staffStock[fam] = s
		posStock[fam] = p
	}
	staff.StockEnd = staffStock
	pos.StockEnd = posStock
	return missing
}
