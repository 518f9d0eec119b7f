package shift

import (
	"errors"
	"log/slog"
	"sort"
	"time"
)

// ErrNoCandidate indicates no stored record could be attributed to a shift.
var ErrNoCandidate = errors.New("shift: no candidate record")

// Candidate is a stored record that claims to belong to some shift. Upstream
// systems file the same shift under its start date, the next date or the
// previous date depending on how they rounded.
type Candidate struct {
	ID           string
	RecordedDate time.Time
	RecordedAt   time.Time
	CreatedAt    time.Time
}

// Resolution reports which candidate was attributed to a shift and how.
type Resolution struct {
	Candidate  Candidate
	ProbedDate time.Time
	InWindow   bool
	Ambiguous  bool
}

// PickCandidate attributes one of the candidates to the shift starting on date.
//
// The literal date is tried first, then date-1 and date+1. The first probed
// pool holding a record stamped inside the exact window wins, taking the most
// recently created of those. When no pool has a window match, the most recent
// record of the first non-empty pool is taken and logged as ambiguous. This is
// a best-effort heuristic for historical data and is kept in this order for
// compatibility.
func PickCandidate(date time.Time, candidates []Candidate, logger *slog.Logger) (Resolution, error) {
	window := ForDate(date)
	var fallback *Resolution
	var fallbackSize int
	for _, offset := range probeOrder {
		probed := window.ShiftDate.AddDate(0, 0, offset)
		pool := filterByDate(candidates, probed)
		if len(pool) == 0 {
			continue
		}
		res := choose(window, pool)
		res.ProbedDate = probed
		if res.InWindow {
			logAmbiguous(logger, window, res, len(pool))
			return res, nil
		}
		if fallback == nil {
			fallback = &res
			fallbackSize = len(pool)
		}
	}
	if fallback == nil {
		return Resolution{}, ErrNoCandidate
	}
	logAmbiguous(logger, window, *fallback, fallbackSize)
	return *fallback, nil
}

func logAmbiguous(logger *slog.Logger, window Window, res Resolution, size int) {
	if !res.Ambiguous || logger == nil {
		return
	}
	logger.Warn("ambiguous shift match",
		slog.String("shift_date", FormatDate(window.ShiftDate)),
		slog.String("probed_date", FormatDate(res.ProbedDate)),
		slog.Int("candidates", size),
		slog.Bool("in_window", res.InWindow),
		slog.String("picked", res.Candidate.ID),
		slog.Any("error", ErrAmbiguousShiftMatch),
	)
}

func filterByDate(candidates []Candidate, date time.Time) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		if Day(c.RecordedDate).Equal(date) {
			out = append(out, c)
		}
	}
	return out
}

func choose(window Window, pool []Candidate) Resolution {
	var inside []Candidate
	for _, c := range pool {
		if !c.RecordedAt.IsZero() && window.Contains(c.RecordedAt) {
			inside = append(inside, c)
		}
	}
	switch {
	case len(inside) == 1:
		return Resolution{Candidate: inside[0], InWindow: true}
	case len(inside) > 1:
		return Resolution{Candidate: latest(inside), InWindow: true, Ambiguous: true}
	case len(pool) == 1:
		return Resolution{Candidate: pool[0], Ambiguous: true}
	default:
		return Resolution{Candidate: latest(pool), Ambiguous: true}
	}
}

// latest returns the most recently created candidate; ties fall back to ID order.
func latest(pool []Candidate) Candidate {
	sorted := append([]Candidate(nil), pool...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return sorted[0]
}
