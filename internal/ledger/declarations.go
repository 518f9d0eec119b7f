package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiftledger/shiftledger/internal/shift"
)

// StockForms reads staff daily stock forms. Forms are filed under whatever
// date staff picked, so the matching form is resolved with shift.PickCandidate.
type StockForms struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStockForms constructs the declaration source.
func NewStockForms(pool *pgxpool.Pool, logger *slog.Logger) *StockForms {
	return &StockForms{pool: pool, logger: logger}
}

// Declared returns the purchase and closing count declared for family on
// date. A missing form or missing line yields an empty Declaration.
func (s *StockForms) Declared(ctx context.Context, family Family, date time.Time) (Declaration, error) {
	if s == nil || s.pool == nil {
		return Declaration{}, nil
	}
	date = shift.Day(date)
	candidates, err := s.candidates(ctx, date)
	if err != nil {
		return Declaration{}, err
	}
	res, err := shift.PickCandidate(date, candidates, s.logger)
	if errors.Is(err, shift.ErrNoCandidate) {
		return Declaration{}, nil
	}
	if err != nil {
		return Declaration{}, err
	}
	formID, err := strconv.ParseInt(res.Candidate.ID, 10, 64)
	if err != nil {
		return Declaration{}, fmt.Errorf("ledger: stock form id %q: %w", res.Candidate.ID, err)
	}

	var decl Declaration
	err = s.pool.QueryRow(ctx, `SELECT purchased_qty::float8, closing_qty::float8
FROM stock_form_lines WHERE form_id=$1 AND family=$2`, formID, string(family)).Scan(&decl.Purchased, &decl.ActualEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Declaration{}, nil
		}
		return Declaration{}, fmt.Errorf("ledger: load stock form line: %w", err)
	}
	return decl, nil
}

func (s *StockForms) candidates(ctx context.Context, date time.Time) ([]shift.Candidate, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, shift_date, submitted_at, created_at
FROM stock_forms
WHERE shift_date BETWEEN $1 AND $2
ORDER BY shift_date ASC, id ASC`, date.AddDate(0, 0, -1), date.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("ledger: list stock forms: %w", err)
	}
	defer rows.Close()
	var out []shift.Candidate
	for rows.Next() {
		var (
			id          int64
			c           shift.Candidate
			submittedAt *time.Time
		)
		if err := rows.Scan(&id, &c.RecordedDate, &submittedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		// zero padded so ID tie-breaks order numerically
		c.ID = fmt.Sprintf("%020d", id)
		if submittedAt != nil {
			c.RecordedAt = *submittedAt
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
