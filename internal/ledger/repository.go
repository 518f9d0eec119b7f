package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists ledger rows in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var errRepoNotInitialised = errors.New("ledger repository not initialised")

const rowColumns = `family, shift_date,
start_qty::float8, purchased_qty::float8, usage_qty::float8,
expected_end_qty::float8, actual_end_qty::float8, variance_qty::float8,
status, approved, notes,
start_manual::float8, purchased_manual::float8, actual_end_manual::float8`

// GetRow loads the row for family on date.
func (r *Repository) GetRow(ctx context.Context, family Family, date time.Time) (Row, error) {
	if r == nil || r.pool == nil {
		return Row{}, errRepoNotInitialised
	}
	row, err := scanRow(r.pool.QueryRow(ctx, `SELECT `+rowColumns+`
FROM ledger_rows WHERE family=$1 AND shift_date=$2`, string(family), date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Row{}, ErrRowNotFound
		}
		return Row{}, err
	}
	return row, nil
}

// UpsertRow writes the row keyed by (family, shift_date).
func (r *Repository) UpsertRow(ctx context.Context, row Row) error {
	if r == nil || r.pool == nil {
		return errRepoNotInitialised
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO ledger_rows (family, shift_date, start_qty, purchased_qty, usage_qty,
expected_end_qty, actual_end_qty, variance_qty, status, approved, notes,
start_manual, purchased_manual, actual_end_manual, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW())
ON CONFLICT (family, shift_date) DO UPDATE SET
	start_qty=EXCLUDED.start_qty,
	purchased_qty=EXCLUDED.purchased_qty,
	usage_qty=EXCLUDED.usage_qty,
	expected_end_qty=EXCLUDED.expected_end_qty,
	actual_end_qty=EXCLUDED.actual_end_qty,
	variance_qty=EXCLUDED.variance_qty,
	status=EXCLUDED.status,
	approved=EXCLUDED.approved,
	notes=EXCLUDED.notes,
	start_manual=EXCLUDED.start_manual,
	purchased_manual=EXCLUDED.purchased_manual,
	actual_end_manual=EXCLUDED.actual_end_manual,
	updated_at=NOW()`,
		string(row.Family), row.ShiftDate, row.StartQty, row.PurchasedQty, row.UsageQty,
		row.ExpectedEndQty, row.ActualEndQty, row.VarianceQty, string(row.Status), row.Approved, row.Notes,
		row.Overrides.Start, row.Overrides.Purchased, row.Overrides.ActualEnd)
	return err
}

// GetRange lists rows for family between start and end inclusive.
func (r *Repository) GetRange(ctx context.Context, family Family, start, end time.Time) ([]Row, error) {
	if r == nil || r.pool == nil {
		return nil, errRepoNotInitialised
	}
	rows, err := r.pool.Query(ctx, `SELECT `+rowColumns+`
FROM ledger_rows
WHERE family=$1 AND shift_date BETWEEN $2 AND $3
ORDER BY shift_date ASC`, string(family), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Row{}
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanRow(s pgx.Row) (Row, error) {
	var (
		row    Row
		family string
		status string
	)
	err := s.Scan(&family, &row.ShiftDate,
		&row.StartQty, &row.PurchasedQty, &row.UsageQty,
		&row.ExpectedEndQty, &row.ActualEndQty, &row.VarianceQty,
		&status, &row.Approved, &row.Notes,
		&row.Overrides.Start, &row.Overrides.Purchased, &row.Overrides.ActualEnd)
	if err != nil {
		return Row{}, err
	}
	row.Family = Family(family)
	row.Status = Status(status)
	row.ShiftDate = time.Date(row.ShiftDate.Year(), row.ShiftDate.Month(), row.ShiftDate.Day(), 0, 0, 0, 0, time.UTC)
	return row, nil
}
