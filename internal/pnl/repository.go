package pnl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository reads snapshot inputs from PostgreSQL and stores snapshots.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var errRepoNotInitialised = errors.New("pnl repository not initialised")

// RevenueRows lists non-voided POS receipts attributed to shift dates in the period.
func (r *Repository) RevenueRows(ctx context.Context, start, end time.Time) ([]RevenueRow, error) {
	if r == nil || r.pool == nil {
		return nil, errRepoNotInitialised
	}
	rows, err := r.pool.Query(ctx, `SELECT id, shift_date, 'pos', net_total::text
FROM pos_receipts
WHERE voided = FALSE AND shift_date BETWEEN $1 AND $2
ORDER BY shift_date ASC, id ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []RevenueRow{}
	for rows.Next() {
		var (
			row    RevenueRow
			amount string
		)
		if err := rows.Scan(&row.ID, &row.Date, &row.Source, &amount); err != nil {
			return nil, err
		}
		if row.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("pnl: receipt %d amount: %w", row.ID, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ExpenseRows lists expenses booked in the period.
func (r *Repository) ExpenseRows(ctx context.Context, start, end time.Time) ([]ExpenseRow, error) {
	if r == nil || r.pool == nil {
		return nil, errRepoNotInitialised
	}
	rows, err := r.pool.Query(ctx, `SELECT id, expense_date, category, amount::text
FROM expenses
WHERE expense_date BETWEEN $1 AND $2
ORDER BY expense_date ASC, id ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ExpenseRow{}
	for rows.Next() {
		var (
			row    ExpenseRow
			amount string
		)
		if err := rows.Scan(&row.ID, &row.Date, &row.Category, &amount); err != nil {
			return nil, err
		}
		if row.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("pnl: expense %d amount: %w", row.ID, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSnapshot loads the snapshot for the period.
func (r *Repository) GetSnapshot(ctx context.Context, start, end time.Time) (Snapshot, error) {
	if r == nil || r.pool == nil {
		return Snapshot{}, errRepoNotInitialised
	}
	var (
		snap          Snapshot
		revenue, cost string
	)
	err := r.pool.QueryRow(ctx, `SELECT period_start, period_end, revenue_total::text, expense_total::text,
pos_receipt_count, revenue_checksum, expense_checksum, built_at
FROM pnl_snapshots WHERE period_start=$1 AND period_end=$2`, start, end).
		Scan(&snap.PeriodStart, &snap.PeriodEnd, &revenue, &cost,
			&snap.POSReceiptCount, &snap.RevenueChecksum, &snap.ExpenseChecksum, &snap.BuiltAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrSnapshotNotFound
		}
		return Snapshot{}, err
	}
	if snap.RevenueTotal, err = decimal.NewFromString(revenue); err != nil {
		return Snapshot{}, err
	}
	if snap.ExpenseTotal, err = decimal.NewFromString(cost); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// UpsertSnapshot writes the snapshot keyed by (period_start, period_end).
func (r *Repository) UpsertSnapshot(ctx context.Context, snap Snapshot) error {
	if r == nil || r.pool == nil {
		return errRepoNotInitialised
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO pnl_snapshots (period_start, period_end, revenue_total, expense_total,
pos_receipt_count, revenue_checksum, expense_checksum, built_at)
VALUES ($1,$2,$3::numeric,$4::numeric,$5,$6,$7,$8)
ON CONFLICT (period_start, period_end) DO UPDATE SET
	revenue_total=EXCLUDED.revenue_total,
	expense_total=EXCLUDED.expense_total,
	pos_receipt_count=EXCLUDED.pos_receipt_count,
	revenue_checksum=EXCLUDED.revenue_checksum,
	expense_checksum=EXCLUDED.expense_checksum,
	built_at=EXCLUDED.built_at`,
		snap.PeriodStart, snap.PeriodEnd, snap.RevenueTotal.String(), snap.ExpenseTotal.String(),
		snap.POSReceiptCount, snap.RevenueChecksum, snap.ExpenseChecksum, snap.BuiltAt)
	return err
}
