package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiftledger/shiftledger/internal/shift"
)

// POSUsage derives consumption from closed POS receipts multiplied through the
// recipe mapping of each menu item.
type POSUsage struct {
	pool *pgxpool.Pool
}

// NewPOSUsage constructs the POS-backed usage source.
func NewPOSUsage(pool *pgxpool.Pool) *POSUsage {
	return &POSUsage{pool: pool}
}

// Usage sums recipe quantities for receipts closed inside the window.
// Voided receipts are excluded. No receipts yields zero.
func (u *POSUsage) Usage(ctx context.Context, family Family, window shift.Window) (float64, error) {
	if u == nil || u.pool == nil {
		return 0, fmt.Errorf("%w: pos pool not configured", ErrUsageSourceUnavailable)
	}
	var total float64
	err := u.pool.QueryRow(ctx, `SELECT COALESCE(SUM(l.qty * rc.qty_per_item), 0)::float8
FROM pos_receipts r
JOIN pos_receipt_lines l ON l.receipt_id = r.id
JOIN recipe_components rc ON rc.menu_item_id = l.menu_item_id
WHERE rc.family = $1
	AND r.voided = FALSE
	AND r.closed_at >= $2 AND r.closed_at < $3`, string(family), window.StartUTC, window.EndUTC).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %w", ErrUsageSourceUnavailable, family, shift.FormatDate(window.ShiftDate), err)
	}
	return round2(total), nil
}
