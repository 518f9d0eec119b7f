package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shiftledger/shiftledger/internal/ledger"
	"github.com/shiftledger/shiftledger/internal/shift"
)

// ErrReportNotFound indicates no staff shift report could be attributed to the date.
var ErrReportNotFound = errors.New("reconcile: staff shift report not found")

// Repository loads staff shift reports and POS totals from PostgreSQL.
type Repository struct {
	pool         *pgxpool.Pool
	declarations ledger.DeclarationSource
	logger       *slog.Logger
}

// NewRepository constructs Repository. Declared closing counts come from
// the ledger's stock form source.
func NewRepository(pool *pgxpool.Pool, declarations ledger.DeclarationSource, logger *slog.Logger) *Repository {
	return &Repository{pool: pool, declarations: declarations, logger: logger}
}

// Staff resolves the staff shift report filed for date (or a neighbouring
// date) and attaches the declared closing counts.
func (r *Repository) Staff(ctx context.Context, date time.Time) (StaffDeclared, error) {
	if r == nil || r.pool == nil {
		return StaffDeclared{}, errors.New("reconcile repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, shift_date, submitted_at, created_at
FROM shift_reports
WHERE shift_date BETWEEN $1 AND $2`, date.AddDate(0, 0, -1), date.AddDate(0, 0, 1))
	if err != nil {
		return StaffDeclared{}, err
	}
	var candidates []shift.Candidate
	for rows.Next() {
		var (
			id          int64
			c           shift.Candidate
			submittedAt *time.Time
		)
		if err := rows.Scan(&id, &c.RecordedDate, &submittedAt, &c.CreatedAt); err != nil {
			rows.Close()
			return StaffDeclared{}, err
		}
		c.ID = fmt.Sprintf("%020d", id)
		if submittedAt != nil {
			c.RecordedAt = *submittedAt
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return StaffDeclared{}, err
	}

	res, err := shift.PickCandidate(date, candidates, r.logger)
	if errors.Is(err, shift.ErrNoCandidate) {
		return StaffDeclared{}, fmt.Errorf("%w: %s", ErrReportNotFound, shift.FormatDate(date))
	}
	if err != nil {
		return StaffDeclared{}, err
	}
	id, err := strconv.ParseInt(res.Candidate.ID, 10, 64)
	if err != nil {
		return StaffDeclared{}, err
	}

	var sales, cash, qr string
	err = r.pool.QueryRow(ctx, `SELECT total_sales::text, cash_banked::text, qr_banked::text
FROM shift_reports WHERE id=$1`, id).Scan(&sales, &cash, &qr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StaffDeclared{}, fmt.Errorf("%w: %s", ErrReportNotFound, shift.FormatDate(date))
		}
		return StaffDeclared{}, err
	}
	out := StaffDeclared{StockEnd: map[ledger.Family]float64{}}
	if out.TotalSales, err = decimal.NewFromString(sales); err != nil {
		return StaffDeclared{}, err
	}
	if out.CashBanked, err = decimal.NewFromString(cash); err != nil {
		return StaffDeclared{}, err
	}
	if out.QRBanked, err = decimal.NewFromString(qr); err != nil {
		return StaffDeclared{}, err
	}

	if r.declarations != nil {
		for _, fam := range ledger.Families {
			decl, err := r.declarations.Declared(ctx, fam, date)
			if err != nil {
				return StaffDeclared{}, err
			}
			if decl.ActualEnd != nil {
				out.StockEnd[fam] = *decl.ActualEnd
			}
		}
	}
	return out, nil
}

// POS sums non-voided receipts closed inside the window by payment method and
// takes the ledger's expected closing stock as the POS view of stock.
func (r *Repository) POS(ctx context.Context, window shift.Window) (POSObserved, error) {
	if r == nil || r.pool == nil {
		return POSObserved{}, errors.New("reconcile repository not initialised")
	}
	var net, cash, qr string
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(net_total), 0)::text,
	COALESCE(SUM(net_total) FILTER (WHERE payment_method = 'CASH'), 0)::text,
	COALESCE(SUM(net_total) FILTER (WHERE payment_method = 'QR'), 0)::text
FROM pos_receipts
WHERE voided = FALSE AND closed_at >= $1 AND closed_at < $2`, window.StartUTC, window.EndUTC).Scan(&net, &cash, &qr)
	if err != nil {
		return POSObserved{}, err
	}
	out := POSObserved{StockEnd: map[ledger.Family]float64{}}
	if out.NetSales, err = decimal.NewFromString(net); err != nil {
		return POSObserved{}, err
	}
	if out.Cash, err = decimal.NewFromString(cash); err != nil {
		return POSObserved{}, err
	}
	if out.QR, err = decimal.NewFromString(qr); err != nil {
		return POSObserved{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT family, expected_end_qty::float8
FROM ledger_rows WHERE shift_date=$1 AND expected_end_qty IS NOT NULL`, window.ShiftDate)
	if err != nil {
		return POSObserved{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			family string
			qty    float64
		)
		if err := rows.Scan(&family, &qty); err != nil {
			return POSObserved{}, err
		}
		out.StockEnd[ledger.Family(family)] = qty
	}
	return out, rows.Err()
}
