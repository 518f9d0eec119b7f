// Package pnl builds idempotent profit and loss snapshots over a period.
package pnl

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// RevenueRow is one revenue source line (a POS receipt or a manual income).
type RevenueRow struct {
	ID     int64           `json:"id"`
	Date   time.Time       `json:"date"`
	Source string          `json:"source"`
	Amount decimal.Decimal `json:"amount"`
}

// ExpenseRow is one expense line.
type ExpenseRow struct {
	ID       int64           `json:"id"`
	Date     time.Time       `json:"date"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// Snapshot is the stored aggregate of one period. Profit is derived, never stored.
type Snapshot struct {
	PeriodStart     time.Time       `json:"period_start"`
	PeriodEnd       time.Time       `json:"period_end"`
	RevenueTotal    decimal.Decimal `json:"revenue_total"`
	ExpenseTotal    decimal.Decimal `json:"expense_total"`
	POSReceiptCount int             `json:"pos_receipt_count"`
	RevenueChecksum string          `json:"revenue_checksum"`
	ExpenseChecksum string          `json:"expense_checksum"`
	BuiltAt         time.Time       `json:"built_at"`
}

// ProfitTotal returns revenue minus expenses.
func (s Snapshot) ProfitTotal() decimal.Decimal {
	return s.RevenueTotal.Sub(s.ExpenseTotal)
}

// SameContent reports whether both snapshots were built from identical rows.
func (s Snapshot) SameContent(other Snapshot) bool {
	return s.RevenueChecksum == other.RevenueChecksum && s.ExpenseChecksum == other.ExpenseChecksum
}

// BuildResult reports the stored snapshot and whether its inputs changed
// since the previous build of the same period.
type BuildResult struct {
	Snapshot Snapshot  `json:"snapshot"`
	Changed  bool      `json:"changed"`
	Previous *Snapshot `json:"previous,omitempty"`
}

var (
	// ErrSnapshotNotFound indicates no snapshot exists for the period.
	ErrSnapshotNotFound = errors.New("pnl: snapshot not found")
	// ErrInvalidPeriod indicates start is after end.
	ErrInvalidPeriod = errors.New("pnl: period start after end")
	// ErrBuildInProgress indicates another worker is building the period.
	ErrBuildInProgress = errors.New("pnl: build already in progress")
)
