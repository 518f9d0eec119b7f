// Package reconcile compares what staff declared for a shift with what the
// POS observed and flags every field outside its tolerance.
package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/shiftledger/shiftledger/internal/ledger"
	"github.com/shiftledger/shiftledger/internal/shift"
)

// Field names reported in results.
const (
	FieldTotalSales = "total_sales"
	FieldCashBanked = "cash_banked"
	FieldQRBanked   = "qr_banked"
	stockPrefix     = "stock_end:"
)

// StockField returns the field name of a family's closing count.
func StockField(f ledger.Family) string {
	return stockPrefix + string(f)
}

// StaffDeclared is the staff end-of-shift report.
type StaffDeclared struct {
	TotalSales decimal.Decimal           `json:"total_sales"`
	CashBanked decimal.Decimal           `json:"cash_banked"`
	QRBanked   decimal.Decimal           `json:"qr_banked"`
	StockEnd   map[ledger.Family]float64 `json:"stock_end,omitempty"`
}

// POSObserved is the POS view of the same shift.
type POSObserved struct {
	NetSales decimal.Decimal           `json:"net_sales"`
	Cash     decimal.Decimal           `json:"cash"`
	QR       decimal.Decimal           `json:"qr"`
	StockEnd map[ledger.Family]float64 `json:"stock_end,omitempty"`
}

// Tolerances holds the maximum absolute variance per field.
type Tolerances struct {
	Sales decimal.Decimal
	Cash  decimal.Decimal
	QR    decimal.Decimal
	Stock ledger.Tolerances
}

// DefaultTolerances returns the THB money bands and the ledger stock bands.
func DefaultTolerances() Tolerances {
	return Tolerances{
		Sales: decimal.NewFromInt(50),
		Cash:  decimal.NewFromInt(50),
		QR:    decimal.NewFromInt(1),
		Stock: ledger.DefaultTolerances(),
	}
}

// FieldResult is the comparison of one field.
type FieldResult struct {
	Field     string          `json:"field"`
	Staff     decimal.Decimal `json:"staff"`
	POS       decimal.Decimal `json:"pos"`
	Variance  decimal.Decimal `json:"variance"`
	Tolerance decimal.Decimal `json:"tolerance"`
	Flagged   bool            `json:"flagged"`
}

// Result is the reconciliation of one shift.
type Result struct {
	Window   shift.Window  `json:"window"`
	Fields   []FieldResult `json:"fields"`
	Flags    []string      `json:"flags"`
	Balanced bool          `json:"balanced"`
	// MissingStock lists families the stored flow could not compare because
	// one side had no figure. They are reported, never flagged.
	MissingStock []ledger.Family `json:"missing_stock,omitempty"`
}

// Flagged returns the names of fields outside tolerance.
func (r Result) Flagged() []string {
	var out []string
	for _, f := range r.Fields {
		if f.Flagged {
			out = append(out, f.Field)
		}
	}
	return out
}
