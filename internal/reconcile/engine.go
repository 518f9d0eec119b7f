package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/shiftledger/shiftledger/internal/ledger"
	"github.com/shiftledger/shiftledger/internal/shift"
)

// Engine reconciles shifts and renders flag messages in one language.
type Engine struct {
	tolerances Tolerances
	printer    *message.Printer
}

// NewEngine constructs an engine. A zero language tag selects English.
func NewEngine(tol Tolerances, tag language.Tag) *Engine {
	if tag == language.Und {
		tag = language.English
	}
	if tol.Stock == nil {
		tol.Stock = ledger.DefaultTolerances()
	}
	return &Engine{tolerances: tol, printer: message.NewPrinter(tag)}
}

// Tolerances returns the configured bands.
func (e *Engine) Tolerances() Tolerances {
	return e.tolerances
}

// Reconcile compares staff and POS figures for window using the engine's bands.
func (e *Engine) Reconcile(window shift.Window, staff StaffDeclared, pos POSObserved) Result {
	return reconcile(window, staff, pos, e.tolerances, e.printer)
}

// Reconcile compares staff and POS figures with explicit tolerances. Inputs
// are never modified.
func Reconcile(window shift.Window, staff StaffDeclared, pos POSObserved, tol Tolerances) Result {
	return reconcile(window, staff, pos, tol, message.NewPrinter(language.English))
}

func reconcile(window shift.Window, staff StaffDeclared, pos POSObserved, tol Tolerances, p *message.Printer) Result {
	fields := []FieldResult{
		compare(FieldTotalSales, staff.TotalSales, pos.NetSales, tol.Sales),
		compare(FieldCashBanked, staff.CashBanked, pos.Cash, tol.Cash),
		compare(FieldQRBanked, staff.QRBanked, pos.QR, tol.QR),
	}
	for _, fam := range stockFamilies(staff.StockEnd, pos.StockEnd) {
		fields = append(fields, compare(
			StockField(fam),
			decimal.NewFromFloat(staff.StockEnd[fam]),
			decimal.NewFromFloat(pos.StockEnd[fam]),
			decimal.NewFromFloat(tol.Stock.For(fam)),
		))
	}

	res := Result{Window: window, Fields: fields, Flags: []string{}, Balanced: true}
	for _, f := range fields {
		if !f.Flagged {
			continue
		}
		res.Balanced = false
		res.Flags = append(res.Flags, flagMessage(p, f))
	}
	return res
}

func compare(field string, staff, pos, tolerance decimal.Decimal) FieldResult {
	variance := staff.Sub(pos)
	return FieldResult{
		Field:     field,
		Staff:     staff,
		POS:       pos,
		Variance:  variance,
		Tolerance: tolerance,
		Flagged:   variance.Abs().GreaterThan(tolerance),
	}
}

// stockFamilies lists families present on either side: known families first
// in ledger order, then any others alphabetically.
func stockFamilies(a, b map[ledger.Family]float64) []ledger.Family {
	seen := make(map[ledger.Family]bool, len(a)+len(b))
	for f := range a {
		seen[f] = true
	}
	for f := range b {
		seen[f] = true
	}
	out := make([]ledger.Family, 0, len(seen))
	for _, f := range ledger.Families {
		if seen[f] {
			out = append(out, f)
			delete(seen, f)
		}
	}
	extra := make([]ledger.Family, 0, len(seen))
	for f := range seen {
		extra = append(extra, f)
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

func flagMessage(p *message.Printer, f FieldResult) string {
	return p.Sprintf("%s: staff %.2f vs POS %.2f, variance %+.2f exceeds tolerance %.2f",
		f.Field,
		f.Staff.InexactFloat64(),
		f.POS.InexactFloat64(),
		f.Variance.InexactFloat64(),
		f.Tolerance.InexactFloat64(),
	)
}
