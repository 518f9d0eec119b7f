package ledger

import (
	"math"
	"time"
)

// Input gathers everything Compute needs for one family and shift date.
type Input struct {
	Family         Family
	ShiftDate      time.Time
	PriorActualEnd *float64
	Usage          float64
	Declared       Declaration
	Overrides      Overrides
}

// Compute derives a ledger row. It holds no state and never fails: missing
// inputs surface as StatusMissingData with nil expected/variance values.
func Compute(in Input, tol Tolerances) Row {
	row := Row{
		Family:    in.Family,
		ShiftDate: in.ShiftDate,
		UsageQty:  round2(in.Usage),
		Overrides: copyOverrides(in.Overrides),
	}

	start := firstSet(in.Overrides.Start, in.PriorActualEnd)
	purchased := firstSet(in.Overrides.Purchased, in.Declared.Purchased)
	actual := firstSet(in.Overrides.ActualEnd, in.Declared.ActualEnd)

	if purchased != nil {
		row.PurchasedQty = round2(*purchased)
	}
	if start != nil {
		row.StartQty = ptr(round2(*start))
		// Negative expected values are a signal of over-reporting; keep them.
		row.ExpectedEndQty = ptr(round2(*row.StartQty + row.PurchasedQty - row.UsageQty))
	}
	if actual != nil {
		row.ActualEndQty = ptr(round2(*actual))
	}

	if row.ExpectedEndQty == nil || row.ActualEndQty == nil {
		row.Status = StatusMissingData
		return row
	}

	variance := round2(*row.ActualEndQty - *row.ExpectedEndQty)
	row.VarianceQty = ptr(variance)
	row.Status = Classify(variance, tol.For(in.Family))
	return row
}

// Classify compares a variance against a tolerance; equality is within band.
func Classify(variance, tolerance float64) Status {
	if math.Abs(round2(variance)) > tolerance {
		return StatusAlert
	}
	return StatusOK
}

func firstSet(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func copyOverrides(o Overrides) Overrides {
	return Overrides{Start: clone(o.Start), Purchased: clone(o.Purchased), ActualEnd: clone(o.ActualEnd)}
}

func clone(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func ptr(v float64) *float64 {
	return &v
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}
