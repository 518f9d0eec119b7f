package perf

import (
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/shiftledger/shiftledger/internal/ledger"
	"github.com/shiftledger/shiftledger/internal/pnl"
	"github.com/shiftledger/shiftledger/internal/reconcile"
	"github.com/shiftledger/shiftledger/internal/shift"
)

func sampleShift() (shift.Window, reconcile.StaffDeclared, reconcile.POSObserved) {
	window := shift.ForDate(time.Date(2025, 8, 9, 0, 0, 0, 0, time.UTC))
	staff := reconcile.StaffDeclared{
		TotalSales: decimal.RequireFromString("12500"),
		CashBanked: decimal.RequireFromString("4000"),
		QRBanked:   decimal.RequireFromString("8500"),
		StockEnd:   map[ledger.Family]float64{ledger.FamilyRolls: 6, ledger.FamilyMeat: 2400, ledger.FamilyDrinks: 30},
	}
	pos := reconcile.POSObserved{
		NetSales: decimal.RequireFromString("12400"),
		Cash:     decimal.RequireFromString("3990"),
		QR:       decimal.RequireFromString("8500"),
		StockEnd: map[ledger.Family]float64{ledger.FamilyRolls: 8, ledger.FamilyMeat: 2000, ledger.FamilyDrinks: 24},
	}
	return window, staff, pos
}

func sampleRows(n int) ([]pnl.RevenueRow, []pnl.ExpenseRow) {
	start := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	rev := make([]pnl.RevenueRow, n)
	exp := make([]pnl.ExpenseRow, n/10)
	for i := range rev {
		rev[i] = pnl.RevenueRow{ID: int64(n - i), Date: start.AddDate(0, 0, i%31), Source: "pos", Amount: decimal.New(int64(1000+i), -2)}
	}
	for i := range exp {
		exp[i] = pnl.ExpenseRow{ID: int64(i + 1), Date: start.AddDate(0, 0, i%31), Category: "produce", Amount: decimal.New(int64(5000+i), -2)}
	}
	return rev, exp
}

func TestEngineLatencyTargets(t *testing.T) {
	engine := reconcile.NewEngine(reconcile.DefaultTolerances(), language.English)
	window, staff, pos := sampleShift()
	rev, exp := sampleRows(5000)
	start, end := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC)

	scenarios := []struct {
		name      string
		run       func()
		threshold time.Duration
	}{
		{name: "reconcile", run: func() { engine.Reconcile(window, staff, pos) }, threshold: 5 * time.Millisecond},
		{name: "pnl aggregate 5k receipts", run: func() { pnl.Aggregate(start, end, rev, exp) }, threshold: 250 * time.Millisecond},
	}

	for _, scenario := range scenarios {
		samples := make([]time.Duration, 0, 20)
		for i := 0; i < 20; i++ {
			began := time.Now()
			scenario.run()
			samples = append(samples, time.Since(began))
		}
		if p95 := percentile95(samples); p95 > scenario.threshold {
			t.Fatalf("%s latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func BenchmarkReconcile(b *testing.B) {
	engine := reconcile.NewEngine(reconcile.DefaultTolerances(), language.English)
	window, staff, pos := sampleShift()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Reconcile(window, staff, pos)
	}
}

func BenchmarkPnLAggregate(b *testing.B) {
	rev, exp := sampleRows(5000)
	start, end := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pnl.Aggregate(start, end, rev, exp)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
