package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/shiftledger/shiftledger/internal/ledger"
	"github.com/shiftledger/shiftledger/internal/shift"
)

func thb(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func window(t *testing.T) shift.Window {
	t.Helper()
	w, err := shift.Resolve("2025-08-09")
	require.NoError(t, err)
	return w
}

func TestReconcileBalanced(t *testing.T) {
	staff := StaffDeclared{TotalSales: thb("12500"), CashBanked: thb("4000"), QRBanked: thb("8500")}
	pos := POSObserved{NetSales: thb("12480"), Cash: thb("3960"), QR: thb("8500.50")}

	res := Reconcile(window(t), staff, pos, DefaultTolerances())
	require.True(t, res.Balanced)
	require.Empty(t, res.Flags)
	require.Len(t, res.Fields, 3)
	require.Equal(t, FieldTotalSales, res.Fields[0].Field)
	require.True(t, res.Fields[0].Variance.Equal(thb("20")))
	require.True(t, res.Fields[2].Variance.Equal(thb("-0.5")))
}

func TestReconcileToleranceBoundary(t *testing.T) {
	staff := StaffDeclared{TotalSales: thb("1050"), CashBanked: thb("949.99"), QRBanked: thb("101")}
	pos := POSObserved{NetSales: thb("1000"), Cash: thb("1000"), QR: thb("100")}

	res := Reconcile(window(t), staff, pos, DefaultTolerances())
	require.False(t, res.Fields[0].Flagged, "exactly at tolerance is fine")
	require.True(t, res.Fields[1].Flagged)
	require.False(t, res.Fields[2].Flagged)
	require.Equal(t, []string{FieldCashBanked}, res.Flagged())
	require.Len(t, res.Flags, 1)
	require.Contains(t, res.Flags[0], "cash_banked")
	require.Contains(t, res.Flags[0], "50.01")
	require.False(t, res.Balanced)
}

func TestReconcileStockFamilies(t *testing.T) {
	staff := StaffDeclared{StockEnd: map[ledger.Family]float64{
		ledger.FamilyDrinks: 20,
		ledger.FamilyRolls:  6,
	}}
	pos := POSObserved{StockEnd: map[ledger.Family]float64{
		ledger.FamilyRolls: 8,
		ledger.FamilyMeat:  300,
	}}

	res := Reconcile(window(t), staff, pos, DefaultTolerances())
	require.Len(t, res.Fields, 6)
	require.Equal(t, StockField(ledger.FamilyRolls), res.Fields[3].Field)
	require.Equal(t, StockField(ledger.FamilyMeat), res.Fields[4].Field)
	require.Equal(t, StockField(ledger.FamilyDrinks), res.Fields[5].Field)

	require.False(t, res.Fields[3].Flagged)
	// Meat is only on the POS side and is compared against zero.
	require.True(t, res.Fields[4].Variance.Equal(thb("-300")))
	require.False(t, res.Fields[4].Flagged)
	require.True(t, res.Fields[5].Flagged)
	require.Equal(t, []string{StockField(ledger.FamilyDrinks)}, res.Flagged())
}

func TestReconcileDoesNotMutateInputs(t *testing.T) {
	staffStock := map[ledger.Family]float64{ledger.FamilyRolls: 6}
	posStock := map[ledger.Family]float64{ledger.FamilyMeat: 100}
	staff := StaffDeclared{TotalSales: thb("10"), StockEnd: staffStock}
	pos := POSObserved{NetSales: thb("10"), StockEnd: posStock}

	_ = Reconcile(window(t), staff, pos, DefaultTolerances())
	require.Len(t, staffStock, 1)
	require.Len(t, posStock, 1)
	require.True(t, staff.TotalSales.Equal(thb("10")))
}

func TestEngineUsesConfiguredTolerances(t *testing.T) {
	tol := DefaultTolerances()
	tol.Sales = thb("5")
	e := NewEngine(tol, language.Und)

	res := e.Reconcile(window(t), StaffDeclared{TotalSales: thb("110")}, POSObserved{NetSales: thb("100")})
	require.True(t, res.Fields[0].Flagged)
	require.Equal(t, window(t), res.Window)
}
