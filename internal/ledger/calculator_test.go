package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var aug9 = time.Date(2025, 8, 9, 0, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

func TestComputeEndToEndScenario(t *testing.T) {
	row := Compute(Input{
		Family:         FamilyRolls,
		ShiftDate:      aug9,
		PriorActualEnd: f(40),
		Usage:          132,
		Declared:       Declaration{Purchased: f(100), ActualEnd: f(6)},
	}, DefaultTolerances())

	require.Equal(t, StatusOK, row.Status)
	require.InDelta(t, 40, *row.StartQty, 0.0001)
	require.InDelta(t, 100, row.PurchasedQty, 0.0001)
	require.InDelta(t, 132, row.UsageQty, 0.0001)
	require.InDelta(t, 8, *row.ExpectedEndQty, 0.0001)
	require.InDelta(t, 6, *row.ActualEndQty, 0.0001)
	require.InDelta(t, -2, *row.VarianceQty, 0.0001)
}

func TestComputeToleranceBoundary(t *testing.T) {
	cases := []struct {
		name   string
		family Family
		actual float64
		want   Status
	}{
		{"rolls at tolerance", FamilyRolls, 15, StatusOK},
		{"rolls one over", FamilyRolls, 16, StatusAlert},
		{"rolls negative at tolerance", FamilyRolls, 5, StatusOK},
		{"rolls negative one over", FamilyRolls, 4, StatusAlert},
		{"meat at tolerance", FamilyMeat, 510, StatusOK},
		{"meat just over", FamilyMeat, 510.01, StatusAlert},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row := Compute(Input{
				Family:         tc.family,
				ShiftDate:      aug9,
				PriorActualEnd: f(10),
				Declared:       Declaration{ActualEnd: f(tc.actual)},
			}, DefaultTolerances())
			require.Equal(t, tc.want, row.Status)
		})
	}
}

func TestComputeMissingActual(t *testing.T) {
	row := Compute(Input{
		Family:         FamilyDrinks,
		ShiftDate:      aug9,
		PriorActualEnd: f(24),
		Usage:          10,
	}, DefaultTolerances())
	require.Equal(t, StatusMissingData, row.Status)
	require.Nil(t, row.VarianceQty)
	require.Nil(t, row.ActualEndQty)
	require.InDelta(t, 14, *row.ExpectedEndQty, 0.0001)
}

func TestComputeMissingCarryForwardIsNotZero(t *testing.T) {
	row := Compute(Input{
		Family:    FamilyRolls,
		ShiftDate: aug9,
		Usage:     3,
		Declared:  Declaration{Purchased: f(10), ActualEnd: f(7)},
	}, DefaultTolerances())
	require.Equal(t, StatusMissingData, row.Status)
	require.Nil(t, row.StartQty)
	require.Nil(t, row.ExpectedEndQty)
	require.Nil(t, row.VarianceQty)
	require.InDelta(t, 7, *row.ActualEndQty, 0.0001)
}

func TestComputeNegativeExpectedIsKept(t *testing.T) {
	row := Compute(Input{
		Family:         FamilyRolls,
		ShiftDate:      aug9,
		PriorActualEnd: f(5),
		Usage:          20,
		Declared:       Declaration{ActualEnd: f(0)},
	}, DefaultTolerances())
	require.InDelta(t, -15, *row.ExpectedEndQty, 0.0001)
	require.InDelta(t, 15, *row.VarianceQty, 0.0001)
	require.Equal(t, StatusAlert, row.Status)
}

func TestComputeOverridesWin(t *testing.T) {
	in := Input{
		Family:         FamilyRolls,
		ShiftDate:      aug9,
		PriorActualEnd: f(40),
		Usage:          132,
		Declared:       Declaration{Purchased: f(100), ActualEnd: f(30)},
		Overrides:      Overrides{Purchased: f(96), ActualEnd: f(4)},
	}
	row := Compute(in, DefaultTolerances())
	require.InDelta(t, 96, row.PurchasedQty, 0.0001)
	require.InDelta(t, 4, *row.ExpectedEndQty, 0.0001)
	require.InDelta(t, 4, *row.ActualEndQty, 0.0001)
	require.InDelta(t, 0, *row.VarianceQty, 0.0001)
	require.Equal(t, StatusOK, row.Status)
	require.Equal(t, 96.0, *row.Overrides.Purchased)

	// The row keeps its own copy of the overrides.
	*in.Overrides.Purchased = 1
	require.Equal(t, 96.0, *row.Overrides.Purchased)
}

func TestComputeStartOverrideReplacesCarryForward(t *testing.T) {
	row := Compute(Input{
		Family:    FamilyMeat,
		ShiftDate: aug9,
		Usage:     1200,
		Declared:  Declaration{Purchased: f(2000), ActualEnd: f(3800)},
		Overrides: Overrides{Start: f(3000)},
	}, DefaultTolerances())
	require.InDelta(t, 3800, *row.ExpectedEndQty, 0.0001)
	require.Equal(t, StatusOK, row.Status)
}

func TestParseFamily(t *testing.T) {
	fam, err := ParseFamily(" rolls ")
	require.NoError(t, err)
	require.Equal(t, FamilyRolls, fam)

	_, err = ParseFamily("cheese")
	require.ErrorIs(t, err, ErrUnknownFamily)
}
