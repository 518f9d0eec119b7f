package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Family enumerates tracked item families.
type Family string

const (
	// FamilyRolls counts bread rolls in units.
	FamilyRolls Family = "ROLLS"
	// FamilyMeat counts meat in grams.
	FamilyMeat Family = "MEAT"
	// FamilyDrinks counts drinks in units.
	FamilyDrinks Family = "DRINKS"
)

// Families lists every tracked family in a stable order.
var Families = []Family{FamilyRolls, FamilyMeat, FamilyDrinks}

// ParseFamily normalises user input into a Family.
func ParseFamily(s string) (Family, error) {
	f := Family(strings.ToUpper(strings.TrimSpace(s)))
	switch f {
	case FamilyRolls, FamilyMeat, FamilyDrinks:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFamily, s)
}

// Unit returns the counting unit of the family.
func (f Family) Unit() string {
	if f == FamilyMeat {
		return "g"
	}
	return "units"
}

// Status classifies a ledger row.
type Status string

const (
	StatusOK          Status = "OK"
	StatusAlert       Status = "ALERT"
	StatusMissingData Status = "MISSING_DATA"
)

// Overrides are manual corrections. A non-nil field supersedes the derived
// value and survives every rebuild.
type Overrides struct {
	Start     *float64 `json:"start_manual,omitempty"`
	Purchased *float64 `json:"purchased_manual,omitempty"`
	ActualEnd *float64 `json:"actual_end_manual,omitempty"`
}

// IsZero reports whether no override is set.
func (o Overrides) IsZero() bool {
	return o.Start == nil && o.Purchased == nil && o.ActualEnd == nil
}

// Row is one ledger line for a family on a shift date.
type Row struct {
	Family         Family    `json:"family"`
	ShiftDate      time.Time `json:"shift_date"`
	StartQty       *float64  `json:"start_qty"`
	PurchasedQty   float64   `json:"purchased_qty"`
	UsageQty       float64   `json:"usage_qty"`
	ExpectedEndQty *float64  `json:"expected_end_qty"`
	ActualEndQty   *float64  `json:"actual_end_qty"`
	VarianceQty    *float64  `json:"variance_qty"`
	Status         Status    `json:"status"`
	Approved       bool      `json:"approved"`
	Notes          string    `json:"notes"`
	Overrides      Overrides `json:"overrides"`
}

// Declaration is what staff reported on the daily stock form.
type Declaration struct {
	Purchased *float64
	ActualEnd *float64
}

// Tolerances holds the maximum acceptable absolute variance per family.
type Tolerances map[Family]float64

// DefaultTolerances returns the stock tolerance band per family.
func DefaultTolerances() Tolerances {
	return Tolerances{
		FamilyRolls:  5,
		FamilyMeat:   500,
		FamilyDrinks: 3,
	}
}

// For returns the tolerance of a family; unknown families tolerate nothing.
func (t Tolerances) For(f Family) float64 {
	if t == nil {
		return DefaultTolerances()[f]
	}
	return t[f]
}

// RangeResult captures the outcome of one date in a range rebuild.
type RangeResult struct {
	Date time.Time
	Row  Row
	Err  error
}

var (
	// ErrUnknownFamily indicates an unsupported item family.
	ErrUnknownFamily = errors.New("ledger: unknown family")
	// ErrRowNotFound indicates no stored row for the key.
	ErrRowNotFound = errors.New("ledger: row not found")
	// ErrUsageSourceUnavailable indicates the POS usage source failed.
	ErrUsageSourceUnavailable = errors.New("ledger: usage source unavailable")
	// ErrInvalidRange indicates start is after end.
	ErrInvalidRange = errors.New("ledger: start date after end date")
	// ErrRebuildInProgress indicates another worker holds the key.
	ErrRebuildInProgress = errors.New("ledger: rebuild already in progress")
)
