// Package shift maps business shifts to UTC windows and back.
//
// A shift runs 18:00–03:00 at a fixed UTC+7 offset and is identified by the
// calendar date on which it starts.
package shift

import (
	"errors"
	"strings"
	"time"
)

const (
	// DateLayout is the only accepted calendar date format.
	DateLayout = "2006-01-02"

	// StartHour is the local hour a shift opens.
	StartHour = 18
	// EndHour is the local hour a shift closes on the following day.
	EndHour = 3
	// OffsetHours is the fixed local offset from UTC. No DST is applied.
	OffsetHours = 7

	// Length is the duration of every shift window.
	Length = (24 - StartHour + EndHour) * time.Hour
	// Gap is the non-shift time between two consecutive windows.
	Gap = 24*time.Hour - Length
)

var (
	// ErrInvalidDateFormat indicates the input is not a YYYY-MM-DD calendar date.
	ErrInvalidDateFormat = errors.New("shift: invalid date format")
	// ErrAmbiguousShiftMatch indicates no window (or more than one record) matched a lookup.
	ErrAmbiguousShiftMatch = errors.New("shift: ambiguous shift match")
)

// Location is the fixed zone shifts are defined in.
var Location = time.FixedZone("UTC+7", OffsetHours*60*60)

// Window is the half-open UTC interval [StartUTC, EndUTC) of one shift.
type Window struct {
	ShiftDate time.Time `json:"shift_date"`
	StartUTC  time.Time `json:"start_utc"`
	EndUTC    time.Time `json:"end_utc"`
}

// ParseDate parses a YYYY-MM-DD calendar date into a UTC midnight value.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(DateLayout) {
		return time.Time{}, ErrInvalidDateFormat
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDateFormat
	}
	return d, nil
}

// Day truncates t to its calendar date, keeping the date fields as written.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a shift date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Resolve parses the shift date and returns its window.
func Resolve(s string) (Window, error) {
	d, err := ParseDate(s)
	if err != nil {
		return Window{}, err
	}
	return ForDate(d), nil
}

// ForDate returns the window of the shift starting on the calendar date of d.
func ForDate(d time.Time) Window {
	day := Day(d)
	start := time.Date(day.Year(), day.Month(), day.Day(), StartHour, 0, 0, 0, Location)
	next := day.AddDate(0, 0, 1)
	end := time.Date(next.Year(), next.Month(), next.Day(), EndHour, 0, 0, 0, Location)
	return Window{
		ShiftDate: day,
		StartUTC:  start.UTC(),
		EndUTC:    end.UTC(),
	}
}

// Contains reports whether t falls inside the half-open window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.StartUTC) && t.Before(w.EndUTC)
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.EndUTC.Sub(w.StartUTC)
}

// String renders the window for logs.
func (w Window) String() string {
	return FormatDate(w.ShiftDate) + " [" + w.StartUTC.Format(time.RFC3339) + ", " + w.EndUTC.Format(time.RFC3339) + ")"
}

// ShiftDateContaining returns the business date whose window contains t.
// The literal local date is tried first, then the previous and the next day.
// Instants in the 03:00–18:00 gap belong to no shift.
func ShiftDateContaining(t time.Time) (time.Time, error) {
	literal := Day(t.In(Location))
	for _, offset := range probeOrder {
		candidate := literal.AddDate(0, 0, offset)
		if ForDate(candidate).Contains(t) {
			return candidate, nil
		}
	}
	return time.Time{}, ErrAmbiguousShiftMatch
}

// probeOrder is the lookup order for dates recorded under a neighbouring day.
var probeOrder = []int{0, -1, 1}

// LastClosed returns the date of the most recent shift whose window ended at
// or before now.
func LastClosed(now time.Time) time.Time {
	d := Day(now.In(Location))
	if ForDate(d.AddDate(0, 0, -1)).EndUTC.After(now) {
		return d.AddDate(0, 0, -2)
	}
	return d.AddDate(0, 0, -1)
}
