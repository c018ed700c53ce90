package generic

import "fmt"

// =============================================================================
// PERIOD - Inclusive date range (contract validity, rate validity)
// =============================================================================

// Period is an inclusive range of days [Start, End].
//
// Examples:
//   - Contract season: 2025-06-10 .. 2025-09-30
//   - Rate validity inside a contract
type Period struct {
	Start TimePoint
	End   TimePoint
}

// NewPeriod validates that end is not before start.
func NewPeriod(start, end TimePoint) (Period, error) {
	if end.Before(start) {
		return Period{}, fmt.Errorf("%w: %s > %s", ErrInvalidPeriod, start, end)
	}
	return Period{Start: start, End: end}, nil
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// STAY - Check-in to check-out; the check-out day is not a night
// =============================================================================

type Stay struct {
	CheckIn  TimePoint
	CheckOut TimePoint
}

// NewStay requires at least one night.
func NewStay(checkIn, checkOut TimePoint) (Stay, error) {
	if !checkOut.After(checkIn) {
		return Stay{}, fmt.Errorf("%w: check-out %s must be after check-in %s", ErrInvalidPeriod, checkOut, checkIn)
	}
	return Stay{CheckIn: checkIn, CheckOut: checkOut}, nil
}

// Nights is the number of nights slept.
func (s Stay) Nights() int { return DaysBetween(s.CheckIn, s.CheckOut) }

// NightDates returns the date of every night, check-in first.
func (s Stay) NightDates() []TimePoint {
	n := s.Nights()
	dates := make([]TimePoint, 0, n)
	for i := 0; i < n; i++ {
		dates = append(dates, s.CheckIn.AddDays(i))
	}
	return dates
}

func (s Stay) String() string {
	return s.CheckIn.String() + " -> " + s.CheckOut.String()
}
