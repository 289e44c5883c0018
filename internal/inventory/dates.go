package inventory

import "time"

// Day returns the calendar date of t in loc, expressed as midnight UTC.
// Inventory dates are stored this way so comparisons are exact.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts calendar days from a to b; both must be normalised by Day.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// Nights is the number of inventory dates in the inclusive range [start, end].
func Nights(start, end time.Time) int {
	return DaysBetween(start, end) + 1
}
