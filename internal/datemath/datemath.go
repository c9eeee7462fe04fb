// Package datemath holds pure calendar arithmetic on local wall-clock time.
// Every function works in the Location of its argument.
package datemath

import "time"

// StartOfDay returns 00:00 of t's calendar date.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable instant of t's calendar date.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// StartOfWeek returns 00:00 of the Sunday on or before t.
func StartOfWeek(t time.Time) time.Time {
	return StartOfWeekOn(t, time.Sunday)
}

// StartOfWeekOn returns 00:00 of the most recent weekStart on or before t.
func StartOfWeekOn(t time.Time, weekStart time.Weekday) time.Time {
	return StartOfDay(t).AddDate(0, 0, -WeekdayOffset(t.Weekday(), weekStart))
}

// EndOfWeekOn returns the last instant of the 7-day week starting on weekStart.
func EndOfWeekOn(t time.Time, weekStart time.Weekday) time.Time {
	return StartOfWeekOn(t, weekStart).AddDate(0, 0, 7).Add(-time.Nanosecond)
}

// WeekdayOffset is the column of day in a week that begins on weekStart (0..6).
func WeekdayOffset(day, weekStart time.Weekday) int {
	return (int(day) - int(weekStart) + 7) % 7
}

// StartOfMonth returns 00:00 on the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// EndOfMonth returns the last instant of t's month.
func EndOfMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddDays shifts t by n calendar days keeping the wall-clock time of day.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// AddWeeks shifts t by n weeks keeping the wall-clock time of day.
func AddWeeks(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, 7*n)
}

// AddMonths shifts t by n months keeping the wall-clock time of day. The
// day of month is clamped to the target month's length, so Jan 31 + 1 month
// is the last day of February rather than early March.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	ty, tm, _ := first.Date()
	if dim := DaysInMonth(ty, tm); d > dim {
		d = dim
	}
	return time.Date(ty, tm, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// ShiftSpan moves [start, end) with step applied to start; the returned end
// keeps the original duration exactly.
func ShiftSpan(start, end time.Time, step func(time.Time) time.Time) (time.Time, time.Time) {
	ns := step(start)
	return ns, ns.Add(end.Sub(start))
}

// SameDay reports whether a and b fall on the same calendar date in a's
// location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// InRange reports whether start <= t <= end.
func InRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}
