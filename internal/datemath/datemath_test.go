package datemath

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestDayBoundaries(t *testing.T) {
	assert := assert.New(t)
	ts := at(2024, time.March, 6, 15, 42)
	assert.Equal(at(2024, time.March, 6, 0, 0), StartOfDay(ts))
	assert.Equal(at(2024, time.March, 7, 0, 0).Add(-time.Nanosecond), EndOfDay(ts))
}

func TestStartOfWeekIsSunday(t *testing.T) {
	assert := assert.New(t)
	// 2024-03-06 is a Wednesday.
	assert.Equal(at(2024, time.March, 3, 0, 0), StartOfWeek(at(2024, time.March, 6, 15, 0)))
	// A Sunday is its own week start.
	assert.Equal(at(2024, time.March, 3, 0, 0), StartOfWeek(at(2024, time.March, 3, 23, 59)))
	// Saturday belongs to the week that started six days earlier.
	assert.Equal(at(2024, time.March, 3, 0, 0), StartOfWeek(at(2024, time.March, 9, 8, 0)))
	// Week crossing a month boundary.
	assert.Equal(at(2024, time.February, 25, 0, 0), StartOfWeek(at(2024, time.March, 1, 9, 0)))
}

func TestStartOfWeekOnMonday(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(at(2024, time.March, 4, 0, 0), StartOfWeekOn(at(2024, time.March, 6, 15, 0), time.Monday))
	assert.Equal(at(2024, time.February, 26, 0, 0), StartOfWeekOn(at(2024, time.March, 3, 15, 0), time.Monday))
	assert.Equal(at(2024, time.March, 11, 0, 0).Add(-time.Nanosecond), EndOfWeekOn(at(2024, time.March, 6, 0, 0), time.Monday))
	assert.Equal(6, WeekdayOffset(time.Sunday, time.Monday))
	assert.Equal(0, WeekdayOffset(time.Sunday, time.Sunday))
}

func TestMonthBoundaries(t *testing.T) {
	assert := assert.New(t)
	ts := at(2024, time.February, 14, 12, 0)
	assert.Equal(at(2024, time.February, 1, 0, 0), StartOfMonth(ts))
	assert.Equal(at(2024, time.March, 1, 0, 0).Add(-time.Nanosecond), EndOfMonth(ts))
	assert.Equal(29, DaysInMonth(2024, time.February))
	assert.Equal(28, DaysInMonth(2023, time.February))
	assert.Equal(31, DaysInMonth(2024, time.December))
	assert.Equal(30, DaysInMonth(2024, time.April))
}

func TestAddMonthsClamps(t *testing.T) {
	assert := assert.New(t)
	jan31 := at(2024, time.January, 31, 18, 30)

	assert.Equal(at(2024, time.February, 29, 18, 30), AddMonths(jan31, 1))
	assert.Equal(at(2024, time.March, 31, 18, 30), AddMonths(jan31, 2))
	assert.Equal(at(2024, time.April, 30, 18, 30), AddMonths(jan31, 3))
	assert.Equal(at(2025, time.February, 28, 18, 30), AddMonths(jan31, 13))
	assert.Equal(at(2023, time.November, 30, 18, 30), AddMonths(jan31, -2))

	// k-th occurrence day is min(31, daysInMonth(start+k)).
	for k := 0; k < 24; k++ {
		got := AddMonths(jan31, k)
		want := 31
		if dim := DaysInMonth(got.Year(), got.Month()); dim < want {
			want = dim
		}
		assert.Equal(want, got.Day(), "k=%d", k)
		assert.Equal(time.Month((k%12)+1), got.Month(), "k=%d", k)
	}
}

func TestAddDaysKeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	assert := assert.New(t)
	// 2024-03-10 is the US spring-forward date.
	before := time.Date(2024, time.March, 9, 9, 0, 0, 0, loc)
	after := AddDays(before, 1)
	assert.Equal(9, after.Hour())
	assert.Equal(23*time.Hour, after.Sub(before))
	assert.Equal(9, AddWeeks(before, 1).Hour())
}

func TestShiftSpanPreservesDuration(t *testing.T) {
	assert := assert.New(t)
	start := at(2024, time.January, 31, 9, 0)
	end := start.Add(90 * time.Minute)
	ns, ne := ShiftSpan(start, end, func(t time.Time) time.Time { return AddMonths(t, 1) })
	assert.Equal(at(2024, time.February, 29, 9, 0), ns)
	assert.Equal(90*time.Minute, ne.Sub(ns))
}

func TestSameDayAndInRange(t *testing.T) {
	assert := assert.New(t)
	assert.True(SameDay(at(2024, time.March, 1, 0, 0), at(2024, time.March, 1, 23, 59)))
	assert.False(SameDay(at(2024, time.March, 1, 0, 0), at(2024, time.March, 2, 0, 0)))

	start, end := at(2024, time.March, 1, 0, 0), at(2024, time.March, 2, 0, 0)
	assert.True(InRange(start, start, end))
	assert.True(InRange(end, start, end))
	assert.False(InRange(end.Add(time.Second), start, end))
}
