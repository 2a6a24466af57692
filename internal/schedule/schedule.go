// Package schedule provides the calendar math used when assigning publish and
// due dates: weekday-only date picking and business-day offsets. All returned
// dates are normalized to 12:00 UTC so a later serialization cannot shift them
// across a day boundary.
package schedule

import (
	"math/rand"
	"time"
)

// Noon normalizes a date to 12:00 UTC on the same calendar day.
func Noon(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, time.UTC)
}

// IsWeekday reports whether d falls on Monday through Friday.
func IsWeekday(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// WeekdayDates returns up to count distinct weekday dates within [start, end]
// inclusive, chosen at random from the available weekdays. When count meets or
// exceeds the number of weekdays in the range, every weekday is returned and
// the caller handles the shortfall. No ordering is guaranteed.
func WeekdayDates(rng *rand.Rand, start, end time.Time, count int) []time.Time {
	if count <= 0 {
		return nil
	}
	var pool []time.Time
	for d, last := Noon(start), Noon(end); !d.After(last); d = d.AddDate(0, 0, 1) {
		if IsWeekday(d) {
			pool = append(pool, d)
		}
	}
	if count >= len(pool) {
		return pool
	}
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return pool[:count]
}

// DueDate walks backward from publish one calendar day at a time; a step counts
// toward businessDays only when it lands on a weekday. For businessDays >= 1 the
// result is a weekday strictly before publish.
func DueDate(publish time.Time, businessDays int) time.Time {
	d := Noon(publish)
	for remaining := businessDays; remaining > 0; {
		d = d.AddDate(0, 0, -1)
		if IsWeekday(d) {
			remaining--
		}
	}
	return d
}

// MonthRange returns the first and last day of the given month, noon-normalized.
func MonthRange(year, month int) (time.Time, time.Time) {
	first := time.Date(year, time.Month(month), 1, 12, 0, 0, 0, time.UTC)
	return first, first.AddDate(0, 1, -1)
}
