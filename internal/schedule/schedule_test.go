package schedule_test

import (
	"math/rand"
	"testing"
	"time"

	"planline/internal/schedule"
)

func TestWeekdayDatesNeverReturnsWeekends(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	for count := 1; count <= 25; count++ {
		dates := schedule.WeekdayDates(rng, start, end, count)
		seen := map[string]bool{}
		for _, d := range dates {
			if !schedule.IsWeekday(d) {
				t.Fatalf("count=%d: got weekend date %s", count, d)
			}
			if d.Hour() != 12 || d.Location() != time.UTC {
				t.Fatalf("count=%d: date not noon UTC: %s", count, d)
			}
			key := d.Format("2006-01-02")
			if seen[key] {
				t.Fatalf("count=%d: duplicate date %s", count, key)
			}
			seen[key] = true
		}
		if len(dates) > count {
			t.Fatalf("count=%d: got %d dates", count, len(dates))
		}
	}
}

func TestWeekdayDatesShortfall(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	// 2024-03-04 is a Monday; one working week has 5 weekdays.
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	dates := schedule.WeekdayDates(rng, start, end, 10)
	if len(dates) != 5 {
		t.Fatalf("expected all 5 weekdays, got %d", len(dates))
	}
}

func TestWeekdayDatesDeterministicWithSeed(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	a := schedule.WeekdayDates(rand.New(rand.NewSource(42)), start, end, 6)
	b := schedule.WeekdayDates(rand.New(rand.NewSource(42)), start, end, 6)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			t.Fatalf("index %d: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestDueDateCountsBusinessDays(t *testing.T) {
	cases := []struct {
		publish time.Time
		days    int
		want    time.Time
	}{
		// Wednesday minus 2 business days is Monday.
		{time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), 2, time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)},
		// Monday minus 2 business days skips the weekend back to Thursday.
		{time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), 2, time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC)},
		// Tuesday minus 1 business day is Monday.
		{time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), 1, time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)},
		// Monday minus 1 business day is the previous Friday.
		{time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), 1, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got := schedule.DueDate(tc.publish, tc.days)
		if !got.Equal(tc.want) {
			t.Errorf("DueDate(%s, %d) = %s, want %s", tc.publish.Format("2006-01-02"), tc.days, got, tc.want)
		}
		if !schedule.IsWeekday(got) {
			t.Errorf("DueDate(%s, %d) landed on a weekend: %s", tc.publish.Format("2006-01-02"), tc.days, got)
		}
		if !got.Before(schedule.Noon(tc.publish)) {
			t.Errorf("DueDate(%s, %d) not strictly before publish", tc.publish.Format("2006-01-02"), tc.days)
		}
	}
}

func TestMonthRange(t *testing.T) {
	first, last := schedule.MonthRange(2024, 2)
	if first.Day() != 1 || first.Month() != time.February {
		t.Fatalf("first: %s", first)
	}
	if last.Day() != 29 || last.Month() != time.February {
		t.Fatalf("last: %s", last)
	}
}
