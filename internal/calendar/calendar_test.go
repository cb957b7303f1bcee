package calendar_test

import (
	"testing"
	"time"

	"github.com/cug2104518294/quartz-explained/internal/calendar"
)

func TestExcludedDates_ExcludesWholeDay(t *testing.T) {
	c := calendar.NewExcludedDates(time.UTC, nil)
	holiday := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	c.Exclude(holiday)

	if c.IsTimeIncluded(time.Date(2026, time.January, 1, 23, 59, 0, 0, time.UTC)) {
		t.Error("expected the whole excluded day to be excluded")
	}
	if !c.IsTimeIncluded(time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected the following day to be included")
	}
}

func TestExcludedWeekdays_ExcludesWeekends(t *testing.T) {
	c := calendar.NewExcludedWeekdays(time.UTC, nil, time.Saturday, time.Sunday)
	saturday := time.Date(2026, time.January, 3, 10, 0, 0, 0, time.UTC)
	monday := time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC)

	if c.IsTimeIncluded(saturday) {
		t.Error("expected Saturday to be excluded")
	}
	if !c.IsTimeIncluded(monday) {
		t.Error("expected Monday to be included")
	}
}

func TestDailyWindow_RestrictsToBusinessHours(t *testing.T) {
	c := calendar.NewDailyWindow(time.UTC, nil, 9, 0, 17, 0)
	inside := time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC)
	before := time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC)
	after := time.Date(2026, time.January, 5, 18, 0, 0, 0, time.UTC)

	if !c.IsTimeIncluded(inside) {
		t.Error("expected noon to be within business hours")
	}
	if c.IsTimeIncluded(before) || c.IsTimeIncluded(after) {
		t.Error("expected times outside the window to be excluded")
	}
}

func TestChaining_BothMustIncludeForIncluded(t *testing.T) {
	weekdaysOnly := calendar.NewExcludedWeekdays(time.UTC, nil, time.Saturday, time.Sunday)
	businessHours := calendar.NewDailyWindow(time.UTC, weekdaysOnly, 9, 0, 17, 0)

	mondayNoon := time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC)
	saturdayNoon := time.Date(2026, time.January, 3, 12, 0, 0, 0, time.UTC)

	if !businessHours.IsTimeIncluded(mondayNoon) {
		t.Error("expected weekday business hours to be included")
	}
	if businessHours.IsTimeIncluded(saturdayNoon) {
		t.Error("expected weekend noon to be excluded even within the hour window")
	}
}
