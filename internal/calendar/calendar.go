// Package calendar provides concrete domain.Calendar implementations.
// Sourcing holiday data itself is out of scope (spec.md §1): these types
// only implement the exclusion mechanics a caller feeds dates/times into.
// Grounded on Quartz's own calendar.* chaining design (each calendar wraps
// an optional base calendar; a time is included only if both agree).
package calendar

import (
	"time"

	"github.com/cug2104518294/quartz-explained/internal/domain"
)

// base lets any calendar in this package chain onto another: a time is
// included only if it's included by both this calendar and the base.
type base struct {
	next domain.Calendar
}

func (b base) includedByBase(t time.Time) bool {
	if b.next == nil {
		return true
	}
	return b.next.IsTimeIncluded(t)
}

// ExcludedDates excludes a fixed set of whole calendar days (holidays),
// identified by their (year, month, day) in a given location. Matches
// Quartz's HolidayCalendar/AnnualCalendar shape, minus any notion of
// where the dates come from.
type ExcludedDates struct {
	base
	loc     *time.Location
	dates   map[dateKey]struct{}
}

type dateKey struct {
	year  int
	month time.Month
	day   int
}

func NewExcludedDates(loc *time.Location, next domain.Calendar) *ExcludedDates {
	if loc == nil {
		loc = time.UTC
	}
	return &ExcludedDates{base: base{next: next}, loc: loc, dates: make(map[dateKey]struct{})}
}

// Exclude adds a whole day to the exclusion set.
func (c *ExcludedDates) Exclude(t time.Time) {
	t = t.In(c.loc)
	c.dates[dateKey{t.Year(), t.Month(), t.Day()}] = struct{}{}
}

// Include removes a previously excluded day, if present.
func (c *ExcludedDates) Include(t time.Time) {
	t = t.In(c.loc)
	delete(c.dates, dateKey{t.Year(), t.Month(), t.Day()})
}

func (c *ExcludedDates) IsTimeIncluded(t time.Time) bool {
	if !c.includedByBase(t) {
		return false
	}
	local := t.In(c.loc)
	_, excluded := c.dates[dateKey{local.Year(), local.Month(), local.Day()}]
	return !excluded
}

// ExcludedWeekdays excludes whole weekdays (e.g. Saturday/Sunday), evaluated
// in a given location. Matches Quartz's WeeklyCalendar.
type ExcludedWeekdays struct {
	base
	loc      *time.Location
	excluded map[time.Weekday]bool
}

func NewExcludedWeekdays(loc *time.Location, next domain.Calendar, days ...time.Weekday) *ExcludedWeekdays {
	if loc == nil {
		loc = time.UTC
	}
	c := &ExcludedWeekdays{base: base{next: next}, loc: loc, excluded: make(map[time.Weekday]bool)}
	for _, d := range days {
		c.excluded[d] = true
	}
	return c
}

func (c *ExcludedWeekdays) IsTimeIncluded(t time.Time) bool {
	if !c.includedByBase(t) {
		return false
	}
	return !c.excluded[t.In(c.loc).Weekday()]
}

// DailyWindow excludes times outside a daily [start, end) wall-clock
// window (e.g. business hours), evaluated in a given location. Matches
// Quartz's DailyCalendar.
type DailyWindow struct {
	base
	loc         *time.Location
	startHour   int
	startMinute int
	endHour     int
	endMinute   int
}

func NewDailyWindow(loc *time.Location, next domain.Calendar, startHour, startMinute, endHour, endMinute int) *DailyWindow {
	if loc == nil {
		loc = time.UTC
	}
	return &DailyWindow{
		base: base{next: next}, loc: loc,
		startHour: startHour, startMinute: startMinute,
		endHour: endHour, endMinute: endMinute,
	}
}

func (c *DailyWindow) IsTimeIncluded(t time.Time) bool {
	if !c.includedByBase(t) {
		return false
	}
	local := t.In(c.loc)
	minuteOfDay := local.Hour()*60 + local.Minute()
	start := c.startHour*60 + c.startMinute
	end := c.endHour*60 + c.endMinute
	return minuteOfDay >= start && minuteOfDay < end
}

var (
	_ domain.Calendar = (*ExcludedDates)(nil)
	_ domain.Calendar = (*ExcludedWeekdays)(nil)
	_ domain.Calendar = (*DailyWindow)(nil)
)
