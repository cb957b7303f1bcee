package trigger

import (
	"time"

	"github.com/cug2104518294/quartz-explained/internal/domain"
)

// IntervalUnit is the unit a CalendarIntervalTrigger's interval is counted
// in. Month/year intervals use calendar arithmetic (time.AddDate), so a
// one-month interval from Jan 31 lands on the normalized day in March —
// matching time.Time's own AddDate semantics rather than a fixed duration.
type IntervalUnit int

const (
	UnitSecond IntervalUnit = iota
	UnitMinute
	UnitHour
	UnitDay
	UnitWeek
	UnitMonth
	UnitYear
)

// CalendarIntervalTrigger fires every N units of calendar time starting at
// startTime, preserving time-of-day across DST transitions (spec.md §4.2).
type CalendarIntervalTrigger struct {
	core
	interval     int
	unit         IntervalUnit
	loc          *time.Location
	preserveTime bool
}

func NewCalendarIntervalTrigger(key, jobKey domain.Key, startTime time.Time, endTime *time.Time, interval int, unit IntervalUnit, loc *time.Location, data domain.DataMap) *CalendarIntervalTrigger {
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarIntervalTrigger{
		core:         newCore(key, jobKey, startTime, endTime, data),
		interval:     interval,
		unit:         unit,
		loc:          loc,
		preserveTime: true,
	}
}

func (t *CalendarIntervalTrigger) Kind() Kind             { return KindCalendarInterval }
func (t *CalendarIntervalTrigger) Interval() int          { return t.interval }
func (t *CalendarIntervalTrigger) Unit() IntervalUnit     { return t.unit }

func (t *CalendarIntervalTrigger) advance(from time.Time) time.Time {
	from = from.In(t.loc)
	switch t.unit {
	case UnitSecond:
		return from.Add(time.Duration(t.interval) * time.Second)
	case UnitMinute:
		return from.Add(time.Duration(t.interval) * time.Minute)
	case UnitHour:
		return from.Add(time.Duration(t.interval) * time.Hour)
	case UnitDay:
		return from.AddDate(0, 0, t.interval)
	case UnitWeek:
		return from.AddDate(0, 0, t.interval*7)
	case UnitMonth:
		return from.AddDate(0, t.interval, 0)
	case UnitYear:
		return from.AddDate(t.interval, 0, 0)
	default:
		return from.AddDate(0, 0, t.interval)
	}
}

func (t *CalendarIntervalTrigger) ComputeFirstFireTime(cal domain.Calendar) *time.Time {
	candidate := t.startTime
	fire := applyCalendar(&candidate, t.endTime, cal, func(rejected time.Time) *time.Time {
		next := t.advance(rejected)
		return &next
	})
	t.nextFire = fire
	return fire
}

func (t *CalendarIntervalTrigger) GetFireTimeAfter(after time.Time, cal domain.Calendar) *time.Time {
	candidate := t.startTime
	if after.Before(candidate) {
		return applyCalendar(&candidate, t.endTime, cal, func(rejected time.Time) *time.Time {
			next := t.advance(rejected)
			return &next
		})
	}
	for guard := 0; guard < 10000 && !candidate.After(after); guard++ {
		candidate = t.advance(candidate)
	}
	return applyCalendar(&candidate, t.endTime, cal, func(rejected time.Time) *time.Time {
		next := t.advance(rejected)
		return &next
	})
}

func (t *CalendarIntervalTrigger) Triggered(cal domain.Calendar) {
	prev := *t.nextFire
	t.prevFire = &prev
	t.nextFire = t.GetFireTimeAfter(prev, cal)
}

func (t *CalendarIntervalTrigger) UpdateAfterMisfire(cal domain.Calendar) {
	// Calendar-interval triggers only support do-nothing: catch up to the
	// next legal interval boundary after now.
	t.nextFire = t.GetFireTimeAfter(time.Now(), cal)
}
