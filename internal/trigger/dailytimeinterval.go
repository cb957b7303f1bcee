package trigger

import (
	"time"

	"github.com/cug2104518294/quartz-explained/internal/domain"
)

// TimeOfDay is a wall-clock time within a day, to second precision.
type TimeOfDay struct {
	Hour, Minute, Second int
}

func (d TimeOfDay) onDate(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, d.Hour, d.Minute, d.Second, 0, loc)
}

func (d TimeOfDay) before(o TimeOfDay) bool {
	if d.Hour != o.Hour {
		return d.Hour < o.Hour
	}
	if d.Minute != o.Minute {
		return d.Minute < o.Minute
	}
	return d.Second < o.Second
}

// DailyTimeIntervalTrigger fires every N units of clock time, restricted to
// a daily window [startTimeOfDay, endTimeOfDay] and an optional set of
// allowed weekdays (1..7, 1 = Sunday), restarting at startTimeOfDay each
// qualifying day.
type DailyTimeIntervalTrigger struct {
	core
	interval      int
	unit          IntervalUnit // Second, Minute, or Hour only
	startTimeOfDay TimeOfDay
	endTimeOfDay   TimeOfDay
	daysOfWeek     map[int]bool // nil/empty means every day
	loc            *time.Location
}

func NewDailyTimeIntervalTrigger(key, jobKey domain.Key, startTime time.Time, endTime *time.Time, interval int, unit IntervalUnit, startTOD, endTOD TimeOfDay, daysOfWeek []int, loc *time.Location, data domain.DataMap) *DailyTimeIntervalTrigger {
	if loc == nil {
		loc = time.UTC
	}
	var days map[int]bool
	if len(daysOfWeek) > 0 {
		days = make(map[int]bool, len(daysOfWeek))
		for _, d := range daysOfWeek {
			days[d] = true
		}
	}
	return &DailyTimeIntervalTrigger{
		core:           newCore(key, jobKey, startTime, endTime, data),
		interval:       interval,
		unit:           unit,
		startTimeOfDay: startTOD,
		endTimeOfDay:   endTOD,
		daysOfWeek:     days,
		loc:            loc,
	}
}

func (t *DailyTimeIntervalTrigger) Kind() Kind { return KindDailyTimeInterval }

func (t *DailyTimeIntervalTrigger) dayAllowed(year int, month time.Month, day int) bool {
	if len(t.daysOfWeek) == 0 {
		return true
	}
	return t.daysOfWeek[weekdayOf(year, month, day)]
}

// weekdayOf returns the day of week of a date, 1 = Sunday .. 7 = Saturday.
func weekdayOf(year int, month time.Month, day int) int {
	return int(time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Weekday()) + 1
}

func (t *DailyTimeIntervalTrigger) step(tm time.Time) time.Duration {
	switch t.unit {
	case UnitMinute:
		return time.Duration(t.interval) * time.Minute
	case UnitHour:
		return time.Duration(t.interval) * time.Hour
	default:
		return time.Duration(t.interval) * time.Second
	}
}

// GetFireTimeAfter finds the next slot strictly after `after` within the
// daily window on an allowed day, advancing day by day when a day's window
// is exhausted or the day itself is disallowed.
func (t *DailyTimeIntervalTrigger) GetFireTimeAfter(after time.Time, cal domain.Calendar) *time.Time {
	after = after.In(t.loc)
	if after.Before(t.startTime) {
		after = t.startTime.Add(-time.Second)
	}

	year, month, day := after.Date()
	for guard := 0; guard < 10000; guard++ {
		windowStart := t.startTimeOfDay.onDate(year, month, day, t.loc)
		windowEnd := t.endTimeOfDay.onDate(year, month, day, t.loc)

		if t.dayAllowed(year, month, day) {
			var candidate time.Time
			if after.Before(windowStart) {
				candidate = windowStart
			} else {
				step := t.step(after)
				if step <= 0 {
					candidate = windowStart
				} else {
					elapsed := after.Sub(windowStart)
					steps := int(elapsed/step) + 1
					candidate = windowStart.Add(time.Duration(steps) * step)
				}
			}
			if !candidate.After(windowEnd) && !candidate.Before(t.startTime) {
				if t.endTime != nil && candidate.After(*t.endTime) {
					return nil
				}
				if cal == nil || cal.IsTimeIncluded(candidate) {
					return &candidate
				}
				after = candidate
				continue
			}
		}
		// Move to the start of the next day.
		next := time.Date(year, month, day+1, 0, 0, 0, 0, t.loc)
		if t.endTime != nil && next.After(*t.endTime) {
			return nil
		}
		after = next.Add(-time.Second)
		year, month, day = next.Date()
	}
	return nil
}

func (t *DailyTimeIntervalTrigger) ComputeFirstFireTime(cal domain.Calendar) *time.Time {
	fire := t.GetFireTimeAfter(t.startTime.Add(-time.Second), cal)
	t.nextFire = fire
	return fire
}

func (t *DailyTimeIntervalTrigger) Triggered(cal domain.Calendar) {
	prev := *t.nextFire
	t.prevFire = &prev
	t.nextFire = t.GetFireTimeAfter(prev, cal)
}

func (t *DailyTimeIntervalTrigger) UpdateAfterMisfire(cal domain.Calendar) {
	t.nextFire = t.GetFireTimeAfter(time.Now(), cal)
}
