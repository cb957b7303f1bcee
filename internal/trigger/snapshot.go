package trigger

import (
	"fmt"
	"time"

	"github.com/cug2104518294/quartz-explained/internal/cronexpr"
	"github.com/cug2104518294/quartz-explained/internal/domain"
)

// Snapshot is the variant-agnostic, JSON-serializable persistence form of
// a Trigger (spec.md §9's "variants are closed and versioned with the
// persistence format"). A store implementation round-trips a Trigger
// through ToSnapshot/FromSnapshot instead of reaching into package-private
// fields directly.
type Snapshot struct {
	Kind         Kind             `json:"kind"`
	Key          domain.Key       `json:"key"`
	JobKey       domain.Key       `json:"jobKey"`
	CalendarName string           `json:"calendarName,omitempty"`
	Priority     int              `json:"priority"`
	StartTime    time.Time        `json:"startTime"`
	EndTime      *time.Time       `json:"endTime,omitempty"`
	PrevFireTime *time.Time       `json:"prevFireTime,omitempty"`
	NextFireTime *time.Time       `json:"nextFireTime,omitempty"`
	Misfire      Misfire          `json:"misfire"`
	Data         domain.DataMap   `json:"data,omitempty"`
	State        domain.TriggerState `json:"state"`

	// Simple
	RepeatInterval time.Duration `json:"repeatInterval,omitempty"`
	RepeatCount    int           `json:"repeatCount,omitempty"`
	TimesTriggered int           `json:"timesTriggered,omitempty"`

	// Cron
	CronExpression string `json:"cronExpression,omitempty"`
	Location       string `json:"location,omitempty"`

	// Calendar-interval
	Interval     int  `json:"interval,omitempty"`
	Unit         IntervalUnit `json:"unit,omitempty"`
	PreserveTime bool `json:"preserveTime,omitempty"`

	// Daily-time-interval
	StartTimeOfDay *TimeOfDay `json:"startTimeOfDay,omitempty"`
	EndTimeOfDay   *TimeOfDay `json:"endTimeOfDay,omitempty"`
	DaysOfWeek     []int      `json:"daysOfWeek,omitempty"`
}

// ToSnapshot captures trg's full persistable state, variant fields
// included.
func ToSnapshot(trg Trigger) Snapshot {
	s := Snapshot{
		Kind:         trg.Kind(),
		Key:          trg.Key(),
		JobKey:       trg.JobKey(),
		CalendarName: trg.CalendarName(),
		Priority:     trg.Priority(),
		StartTime:    trg.StartTime(),
		EndTime:      trg.EndTime(),
		PrevFireTime: trg.PreviousFireTime(),
		NextFireTime: trg.NextFireTime(),
		Misfire:      trg.MisfireInstruction(),
		Data:         trg.Data(),
		State:        trg.State(),
	}

	switch t := trg.(type) {
	case *SimpleTrigger:
		s.RepeatInterval = t.repeatInterval
		s.RepeatCount = t.repeatCount
		s.TimesTriggered = t.timesTriggered
	case *CronTrigger:
		s.CronExpression = t.expr.String()
		s.Location = t.loc.String()
	case *CalendarIntervalTrigger:
		s.Interval = t.interval
		s.Unit = t.unit
		s.Location = t.loc.String()
		s.PreserveTime = t.preserveTime
	case *DailyTimeIntervalTrigger:
		s.Interval = t.interval
		s.Unit = t.unit
		s.Location = t.loc.String()
		startTOD := t.startTimeOfDay
		endTOD := t.endTimeOfDay
		s.StartTimeOfDay = &startTOD
		s.EndTimeOfDay = &endTOD
		for day := range t.daysOfWeek {
			s.DaysOfWeek = append(s.DaysOfWeek, day)
		}
	}
	return s
}

// FromSnapshot reconstructs the concrete Trigger variant s describes,
// restoring prevFire/nextFire/timesTriggered exactly as persisted rather
// than recomputing them — a restart must not silently skip or repeat a
// fire.
func FromSnapshot(s Snapshot) (Trigger, error) {
	var loc *time.Location
	if s.Location != "" {
		var err error
		loc, err = time.LoadLocation(s.Location)
		if err != nil {
			return nil, fmt.Errorf("trigger: load location %q: %w", s.Location, err)
		}
	}

	var trg Trigger
	switch s.Kind {
	case KindSimple:
		t := NewSimpleTrigger(s.Key, s.JobKey, s.StartTime, s.EndTime, s.RepeatInterval, s.RepeatCount, s.Data)
		t.timesTriggered = s.TimesTriggered
		trg = t
	case KindCron:
		expr, err := cronexpr.Parse(s.CronExpression)
		if err != nil {
			return nil, fmt.Errorf("trigger: parse cron expression %q: %w", s.CronExpression, err)
		}
		trg = NewCronTrigger(s.Key, s.JobKey, s.StartTime, s.EndTime, expr, loc, s.Data)
	case KindCalendarInterval:
		t := NewCalendarIntervalTrigger(s.Key, s.JobKey, s.StartTime, s.EndTime, s.Interval, s.Unit, loc, s.Data)
		t.preserveTime = s.PreserveTime
		trg = t
	case KindDailyTimeInterval:
		var startTOD, endTOD TimeOfDay
		if s.StartTimeOfDay != nil {
			startTOD = *s.StartTimeOfDay
		}
		if s.EndTimeOfDay != nil {
			endTOD = *s.EndTimeOfDay
		}
		trg = NewDailyTimeIntervalTrigger(s.Key, s.JobKey, s.StartTime, s.EndTime, s.Interval, s.Unit, startTOD, endTOD, s.DaysOfWeek, loc, s.Data)
	default:
		return nil, fmt.Errorf("trigger: unknown persisted kind %q", s.Kind)
	}

	restoreCore(trg, s)
	return trg, nil
}

// restoreCore writes back the shared core fields every variant embeds,
// bypassing the New*Trigger constructors (which only know startup
// defaults) and the Compute/Triggered methods (which derive fire times
// rather than accept persisted ones).
func restoreCore(trg Trigger, s Snapshot) {
	switch t := trg.(type) {
	case *SimpleTrigger:
		t.core = coreFromSnapshot(s)
	case *CronTrigger:
		t.core = coreFromSnapshot(s)
	case *CalendarIntervalTrigger:
		t.core = coreFromSnapshot(s)
	case *DailyTimeIntervalTrigger:
		t.core = coreFromSnapshot(s)
	}
}

func coreFromSnapshot(s Snapshot) core {
	return core{
		key:          s.Key,
		jobKey:       s.JobKey,
		calendarName: s.CalendarName,
		priority:     s.Priority,
		startTime:    s.StartTime,
		endTime:      s.EndTime,
		prevFire:     s.PrevFireTime,
		nextFire:     s.NextFireTime,
		misfire:      s.Misfire,
		data:         s.Data,
		state:        s.State,
	}
}
