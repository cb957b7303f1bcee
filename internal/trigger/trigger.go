// Package trigger implements the per-variant next-fire computation,
// misfire handling, and state advancement described in spec.md §4.2 —
// Simple, Cron, Calendar-Interval, and Daily-Time-Interval triggers behind
// one closed, tag-switched interface (spec.md §9: "avoid an open
// hierarchy — variants are closed and versioned with the persistence
// format").
package trigger

import (
	"time"

	"github.com/cug2104518294/quartz-explained/internal/domain"
)

// Kind tags which concrete variant a Trigger is — used for persistence
// discriminators and for switching in the store without a type hierarchy.
type Kind string

const (
	KindSimple           Kind = "SIMPLE"
	KindCron             Kind = "CRON"
	KindCalendarInterval Kind = "CALENDAR_INTERVAL"
	KindDailyTimeInterval Kind = "DAILY_TIME_INTERVAL"
)

// Misfire is the misfire instruction attached to a trigger. Only a subset
// applies to each Kind; nothing validates the value, and a variant's
// UpdateAfterMisfire treats an instruction it does not handle as its
// default remedy.
type Misfire int

const (
	// MisfireSmartPolicy lets the variant choose its own default remedy —
	// the zero value, so triggers created without an explicit instruction
	// get sensible behaviour.
	MisfireSmartPolicy Misfire = iota

	// Cron
	MisfireCronFireOnceNow
	MisfireCronDoNothing

	// Simple
	MisfireSimpleFireNow
	MisfireSimpleRescheduleNowWithExistingRepeatCount
	MisfireSimpleRescheduleNowWithRemainingRepeatCount
	MisfireSimpleRescheduleNextWithRemainingCount
	MisfireSimpleRescheduleNextWithExistingCount

	// Calendar-interval / daily-time-interval
	MisfireIntervalDoNothing
)

// Trigger is the common surface every variant implements. Implementations
// are plain structs (no embedding tricks needed by callers) switched on
// Kind() wherever variant-specific behaviour is required.
type Trigger interface {
	Kind() Kind
	Key() domain.Key
	JobKey() domain.Key
	CalendarName() string
	Priority() int
	StartTime() time.Time
	EndTime() *time.Time
	PreviousFireTime() *time.Time
	NextFireTime() *time.Time
	MisfireInstruction() Misfire
	Data() domain.DataMap
	State() domain.TriggerState
	SetState(domain.TriggerState)

	// ComputeFirstFireTime computes and stores the first fire time,
	// honouring the calendar if non-nil, and returns it (nil if the
	// trigger can never fire — e.g. startTime > endTime).
	ComputeFirstFireTime(cal domain.Calendar) *time.Time

	// GetFireTimeAfter returns the next fire instant strictly after
	// `after`, honouring endTime and the calendar, without mutating
	// trigger state. Returns nil when the trigger has no more fires.
	GetFireTimeAfter(after time.Time, cal domain.Calendar) *time.Time

	// Triggered advances PreviousFireTime/NextFireTime/internal counters
	// after an actual fire — called by the store inside triggersFired.
	Triggered(cal domain.Calendar)

	// UpdateAfterMisfire applies the trigger's misfire instruction,
	// mutating NextFireTime in place.
	UpdateAfterMisfire(cal domain.Calendar)
}

// core holds the fields every variant shares; variant structs embed it.
type core struct {
	key          domain.Key
	jobKey       domain.Key
	calendarName string
	priority     int
	startTime    time.Time
	endTime      *time.Time
	prevFire     *time.Time
	nextFire     *time.Time
	misfire      Misfire
	data         domain.DataMap
	state        domain.TriggerState
}

const defaultPriority = 5

func newCore(key, jobKey domain.Key, startTime time.Time, endTime *time.Time, data domain.DataMap) core {
	return core{
		key:       key,
		jobKey:    jobKey,
		priority:  defaultPriority,
		startTime: startTime,
		endTime:   endTime,
		data:      data,
		state:     domain.StateWaiting,
	}
}

func (c *core) Key() domain.Key                      { return c.key }
func (c *core) JobKey() domain.Key                    { return c.jobKey }
func (c *core) CalendarName() string                  { return c.calendarName }
func (c *core) SetCalendarName(name string)            { c.calendarName = name }
func (c *core) Priority() int                         { return c.priority }
func (c *core) SetPriority(p int)                     { c.priority = p }
func (c *core) StartTime() time.Time                  { return c.startTime }
func (c *core) EndTime() *time.Time                   { return c.endTime }
func (c *core) PreviousFireTime() *time.Time          { return c.prevFire }
func (c *core) NextFireTime() *time.Time              { return c.nextFire }
func (c *core) MisfireInstruction() Misfire           { return c.misfire }
func (c *core) Data() domain.DataMap                  { return c.data }
func (c *core) State() domain.TriggerState            { return c.state }
func (c *core) SetState(s domain.TriggerState)        { c.state = s }

// withinWindow reports whether candidate is a legal fire time: not before
// startTime and (no endTime, or not after endTime).
func (c *core) withinWindow(candidate time.Time) bool {
	if candidate.Before(c.startTime) {
		return false
	}
	if c.endTime != nil && candidate.After(*c.endTime) {
		return false
	}
	return true
}

// applyCalendar advances `candidate` past any instant the calendar
// excludes, using nextFn to ask the variant for the next candidate after a
// rejected one. Returns nil once the window is exhausted or the calendar
// excludes everything remaining.
func applyCalendar(candidate *time.Time, endTime *time.Time, cal domain.Calendar, nextFn func(time.Time) *time.Time) *time.Time {
	for candidate != nil {
		if endTime != nil && candidate.After(*endTime) {
			return nil
		}
		if cal == nil || cal.IsTimeIncluded(*candidate) {
			return candidate
		}
		candidate = nextFn(*candidate)
	}
	return nil
}
