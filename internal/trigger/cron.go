package trigger

import (
	"time"

	"github.com/cug2104518294/quartz-explained/internal/cronexpr"
	"github.com/cug2104518294/quartz-explained/internal/domain"
)

// CronTrigger fires on the schedule described by a Quartz-style cron
// expression (internal/cronexpr), evaluated in a fixed IANA location.
type CronTrigger struct {
	core
	expr *cronexpr.Expression
	loc  *time.Location
}

func NewCronTrigger(key, jobKey domain.Key, startTime time.Time, endTime *time.Time, expr *cronexpr.Expression, loc *time.Location, data domain.DataMap) *CronTrigger {
	if loc == nil {
		loc = time.UTC
	}
	return &CronTrigger{
		core: newCore(key, jobKey, startTime, endTime, data),
		expr: expr,
		loc:  loc,
	}
}

func (t *CronTrigger) Kind() Kind                { return KindCron }
func (t *CronTrigger) Expression() *cronexpr.Expression { return t.expr }
func (t *CronTrigger) Location() *time.Location  { return t.loc }

func (t *CronTrigger) ComputeFirstFireTime(cal domain.Calendar) *time.Time {
	fire := t.GetFireTimeAfter(t.startTime.Add(-time.Second), cal)
	t.nextFire = fire
	return fire
}

func (t *CronTrigger) nextOrNil(after time.Time) *time.Time {
	next, ok := t.expr.Next(after, t.loc)
	if !ok {
		return nil
	}
	return &next
}

func (t *CronTrigger) GetFireTimeAfter(after time.Time, cal domain.Calendar) *time.Time {
	if after.Before(t.startTime) {
		after = t.startTime.Add(-time.Second)
	}
	candidate := t.nextOrNil(after)
	return applyCalendar(candidate, t.endTime, cal, t.nextOrNil)
}

func (t *CronTrigger) Triggered(cal domain.Calendar) {
	prev := *t.nextFire
	t.prevFire = &prev
	t.nextFire = t.GetFireTimeAfter(prev, cal)
}

func (t *CronTrigger) UpdateAfterMisfire(cal domain.Calendar) {
	switch t.misfire {
	case MisfireCronDoNothing:
		t.nextFire = t.GetFireTimeAfter(time.Now(), cal)
	case MisfireCronFireOnceNow:
		now := time.Now()
		t.nextFire = &now
	default: // smart policy behaves like fire-once-now for cron triggers
		now := time.Now()
		t.nextFire = &now
	}
}
