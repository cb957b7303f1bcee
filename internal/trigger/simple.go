package trigger

import (
	"time"

	"github.com/cug2104518294/quartz-explained/internal/domain"
)

// RepeatForever marks a SimpleTrigger that never exhausts its repeat count.
const RepeatForever = -1

// SimpleTrigger fires once, or repeatCount+1 times spaced repeatInterval
// apart (spec.md §4.2). repeatCount == RepeatForever repeats indefinitely
// until endTime or explicit pause.
type SimpleTrigger struct {
	core
	repeatInterval time.Duration
	repeatCount    int
	timesTriggered int
}

func NewSimpleTrigger(key, jobKey domain.Key, startTime time.Time, endTime *time.Time, repeatInterval time.Duration, repeatCount int, data domain.DataMap) *SimpleTrigger {
	return &SimpleTrigger{
		core:           newCore(key, jobKey, startTime, endTime, data),
		repeatInterval: repeatInterval,
		repeatCount:    repeatCount,
	}
}

func (t *SimpleTrigger) Kind() Kind { return KindSimple }

func (t *SimpleTrigger) RepeatInterval() time.Duration { return t.repeatInterval }
func (t *SimpleTrigger) RepeatCount() int              { return t.repeatCount }
func (t *SimpleTrigger) TimesTriggered() int           { return t.timesTriggered }

func (t *SimpleTrigger) ComputeFirstFireTime(cal domain.Calendar) *time.Time {
	candidate := t.startTime
	fire := applyCalendar(&candidate, t.endTime, cal, func(rejected time.Time) *time.Time {
		if t.repeatInterval <= 0 {
			return nil
		}
		next := rejected.Add(t.repeatInterval)
		return &next
	})
	t.nextFire = fire
	return fire
}

func (t *SimpleTrigger) GetFireTimeAfter(after time.Time, cal domain.Calendar) *time.Time {
	if t.repeatCount != RepeatForever && t.timesTriggered > t.repeatCount {
		return nil
	}
	var candidate time.Time
	if !after.Before(t.startTime) {
		if t.repeatInterval <= 0 {
			return nil
		}
		elapsed := after.Sub(t.startTime)
		steps := int(elapsed/t.repeatInterval) + 1
		if t.repeatCount != RepeatForever && steps > t.repeatCount {
			return nil
		}
		candidate = t.startTime.Add(time.Duration(steps) * t.repeatInterval)
	} else {
		candidate = t.startTime
	}
	return applyCalendar(&candidate, t.endTime, cal, func(rejected time.Time) *time.Time {
		if t.repeatInterval <= 0 {
			return nil
		}
		next := rejected.Add(t.repeatInterval)
		return &next
	})
}

func (t *SimpleTrigger) Triggered(cal domain.Calendar) {
	t.timesTriggered++
	prev := *t.nextFire
	t.prevFire = &prev
	if t.repeatCount == RepeatForever || t.timesTriggered <= t.repeatCount {
		t.nextFire = t.GetFireTimeAfter(prev, cal)
	} else {
		t.nextFire = nil
	}
}

func (t *SimpleTrigger) UpdateAfterMisfire(cal domain.Calendar) {
	switch t.misfire {
	case MisfireSimpleFireNow:
		now := time.Now()
		t.nextFire = &now
	case MisfireSimpleRescheduleNowWithExistingRepeatCount, MisfireSimpleRescheduleNowWithRemainingRepeatCount:
		now := time.Now()
		if t.misfire == MisfireSimpleRescheduleNowWithRemainingRepeatCount && t.repeatCount != RepeatForever {
			t.repeatCount -= t.timesTriggered
		}
		t.nextFire = &now
	case MisfireSimpleRescheduleNextWithRemainingCount, MisfireSimpleRescheduleNextWithExistingCount:
		if t.misfire == MisfireSimpleRescheduleNextWithRemainingCount && t.repeatCount != RepeatForever {
			t.repeatCount -= t.timesTriggered
		}
		t.nextFire = t.GetFireTimeAfter(time.Now(), cal)
	default: // smart policy
		if t.repeatCount == 0 {
			now := time.Now()
			t.nextFire = &now
		} else {
			t.nextFire = t.GetFireTimeAfter(time.Now(), cal)
		}
	}
}
