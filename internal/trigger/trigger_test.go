package trigger_test

import (
	"testing"
	"time"

	"github.com/cug2104518294/quartz-explained/internal/cronexpr"
	"github.com/cug2104518294/quartz-explained/internal/domain"
	"github.com/cug2104518294/quartz-explained/internal/trigger"
)

func key(name string) domain.Key { return domain.NewKey(domain.DefaultGroup, name) }

func TestSimpleTrigger_RepeatsAtFixedInterval(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := trigger.NewSimpleTrigger(key("s1"), key("job1"), start, nil, time.Minute, 2, nil)

	first := tr.ComputeFirstFireTime(nil)
	if first == nil || !first.Equal(start) {
		t.Fatalf("first fire = %v, want %v", first, start)
	}

	tr.Triggered(nil)
	if tr.TimesTriggered() != 1 {
		t.Fatalf("timesTriggered = %d, want 1", tr.TimesTriggered())
	}
	want := start.Add(time.Minute)
	if tr.NextFireTime() == nil || !tr.NextFireTime().Equal(want) {
		t.Fatalf("next fire = %v, want %v", tr.NextFireTime(), want)
	}

	tr.Triggered(nil)
	tr.Triggered(nil) // repeatCount exhausted after 2 repeats (3 total fires)
	if tr.NextFireTime() != nil {
		t.Fatalf("expected no more fires once repeatCount exhausted, got %v", tr.NextFireTime())
	}
}

func TestSimpleTrigger_RepeatForeverNeverExhausts(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := trigger.NewSimpleTrigger(key("s2"), key("job1"), start, nil, time.Hour, trigger.RepeatForever, nil)
	tr.ComputeFirstFireTime(nil)
	for i := 0; i < 5; i++ {
		tr.Triggered(nil)
		if tr.NextFireTime() == nil {
			t.Fatalf("iteration %d: expected a next fire time for RepeatForever", i)
		}
	}
}

func TestCronTrigger_GetFireTimeAfterMatchesExpression(t *testing.T) {
	expr := cronexpr.MustParse("0 0 12 * * ?")
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := trigger.NewCronTrigger(key("c1"), key("job1"), start, nil, expr, time.UTC, nil)

	first := tr.ComputeFirstFireTime(nil)
	want := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if first == nil || !first.Equal(want) {
		t.Fatalf("first fire = %v, want %v", first, want)
	}

	tr.Triggered(nil)
	wantNext := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	if tr.NextFireTime() == nil || !tr.NextFireTime().Equal(wantNext) {
		t.Fatalf("next fire = %v, want %v", tr.NextFireTime(), wantNext)
	}
}

func TestCronTrigger_RespectsEndTime(t *testing.T) {
	expr := cronexpr.MustParse("0 0 12 * * ?")
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	tr := trigger.NewCronTrigger(key("c2"), key("job1"), start, &end, expr, time.UTC, nil)

	tr.ComputeFirstFireTime(nil)
	tr.Triggered(nil) // fires once on Jan 1; Jan 2 12:00 is past endTime
	if tr.NextFireTime() != nil {
		t.Fatalf("expected no fire past endTime, got %v", tr.NextFireTime())
	}
}

type blockingCalendar struct {
	blocked map[string]bool
}

func (c blockingCalendar) IsTimeIncluded(t time.Time) bool {
	return !c.blocked[t.Format("2006-01-02")]
}

func TestCronTrigger_SkipsCalendarExcludedDays(t *testing.T) {
	expr := cronexpr.MustParse("0 0 12 * * ?")
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cal := blockingCalendar{blocked: map[string]bool{"2026-01-02": true}}
	tr := trigger.NewCronTrigger(key("c3"), key("job1"), start, nil, expr, time.UTC, nil)

	tr.ComputeFirstFireTime(cal)
	tr.Triggered(cal)
	want := time.Date(2026, 1, 3, 12, 0, 0, 0, time.UTC)
	if tr.NextFireTime() == nil || !tr.NextFireTime().Equal(want) {
		t.Fatalf("next fire = %v, want %v (calendar-excluded day not skipped)", tr.NextFireTime(), want)
	}
}

func TestCalendarIntervalTrigger_MonthlyPreservesDayAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	start := time.Date(2026, 2, 15, 9, 0, 0, 0, loc)
	tr := trigger.NewCalendarIntervalTrigger(key("ci1"), key("job1"), start, nil, 1, trigger.UnitMonth, loc, nil)

	first := tr.ComputeFirstFireTime(nil)
	if first == nil || !first.Equal(start) {
		t.Fatalf("first fire = %v, want %v", first, start)
	}
	tr.Triggered(nil) // March 15 2026 is after the US spring-forward (Mar 8); 09:00 still exists locally.
	want := time.Date(2026, 3, 15, 9, 0, 0, 0, loc)
	if tr.NextFireTime() == nil || !tr.NextFireTime().Equal(want) {
		t.Fatalf("next fire = %v, want %v", tr.NextFireTime(), want)
	}
}

func TestDailyTimeIntervalTrigger_RestartsWindowEachAllowedDay(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC) // Monday
	tr := trigger.NewDailyTimeIntervalTrigger(
		key("dti1"), key("job1"), start, nil,
		2, trigger.UnitHour,
		trigger.TimeOfDay{Hour: 9}, trigger.TimeOfDay{Hour: 17},
		[]int{2, 3, 4, 5, 6}, // Mon-Fri, 1=Sunday numbering
		time.UTC, nil,
	)

	first := tr.ComputeFirstFireTime(nil)
	want := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	if first == nil || !first.Equal(want) {
		t.Fatalf("first fire = %v, want %v", first, want)
	}

	// Walk fires through the end of the day's window; the next one should
	// land on the next weekday's window start, not Saturday.
	cur := *first
	for i := 0; i < 4; i++ { // 09:00, 11:00, 13:00, 15:00, 17:00 = 5 slots
		next := tr.GetFireTimeAfter(cur, nil)
		if next == nil {
			t.Fatalf("iteration %d: expected a fire, got nil", i)
		}
		cur = *next
	}
	last := tr.GetFireTimeAfter(cur, nil)
	wantNextDay := time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC) // Tuesday
	if last == nil || !last.Equal(wantNextDay) {
		t.Fatalf("next day fire = %v, want %v", last, wantNextDay)
	}
}
