package cronexpr_test

import (
	"testing"
	"time"

	"github.com/cug2104518294/quartz-explained/internal/cronexpr"
)

func mustParse(t *testing.T, expr string) *cronexpr.Expression {
	t.Helper()
	e, err := cronexpr.Parse(expr)
	if err != nil {
		t.Fatalf("Parse(%q): %v", expr, err)
	}
	return e
}

func TestNext_EveryDayAtNoon(t *testing.T) {
	e := mustParse(t, "0 0 12 * * ?")
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, ok := e.Next(after, time.UTC)
	if !ok {
		t.Fatal("expected a next fire time")
	}
	want := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

func TestNext_WeekdaysOnly(t *testing.T) {
	e := mustParse(t, "0 0 9 ? * MON-FRI")
	// 2026-01-03 is a Saturday; next weekday fire should be Monday 2026-01-05.
	after := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	next, ok := e.Next(after, time.UTC)
	if !ok {
		t.Fatal("expected a next fire time")
	}
	want := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

func TestNext_NthFridayOfMonth(t *testing.T) {
	e := mustParse(t, "0 0 0 ? * FRI#3")
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, ok := e.Next(after, time.UTC)
	if !ok {
		t.Fatal("expected a next fire time")
	}
	if next.Weekday() != time.Friday {
		t.Fatalf("got %v, not a Friday", next)
	}
	// Third Friday of January 2026 is the 16th.
	want := time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

func TestNext_LastDayOfMonth(t *testing.T) {
	e := mustParse(t, "0 0 0 L * ?")
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, ok := e.Next(after, time.UTC)
	if !ok {
		t.Fatal("expected a next fire time")
	}
	want := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}

	// February 2026 is not a leap year: last day is the 28th.
	after2 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	next2, ok := e.Next(after2, time.UTC)
	if !ok {
		t.Fatal("expected a next fire time")
	}
	want2 := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	if !next2.Equal(want2) {
		t.Errorf("Next = %v, want %v", next2, want2)
	}
}

func TestNext_SpringForwardGapIsForgotten(t *testing.T) {
	// America/New_York: 2026-03-08 02:00 -> 03:00 (2:30 never exists).
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	e := mustParse(t, "0 30 2 * * ?")
	after := time.Date(2026, 3, 7, 12, 0, 0, 0, loc)
	next, ok := e.Next(after, loc)
	if !ok {
		t.Fatal("expected a next fire time")
	}
	// The forgotten 2026-03-08 02:30 is skipped; next fire is 2026-03-09 02:30.
	want := time.Date(2026, 3, 9, 2, 30, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v (spring-forward gap not forgotten)", next, want)
	}
}

func TestParse_RejectsAmbiguousDayFields(t *testing.T) {
	cases := []string{
		"0 0 0 * * *",  // neither is ?
		"0 0 0 ? * ?",  // both are ?
	}
	for _, expr := range cases {
		if _, err := cronexpr.Parse(expr); err == nil {
			t.Errorf("Parse(%q): expected error, got nil", expr)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	exprs := []string{
		"0 0 12 * * ?",
		"0 15,45 9-17 ? * MON-FRI",
		"0 0 0 1 1-6 ?",
	}
	for _, raw := range exprs {
		e1 := mustParse(t, raw)
		e2 := mustParse(t, e1.String())
		if e1.String() != e2.String() {
			t.Errorf("round trip mismatch: %q -> %q -> %q", raw, e1.String(), e2.String())
		}
	}
}
