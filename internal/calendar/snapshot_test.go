package calendar_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cug2104518294/quartz-explained/internal/calendar"
)

func roundTripCalendar(t *testing.T, cal *calendar.ExcludedDates) calendar.Snapshot {
	t.Helper()
	snap, err := calendar.ToSnapshot(cal)
	if err != nil {
		t.Fatalf("ToSnapshot: %v", err)
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded calendar.Snapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return decoded
}

func TestExcludedDates_SnapshotRoundTrip(t *testing.T) {
	c := calendar.NewExcludedDates(time.UTC, nil)
	holiday := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	c.Exclude(holiday)

	decoded := roundTripCalendar(t, c)
	restored, err := calendar.FromSnapshot(decoded)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}

	if !restored.IsTimeIncluded(time.Date(2026, time.January, 2, 12, 0, 0, 0, time.UTC)) {
		t.Error("expected Jan 2 to remain included after round trip")
	}
	if restored.IsTimeIncluded(time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)) {
		t.Error("expected Jan 1 to remain excluded after round trip")
	}
}

func TestCalendarChain_SnapshotRoundTrip(t *testing.T) {
	weekdaysOnly := calendar.NewExcludedWeekdays(time.UTC, nil, time.Saturday, time.Sunday)
	businessHours := calendar.NewDailyWindow(time.UTC, weekdaysOnly, 9, 0, 17, 0)

	snap, err := calendar.ToSnapshot(businessHours)
	if err != nil {
		t.Fatalf("ToSnapshot: %v", err)
	}
	if snap.Next == nil {
		t.Fatal("expected chained calendar's snapshot to carry Next")
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded calendar.Snapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	restored, err := calendar.FromSnapshot(decoded)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}

	mondayNoon := time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC)
	saturdayNoon := time.Date(2026, time.January, 3, 12, 0, 0, 0, time.UTC)
	mondayNight := time.Date(2026, time.January, 5, 22, 0, 0, 0, time.UTC)

	if !restored.IsTimeIncluded(mondayNoon) {
		t.Error("expected weekday business hours to remain included after round trip")
	}
	if restored.IsTimeIncluded(saturdayNoon) {
		t.Error("expected weekend to remain excluded via the chained base calendar")
	}
	if restored.IsTimeIncluded(mondayNight) {
		t.Error("expected outside-business-hours to remain excluded")
	}
}

func TestCalendarFromSnapshot_UnknownKind(t *testing.T) {
	_, err := calendar.FromSnapshot(calendar.Snapshot{Kind: "BOGUS"})
	if err == nil {
		t.Fatal("expected an error for an unknown persisted kind")
	}
}
