package trigger_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cug2104518294/quartz-explained/internal/cronexpr"
	"github.com/cug2104518294/quartz-explained/internal/domain"
	"github.com/cug2104518294/quartz-explained/internal/trigger"
)

func roundTrip(t *testing.T, trg trigger.Trigger) trigger.Trigger {
	t.Helper()
	snap := trigger.ToSnapshot(trg)

	// Must survive an actual JSON round trip, not just a Go value copy —
	// this is the form a store persists.
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	var decoded trigger.Snapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}

	restored, err := trigger.FromSnapshot(decoded)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	return restored
}

func TestSimpleTrigger_SnapshotRoundTrip(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := trigger.NewSimpleTrigger(key("s1"), key("job1"), start, nil, time.Minute, 3, domain.DataMap{"k": "v"})
	tr.ComputeFirstFireTime(nil)
	tr.Triggered(nil)
	tr.Triggered(nil)

	restored := roundTrip(t, tr)

	if restored.Kind() != trigger.KindSimple {
		t.Fatalf("kind = %v, want SIMPLE", restored.Kind())
	}
	if restored.Key() != tr.Key() || restored.JobKey() != tr.JobKey() {
		t.Fatalf("key mismatch: got %v/%v, want %v/%v", restored.Key(), restored.JobKey(), tr.Key(), tr.JobKey())
	}
	if restored.NextFireTime() == nil || !restored.NextFireTime().Equal(*tr.NextFireTime()) {
		t.Fatalf("nextFireTime = %v, want %v", restored.NextFireTime(), tr.NextFireTime())
	}
	if restored.PreviousFireTime() == nil || !restored.PreviousFireTime().Equal(*tr.PreviousFireTime()) {
		t.Fatalf("previousFireTime = %v, want %v", restored.PreviousFireTime(), tr.PreviousFireTime())
	}
	rs, ok := restored.(*trigger.SimpleTrigger)
	if !ok {
		t.Fatalf("restored type = %T, want *SimpleTrigger", restored)
	}
	if rs.TimesTriggered() != tr.TimesTriggered() {
		t.Fatalf("timesTriggered = %d, want %d", rs.TimesTriggered(), tr.TimesTriggered())
	}
	if restored.Data()["k"] != "v" {
		t.Fatalf("data not preserved: %v", restored.Data())
	}
}

func TestCronTrigger_SnapshotRoundTrip(t *testing.T) {
	expr := cronexpr.MustParse("0 0 12 * * ?")
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := trigger.NewCronTrigger(key("c1"), key("job1"), start, nil, expr, time.UTC, nil)
	tr.ComputeFirstFireTime(nil)

	restored := roundTrip(t, tr)

	if restored.Kind() != trigger.KindCron {
		t.Fatalf("kind = %v, want CRON", restored.Kind())
	}
	if restored.NextFireTime() == nil || !restored.NextFireTime().Equal(*tr.NextFireTime()) {
		t.Fatalf("nextFireTime = %v, want %v", restored.NextFireTime(), tr.NextFireTime())
	}
}

func TestTrigger_SnapshotPreservesState(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := trigger.NewSimpleTrigger(key("s2"), key("job1"), start, nil, 0, 0, nil)
	tr.ComputeFirstFireTime(nil)
	tr.SetState(domain.StatePaused)

	restored := roundTrip(t, tr)
	if restored.State() != domain.StatePaused {
		t.Fatalf("state = %v, want PAUSED", restored.State())
	}
}

func TestFromSnapshot_UnknownKind(t *testing.T) {
	_, err := trigger.FromSnapshot(trigger.Snapshot{Kind: "BOGUS"})
	if err == nil {
		t.Fatal("expected an error for an unknown persisted kind")
	}
}
