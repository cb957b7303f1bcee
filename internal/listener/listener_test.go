package listener_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cug2104518294/quartz-explained/internal/domain"
	"github.com/cug2104518294/quartz-explained/internal/listener"
)

type recordingTriggerListener struct {
	name  string
	fired []domain.Key
	veto  bool
}

func (l *recordingTriggerListener) Name() string { return l.name }
func (l *recordingTriggerListener) TriggerFired(ev listener.FireEvent) bool {
	l.fired = append(l.fired, ev.TriggerKey)
	return l.veto
}
func (l *recordingTriggerListener) TriggerMisfired(listener.FireEvent) {}
func (l *recordingTriggerListener) TriggerComplete(listener.FireEvent, domain.CompletionInstruction) {}

func TestBroadcastTriggerFired_OnlyMatchingListenersNotified(t *testing.T) {
	m := listener.NewManager(nil)
	groupA := &recordingTriggerListener{name: "groupA"}
	everything := &recordingTriggerListener{name: "everything"}

	m.AddTriggerListener(groupA, listener.MatchGroupEquals("A"))
	m.AddTriggerListener(everything)

	keyA := domain.NewKey("A", "t1")
	keyB := domain.NewKey("B", "t2")

	m.BroadcastTriggerFired(listener.FireEvent{TriggerKey: keyA})
	m.BroadcastTriggerFired(listener.FireEvent{TriggerKey: keyB})

	if len(groupA.fired) != 1 || groupA.fired[0] != keyA {
		t.Errorf("groupA listener fired = %v, want [%v]", groupA.fired, keyA)
	}
	if len(everything.fired) != 2 {
		t.Errorf("everything listener fired %d times, want 2", len(everything.fired))
	}
}

func TestBroadcastTriggerFired_VetoAggregates(t *testing.T) {
	m := listener.NewManager(nil)
	m.AddTriggerListener(&recordingTriggerListener{name: "a", veto: false})
	m.AddTriggerListener(&recordingTriggerListener{name: "b", veto: true})

	veto := m.BroadcastTriggerFired(listener.FireEvent{TriggerKey: domain.NewKey("", "t1")})
	if !veto {
		t.Error("expected veto=true when any listener vetoes")
	}
}

type panickyListener struct{}

func (panickyListener) Name() string                  { return "panicky" }
func (panickyListener) TriggerFired(listener.FireEvent) bool { panic("boom") }
func (panickyListener) TriggerMisfired(listener.FireEvent)   {}
func (panickyListener) TriggerComplete(listener.FireEvent, domain.CompletionInstruction) {}

func TestBroadcastTriggerFired_PanicDoesNotStopBroadcast(t *testing.T) {
	m := listener.NewManager(nil)
	m.AddTriggerListener(panickyListener{})
	after := &recordingTriggerListener{name: "after"}
	m.AddTriggerListener(after)

	key := domain.NewKey("", "t1")
	m.BroadcastTriggerFired(listener.FireEvent{TriggerKey: key})

	if len(after.fired) != 1 {
		t.Errorf("listener after the panicking one did not run: fired=%v", after.fired)
	}
}

type fakeSender struct {
	to, subject, body string
	err               error
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	f.to, f.subject, f.body = to, subject, body
	return f.err
}

func TestEmailNotifyListener_SendsOnlyOnFailure(t *testing.T) {
	sender := &fakeSender{}
	l := listener.NewEmailNotifyListener(sender, "ops@example.com", nil)

	ev := listener.FireEvent{JobKey: domain.NewKey("", "job1"), TriggerKey: domain.NewKey("", "t1")}
	l.JobWasExecuted(ev, nil)
	if sender.to != "" {
		t.Errorf("sent email on success: %+v", sender)
	}

	l.JobWasExecuted(ev, errors.New("boom"))
	if sender.to != "ops@example.com" {
		t.Errorf("did not send email on failure: %+v", sender)
	}
}
