package registry_test

import (
	"testing"

	"github.com/cug2104518294/quartz-explained/internal/registry"
)

type fakeScheduler struct {
	name, instanceID string
}

func (f fakeScheduler) SchedulerName() string       { return f.name }
func (f fakeScheduler) SchedulerInstanceID() string { return f.instanceID }

func TestRegister_DuplicateNameRejected(t *testing.T) {
	r := registry.New()
	if err := r.Register(fakeScheduler{name: "main", instanceID: "a"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(fakeScheduler{name: "main", instanceID: "b"}); err == nil {
		t.Fatal("expected error registering a duplicate scheduler name")
	}
}

func TestGet_ReturnsRegisteredScheduler(t *testing.T) {
	r := registry.New()
	sched := fakeScheduler{name: "orders", instanceID: "inst-1"}
	if err := r.Register(sched); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, ok := r.Get("orders")
	if !ok {
		t.Fatal("expected to find registered scheduler")
	}
	if got.SchedulerInstanceID() != "inst-1" {
		t.Errorf("instance ID = %q, want inst-1", got.SchedulerInstanceID())
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("expected no scheduler for unregistered name")
	}
}

func TestRemove_ThenGetMisses(t *testing.T) {
	r := registry.New()
	_ = r.Register(fakeScheduler{name: "main", instanceID: "a"})
	r.Remove("main")
	if _, ok := r.Get("main"); ok {
		t.Error("expected scheduler to be gone after Remove")
	}
	// Removing an absent name must not panic.
	r.Remove("main")
}

func TestAllSchedulers_ListsEveryRegistered(t *testing.T) {
	r := registry.New()
	_ = r.Register(fakeScheduler{name: "a", instanceID: "1"})
	_ = r.Register(fakeScheduler{name: "b", instanceID: "2"})
	all := r.AllSchedulers()
	if len(all) != 2 {
		t.Fatalf("got %d schedulers, want 2", len(all))
	}
}
