package memstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cug2104518294/quartz-explained/internal/domain"
	"github.com/cug2104518294/quartz-explained/internal/store"
	"github.com/cug2104518294/quartz-explained/internal/store/memstore"
	"github.com/cug2104518294/quartz-explained/internal/trigger"
)

func newJob(name string, flags ...func(*domain.JobDetail)) domain.JobDetail {
	jd := domain.JobDetail{
		Key:      domain.NewKey(domain.DefaultGroup, name),
		JobClass: "test.NoOpJob",
		Durable:  true,
	}
	for _, f := range flags {
		f(&jd)
	}
	return jd
}

func withConcurrencyDisallowed(jd *domain.JobDetail) { jd.DisallowConcurrentExecution = true }

func newSimpleTrigger(name string, jobKey domain.Key, at time.Time) *trigger.SimpleTrigger {
	tr := trigger.NewSimpleTrigger(domain.NewKey(domain.DefaultGroup, name), jobKey, at, nil, 0, 0, nil)
	tr.ComputeFirstFireTime(nil)
	return tr
}

func TestStoreJobAndTrigger_ThenRetrieve(t *testing.T) {
	s := memstore.New(0)
	ctx := context.Background()
	job := newJob("job1")
	tr := newSimpleTrigger("t1", job.Key, time.Now())

	if err := s.StoreJobAndTrigger(ctx, job, tr, false); err != nil {
		t.Fatalf("StoreJobAndTrigger: %v", err)
	}

	got, ok, err := s.RetrieveJob(ctx, job.Key)
	if err != nil || !ok {
		t.Fatalf("RetrieveJob: ok=%v err=%v", ok, err)
	}
	if got.Key != job.Key {
		t.Errorf("got job %v, want %v", got.Key, job.Key)
	}

	gotTr, ok, err := s.RetrieveTrigger(ctx, tr.Key())
	if err != nil || !ok {
		t.Fatalf("RetrieveTrigger: ok=%v err=%v", ok, err)
	}
	if gotTr.State() != domain.StateWaiting {
		t.Errorf("new trigger state = %v, want WAITING", gotTr.State())
	}
}

func TestStoreTrigger_DuplicateWithoutReplace(t *testing.T) {
	s := memstore.New(0)
	ctx := context.Background()
	job := newJob("job1")
	tr := newSimpleTrigger("t1", job.Key, time.Now())
	if err := s.StoreJobAndTrigger(ctx, job, tr, false); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreTrigger(ctx, tr, false); err != domain.ErrTriggerAlreadyExists {
		t.Errorf("err = %v, want ErrTriggerAlreadyExists", err)
	}
}

func TestAcquireNextTriggers_OrdersByFireTimeThenPriority(t *testing.T) {
	s := memstore.New(0)
	ctx := context.Background()
	job := newJob("job1")
	s.StoreJob(ctx, job, false)

	base := time.Now().Add(time.Hour)
	early := newSimpleTrigger("early", job.Key, base)
	lateHigh := newSimpleTrigger("late-high", job.Key, base.Add(time.Second))
	lateHigh.SetPriority(10)
	lateLow := newSimpleTrigger("late-low", job.Key, base.Add(time.Second))

	s.StoreTrigger(ctx, early, false)
	s.StoreTrigger(ctx, lateLow, false)
	s.StoreTrigger(ctx, lateHigh, false)

	acquired, err := s.AcquireNextTriggers(ctx, base.Add(10*time.Second), 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(acquired) != 3 {
		t.Fatalf("acquired %d triggers, want 3", len(acquired))
	}
	if acquired[0].Key() != early.Key() {
		t.Errorf("first acquired = %v, want early", acquired[0].Key())
	}
	if acquired[1].Key() != lateHigh.Key() {
		t.Errorf("second acquired = %v, want late-high (higher priority)", acquired[1].Key())
	}
}

func TestAcquireNextTriggers_NoDoubleFireAcrossConcurrentCallers(t *testing.T) {
	s := memstore.New(0)
	ctx := context.Background()
	job := newJob("job1")
	s.StoreJob(ctx, job, false)

	now := time.Now()
	for i := 0; i < 50; i++ {
		tr := newSimpleTrigger(string(rune('a'+i)), job.Key, now)
		s.StoreTrigger(ctx, tr, false)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[domain.Key]int{}

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acquired, err := s.AcquireNextTriggers(ctx, now.Add(time.Minute), 50, 0)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			for _, tr := range acquired {
				seen[tr.Key()]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	for k, count := range seen {
		if count > 1 {
			t.Errorf("trigger %v acquired %d times, want at most 1", k, count)
		}
	}
}

func TestTriggersFired_BlocksSiblingsWhenConcurrencyDisallowed(t *testing.T) {
	s := memstore.New(0)
	ctx := context.Background()
	job := newJob("job1", withConcurrencyDisallowed)
	s.StoreJob(ctx, job, false)

	now := time.Now()
	tr1 := newSimpleTrigger("t1", job.Key, now)
	tr2 := newSimpleTrigger("t2", job.Key, now)
	s.StoreTrigger(ctx, tr1, false)
	s.StoreTrigger(ctx, tr2, false)

	acquired, err := s.AcquireNextTriggers(ctx, now.Add(time.Minute), 1, 0)
	if err != nil || len(acquired) != 1 {
		t.Fatalf("acquire: %v %d", err, len(acquired))
	}

	results, err := s.TriggersFired(ctx, acquired)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Bundle == nil {
		t.Fatalf("expected one fired bundle, got %+v", results)
	}

	st, err := s.GetTriggerState(ctx, tr2.Key())
	if err != nil {
		t.Fatal(err)
	}
	if st != domain.StateBlocked {
		t.Errorf("sibling trigger state = %v, want BLOCKED", st)
	}

	if err := s.TriggeredJobComplete(ctx, results[0].Bundle.Trigger, job, domain.NoOp, nil); err != nil {
		t.Fatal(err)
	}
	st, err = s.GetTriggerState(ctx, tr2.Key())
	if err != nil {
		t.Fatal(err)
	}
	if st != domain.StateWaiting {
		t.Errorf("sibling trigger state after completion = %v, want WAITING (unblocked)", st)
	}
}

func TestPauseTrigger_ExcludedFromAcquisition(t *testing.T) {
	s := memstore.New(0)
	ctx := context.Background()
	job := newJob("job1")
	s.StoreJob(ctx, job, false)
	now := time.Now()
	tr := newSimpleTrigger("t1", job.Key, now)
	s.StoreTrigger(ctx, tr, false)

	if err := s.PauseTrigger(ctx, tr.Key()); err != nil {
		t.Fatal(err)
	}
	acquired, err := s.AcquireNextTriggers(ctx, now.Add(time.Minute), 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(acquired) != 0 {
		t.Errorf("acquired %d paused triggers, want 0", len(acquired))
	}

	if err := s.ResumeTrigger(ctx, tr.Key()); err != nil {
		t.Fatal(err)
	}
	acquired, err = s.AcquireNextTriggers(ctx, now.Add(time.Minute), 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(acquired) != 1 {
		t.Errorf("acquired %d triggers after resume, want 1", len(acquired))
	}
}

func TestRemoveJob_DeletesOwnedTriggers(t *testing.T) {
	s := memstore.New(0)
	ctx := context.Background()
	job := newJob("job1")
	s.StoreJob(ctx, job, false)
	tr := newSimpleTrigger("t1", job.Key, time.Now())
	s.StoreTrigger(ctx, tr, false)

	removed, err := s.RemoveJob(ctx, job.Key)
	if err != nil || !removed {
		t.Fatalf("RemoveJob: removed=%v err=%v", removed, err)
	}
	exists, err := s.CheckTriggerExists(ctx, tr.Key())
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("trigger still exists after owning job removed")
	}
}

func TestInitialize_RecoversOrphanedAcquiredTriggers(t *testing.T) {
	s := memstore.New(0)
	ctx := context.Background()
	job := newJob("job1")
	job.RequestsRecovery = true
	s.StoreJob(ctx, job, false)
	tr := newSimpleTrigger("t1", job.Key, time.Now())
	s.StoreTrigger(ctx, tr, false)

	// Simulate a crash mid-fire: acquire but never complete.
	if _, err := s.AcquireNextTriggers(ctx, time.Now().Add(time.Minute), 1, 0); err != nil {
		t.Fatal(err)
	}

	if err := s.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	st, err := s.GetTriggerState(ctx, tr.Key())
	if err != nil {
		t.Fatal(err)
	}
	if st != domain.StateWaiting {
		t.Errorf("orphaned trigger state after Initialize = %v, want WAITING", st)
	}

	keys, err := s.GetTriggerKeys(ctx, store.MatchGroupEquals("RECOVERY"))
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 {
		t.Errorf("recovery triggers synthesized = %d, want 1", len(keys))
	}
}

func TestClearAllSchedulingData_EmptiesStore(t *testing.T) {
	s := memstore.New(0)
	ctx := context.Background()
	job := newJob("job1")
	tr := newSimpleTrigger("t1", job.Key, time.Now())
	s.StoreJobAndTrigger(ctx, job, tr, false)

	if err := s.ClearAllSchedulingData(ctx); err != nil {
		t.Fatal(err)
	}
	n, _ := s.GetNumberOfJobs(ctx)
	if n != 0 {
		t.Errorf("jobs after clear = %d, want 0", n)
	}
}
