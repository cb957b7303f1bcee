package dispatcher_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cug2104518294/quartz-explained/internal/dispatcher"
	"github.com/cug2104518294/quartz-explained/internal/domain"
	"github.com/cug2104518294/quartz-explained/internal/jobrun"
	"github.com/cug2104518294/quartz-explained/internal/jobs"
	"github.com/cug2104518294/quartz-explained/internal/listener"
	"github.com/cug2104518294/quartz-explained/internal/store/memstore"
	"github.com/cug2104518294/quartz-explained/internal/trigger"
	"github.com/cug2104518294/quartz-explained/internal/workerpool"
)

type countingJob struct{ calls atomic.Int32 }

func (j *countingJob) Execute(context.Context, *jobs.ExecutionContext) error {
	j.calls.Add(1)
	return nil
}

func TestDispatcherRun_FiresDueTriggerPromptly(t *testing.T) {
	st := memstore.New(time.Minute)
	if err := st.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	job := &countingJob{}
	factory := jobs.FactoryFunc(func(domain.JobDetail) (jobs.Job, error) { return job, nil })

	pool := workerpool.New(2, nil)
	shell := jobrun.NewShell(st, factory, listener.NewManager(nil), nil)
	d := dispatcher.New(st, pool, shell, nil, dispatcher.Config{IdleWaitTime: time.Second})

	jobKey := domain.NewKey(domain.DefaultGroup, "job1")
	if err := st.StoreJob(context.Background(), domain.JobDetail{Key: jobKey, JobClass: "test"}, false); err != nil {
		t.Fatalf("storeJob: %v", err)
	}
	trg := trigger.NewSimpleTrigger(domain.NewKey(domain.DefaultGroup, "t1"), jobKey, time.Now().Add(50*time.Millisecond), nil, 0, 0, nil)
	trg.ComputeFirstFireTime(nil)
	if err := st.StoreTrigger(context.Background(), trg, false); err != nil {
		t.Fatalf("storeTrigger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)
	d.Resume()

	deadline := time.Now().Add(2 * time.Second)
	for job.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if job.calls.Load() == 0 {
		t.Fatal("job never fired within deadline")
	}

	d.Halt()
	select {
	case <-d.Stopped():
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after Halt")
	}
}

func TestDispatcherStandby_DoesNotFireUntilResumed(t *testing.T) {
	st := memstore.New(time.Minute)
	_ = st.Initialize(context.Background())

	job := &countingJob{}
	factory := jobs.FactoryFunc(func(domain.JobDetail) (jobs.Job, error) { return job, nil })

	pool := workerpool.New(1, nil)
	shell := jobrun.NewShell(st, factory, listener.NewManager(nil), nil)
	d := dispatcher.New(st, pool, shell, nil, dispatcher.Config{IdleWaitTime: 200 * time.Millisecond})

	jobKey := domain.NewKey(domain.DefaultGroup, "job1")
	_ = st.StoreJob(context.Background(), domain.JobDetail{Key: jobKey, JobClass: "test"}, false)
	trg := trigger.NewSimpleTrigger(domain.NewKey(domain.DefaultGroup, "t1"), jobKey, time.Now(), nil, 0, 0, nil)
	trg.ComputeFirstFireTime(nil)
	_ = st.StoreTrigger(context.Background(), trg, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	if job.calls.Load() != 0 {
		t.Fatal("job fired while dispatcher was in standby")
	}

	d.Halt()
}
