package jobrun_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cug2104518294/quartz-explained/internal/domain"
	"github.com/cug2104518294/quartz-explained/internal/jobrun"
	"github.com/cug2104518294/quartz-explained/internal/jobs"
	"github.com/cug2104518294/quartz-explained/internal/listener"
	"github.com/cug2104518294/quartz-explained/internal/store"
	"github.com/cug2104518294/quartz-explained/internal/trigger"
)

type fakeJob struct {
	err    error
	result domain.DataMap
	calls  int
}

func (f *fakeJob) Execute(_ context.Context, jobCtx *jobs.ExecutionContext) error {
	f.calls++
	jobCtx.ResultData = f.result
	return f.err
}

type fakeFactory struct {
	job         *fakeJob
	statefulJob *statefulJob
}

func (f fakeFactory) NewJob(domain.JobDetail) (jobs.Job, error) {
	if f.statefulJob != nil {
		return f.statefulJob, nil
	}
	return f.job, nil
}

// completeStoreStub implements only TriggeredJobComplete for this test;
// embedding store.JobStore satisfies the interface while leaving every
// other method an explicit panic if accidentally exercised.
type completeStoreStub struct {
	store.JobStore
	calls []struct {
		instruction domain.CompletionInstruction
		data        domain.DataMap
	}
}

func (s *completeStoreStub) TriggeredJobComplete(_ context.Context, _ trigger.Trigger, _ domain.JobDetail, instruction domain.CompletionInstruction, data domain.DataMap) error {
	s.calls = append(s.calls, struct {
		instruction domain.CompletionInstruction
		data        domain.DataMap
	}{instruction, data})
	return nil
}

func newBundle(t *testing.T, disallowConcurrency bool) *store.FiredBundle {
	t.Helper()
	jobKey := domain.NewKey(domain.DefaultGroup, "job1")
	tr := trigger.NewSimpleTrigger(domain.NewKey(domain.DefaultGroup, "t1"), jobKey, time.Now(), nil, 0, 0, nil)
	tr.ComputeFirstFireTime(nil)
	// Advance past the fire the way the store's TriggersFired does before it
	// builds a bundle, so this one-shot trigger has no next fire.
	tr.Triggered(nil)
	return &store.FiredBundle{
		Job: domain.JobDetail{
			Key:      jobKey,
			JobClass: "test",
		},
		Trigger:  tr,
		FireTime: time.Now(),
	}
}

func TestShellRun_SuccessWithNoFutureFire_CompletesTrigger(t *testing.T) {
	fs := &completeStoreStub{}
	job := &fakeJob{}
	shell := jobrun.NewShell(fs, fakeFactory{job}, listener.NewManager(nil), nil)

	shell.Run(context.Background(), newBundle(t, false))

	if job.calls != 1 {
		t.Fatalf("job executed %d times, want 1", job.calls)
	}
	if len(fs.calls) != 1 {
		t.Fatalf("TriggeredJobComplete called %d times, want 1", len(fs.calls))
	}
	if fs.calls[0].instruction != domain.SetTriggerComplete {
		t.Errorf("instruction = %v, want SetTriggerComplete (SimpleTrigger fires once)", fs.calls[0].instruction)
	}
}

func TestShellRun_ExecutionError_ReportsSetTriggerError(t *testing.T) {
	fs := &completeStoreStub{}
	job := &fakeJob{err: errors.New("boom")}
	shell := jobrun.NewShell(fs, fakeFactory{job}, listener.NewManager(nil), nil)

	shell.Run(context.Background(), newBundle(t, false))

	if len(fs.calls) != 1 || fs.calls[0].instruction != domain.SetTriggerError {
		t.Fatalf("calls = %+v, want one SetTriggerError", fs.calls)
	}
}

func TestShellRun_RefireImmediately_RunsAgainBeforeCompleting(t *testing.T) {
	fs := &completeStoreStub{}
	stateful := &statefulJob{}
	shell := jobrun.NewShell(fs, fakeFactory{job: nil, statefulJob: stateful}, listener.NewManager(nil), nil)

	shell.Run(context.Background(), newBundle(t, false))

	if stateful.calls != 2 {
		t.Fatalf("job executed %d times, want 2 (one refire)", stateful.calls)
	}
	if len(fs.calls) != 1 || fs.calls[0].instruction != domain.SetTriggerComplete {
		t.Fatalf("calls = %+v, want one SetTriggerComplete after the refire succeeds", fs.calls)
	}
}

type statefulJob struct{ calls int }

func (s *statefulJob) Execute(_ context.Context, _ *jobs.ExecutionContext) error {
	s.calls++
	if s.calls == 1 {
		return &jobs.ExecutionError{Err: errors.New("retry me"), RefireImmediately: true}
	}
	return nil
}
