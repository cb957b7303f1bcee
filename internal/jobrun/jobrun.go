// Package jobrun implements the job run shell (spec.md §4.6): the
// single-fire execution sequence a worker pool goroutine runs for one
// fired trigger bundle, including listener notification ordering and the
// refire loop for RE_EXECUTE_JOB.
package jobrun

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cug2104518294/quartz-explained/internal/domain"
	"github.com/cug2104518294/quartz-explained/internal/fireinstance"
	"github.com/cug2104518294/quartz-explained/internal/jobs"
	"github.com/cug2104518294/quartz-explained/internal/listener"
	"github.com/cug2104518294/quartz-explained/internal/metrics"
	"github.com/cug2104518294/quartz-explained/internal/store"
	"github.com/cug2104518294/quartz-explained/internal/trigger"
)

// ExecutionTracker observes in-flight executions so an external caller
// (the façade's getCurrentlyExecutingJobs/interrupt) can list and cancel
// them without the job run shell depending on the façade.
type ExecutionTracker interface {
	TrackStart(fireInstanceID string, jobKey, triggerKey domain.Key, cancel context.CancelFunc)
	TrackEnd(fireInstanceID string)
}

// factoryBox/trackerBox give atomic.Value a single consistent concrete
// type to Store regardless of which Factory/ExecutionTracker
// implementation is installed — atomic.Value panics if Store sees two
// different concrete types across calls.
type factoryBox struct{ f jobs.Factory }
type trackerBox struct{ t ExecutionTracker }

// Shell runs one or more (on refire) executions of a fired bundle.
type Shell struct {
	jobStore  store.JobStore
	factory   atomic.Value // *factoryBox
	listeners *listener.Manager
	logger    *slog.Logger
	tracker   atomic.Value // *trackerBox
}

func NewShell(jobStore store.JobStore, factory jobs.Factory, listeners *listener.Manager, logger *slog.Logger) *Shell {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Shell{
		jobStore:  jobStore,
		listeners: listeners,
		logger:    logger.With("component", "jobrunshell"),
	}
	s.factory.Store(&factoryBox{f: factory})
	s.tracker.Store(&trackerBox{t: noopTracker{}})
	return s
}

// SetFactory swaps the job factory. Safe to call concurrently with Run —
// in-flight executions keep using whichever factory they already read;
// only subsequent fires see the new one (spec.md §6's setJobFactory).
func (s *Shell) SetFactory(factory jobs.Factory) {
	s.factory.Store(&factoryBox{f: factory})
}

// SetTracker installs an ExecutionTracker; nil disables tracking.
// Safe to call concurrently with Run.
func (s *Shell) SetTracker(tracker ExecutionTracker) {
	if tracker == nil {
		tracker = noopTracker{}
	}
	s.tracker.Store(&trackerBox{t: tracker})
}

func (s *Shell) currentFactory() jobs.Factory {
	return s.factory.Load().(*factoryBox).f
}

func (s *Shell) currentTracker() ExecutionTracker {
	return s.tracker.Load().(*trackerBox).t
}

type noopTracker struct{}

func (noopTracker) TrackStart(string, domain.Key, domain.Key, context.CancelFunc) {}
func (noopTracker) TrackEnd(string)                                              {}

// Run executes bundle to completion, including any RE_EXECUTE_JOB refire
// loop, and reports the final outcome to the store. It is meant to be
// called on a worker-pool goroutine; it blocks until the job (and any
// refires) finish.
func (s *Shell) Run(ctx context.Context, bundle *store.FiredBundle) {
	refireCount := 0
	for {
		instruction, execErr := s.runOnce(ctx, bundle, refireCount)
		if instruction == domain.ReExecuteJob {
			refireCount++
			continue
		}

		var resultData domain.DataMap
		if bundle.Job.PersistDataAfterExecution {
			resultData = bundle.ResultData
		}
		if err := s.jobStore.TriggeredJobComplete(ctx, bundle.Trigger, bundle.Job, instruction, resultData); err != nil {
			s.logger.Error("triggeredJobComplete failed", "job", bundle.Job.Key.String(), "error", err)
		}
		if execErr != nil {
			s.logger.Warn("job execution finished with error", "job", bundle.Job.Key.String(), "error", execErr)
		}
		return
	}
}

// runOnce performs exactly the 7 numbered steps of spec.md §4.6 for one
// execution attempt.
func (s *Shell) runOnce(ctx context.Context, bundle *store.FiredBundle, refireCount int) (domain.CompletionInstruction, error) {
	fireInstanceID := fireinstance.New()
	ctx = fireinstance.WithFireInstanceID(ctx, fireInstanceID)

	ev := listener.FireEvent{JobKey: bundle.Job.Key, TriggerKey: bundle.Trigger.Key(), FireInstanceID: fireInstanceID}

	// Step 1: build the execution context.
	merged := bundle.Job.JobData.Merge(bundle.Trigger.Data())
	jobCtx := &jobs.ExecutionContext{
		FireInstanceID:    fireInstanceID,
		JobKey:            bundle.Job.Key,
		TriggerKey:        bundle.Trigger.Key(),
		MergedData:        merged,
		FireTime:          bundle.FireTime,
		ScheduledFireTime: bundle.ScheduledFireTime,
		PrevFireTime:      bundle.PrevFireTime,
		NextFireTime:      bundle.NextFireTime,
		RefireCount:       refireCount,
		IsRecovering:      bundle.IsRecovering,
	}

	// Step 2: trigger listeners may veto.
	if veto := s.listeners.BroadcastTriggerFired(ev); veto {
		s.listeners.BroadcastJobExecutionVetoed(ev)
		return domain.SetTriggerComplete, nil
	}

	// Step 3: job listeners notified before execution.
	s.listeners.BroadcastJobToBeExecuted(ev)

	// Step 4: execute, measuring run time. The execution gets its own
	// cancelable context so ExecutionTracker.TrackStart's cancel func can
	// interrupt exactly this run, independent of the dispatcher's ctx.
	job, err := s.currentFactory().NewJob(bundle.Job)
	var execErr error
	metrics.JobsInFlight.Inc()
	if err != nil {
		execErr = err
	} else {
		tracker := s.currentTracker()
		runCtx, cancel := context.WithCancel(ctx)
		tracker.TrackStart(fireInstanceID, bundle.Job.Key, bundle.Trigger.Key(), cancel)
		start := time.Now()
		execErr = job.Execute(runCtx, jobCtx)
		metrics.JobExecutionDuration.WithLabelValues(bundle.Job.JobClass).Observe(time.Since(start).Seconds())
		tracker.TrackEnd(fireInstanceID)
		cancel()
	}
	metrics.JobsInFlight.Dec()
	bundle.ResultData = jobCtx.ResultData

	// Step 5: derive the completion instruction.
	instruction := s.completionInstruction(bundle.Trigger, execErr)
	metrics.JobsCompletedTotal.WithLabelValues(instruction.String()).Inc()

	// Step 6: notify listeners of the outcome.
	s.listeners.BroadcastJobWasExecuted(ev, execErr)
	s.listeners.BroadcastTriggerComplete(ev, instruction)

	return instruction, execErr
}

// completionInstruction implements spec.md §4.6 step 5: a job-reported
// ExecutionError's directives override the trigger's own post-fire
// judgement; otherwise defer to whether the trigger has another fire.
func (s *Shell) completionInstruction(trg trigger.Trigger, execErr error) domain.CompletionInstruction {
	if jee, ok := execErr.(*jobs.ExecutionError); ok {
		switch {
		case jee.RefireImmediately:
			return domain.ReExecuteJob
		case jee.UnscheduleFiringTrigger:
			return domain.SetTriggerComplete
		case jee.UnscheduleAllTriggers:
			return domain.SetAllJobTriggersComplete
		}
	}
	if execErr != nil {
		return domain.SetTriggerError
	}
	if trg.NextFireTime() == nil {
		return domain.SetTriggerComplete
	}
	return domain.NoOp
}
