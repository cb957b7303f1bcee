// Package dispatcher implements the scheduler loop (spec.md §4.4): the
// single long-running task that acquires due triggers from the job store,
// waits until they're actually due (replanning early if a scheduling
// change signal arrives), fires them, and submits the resulting job run
// to the worker pool. Grounded on the teacher's internal/scheduler
// Dispatcher.Start shape (a named loop goroutine, context-cancellable,
// structured logging per iteration), generalized from a fixed ticker into
// the precise wait-until-due + early-replan design this spec requires.
package dispatcher

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/cug2104518294/quartz-explained/internal/domain"
	"github.com/cug2104518294/quartz-explained/internal/jobrun"
	"github.com/cug2104518294/quartz-explained/internal/metrics"
	"github.com/cug2104518294/quartz-explained/internal/store"
	"github.com/cug2104518294/quartz-explained/internal/trigger"
	"github.com/cug2104518294/quartz-explained/internal/workerpool"
)

// Defaults per spec.md §4.4 step 4 and step 7.
const (
	DefaultIdleWaitTime     = 30 * time.Second
	DefaultMaxBatchSize     = 1
	DefaultBatchTimeWindow  = 0

	// costThreshold values for the early-replan abandon decision (step 5).
	costThresholdPersistent = 70 * time.Millisecond
	costThresholdInMemory   = 7 * time.Millisecond

	// minFireWait is the "close enough, just wait it out" cutoff of step 5.
	minFireWait = 2 * time.Millisecond

	// standbyPollInterval is how often the standby gate re-checks (step 1).
	standbyPollInterval = 1 * time.Second
)

// Config holds the tunables spec.md §4.4/§6 expose; zero values resolve
// to the documented defaults in New.
type Config struct {
	IdleWaitTime    time.Duration
	MaxBatchSize    int
	BatchTimeWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.IdleWaitTime <= 0 {
		c.IdleWaitTime = DefaultIdleWaitTime
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	return c
}

// signal is the scheduling-change notification external callers send via
// Dispatcher.SignalSchedulingChange. It is channel-based rather than
// sync.Cond-based specifically so waitUntil can select over it alongside
// a timer and ctx.Done without risking a goroutine parked in Cond.Wait
// past its caller's deadline.
type signal struct {
	mu                sync.Mutex
	wake              chan struct{}
	candidateFireTime time.Time // zero value means "unknown, assume earliest"
}

func newSignal() *signal {
	return &signal{wake: make(chan struct{})}
}

func (s *signal) raise(candidate time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.candidateFireTime.IsZero() || (!candidate.IsZero() && candidate.Before(s.candidateFireTime)) {
		s.candidateFireTime = candidate
	}
	close(s.wake)
	s.wake = make(chan struct{})
}

// waitUntil blocks until deadline, a raised signal, or ctx cancellation,
// whichever comes first. It returns (signaled, candidate).
func (s *signal) waitUntil(ctx context.Context, deadline time.Time) (bool, time.Time) {
	s.mu.Lock()
	wakeCh := s.wake
	s.mu.Unlock()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-timer.C:
		return false, time.Time{}
	case <-ctx.Done():
		return false, time.Time{}
	case <-wakeCh:
		s.mu.Lock()
		candidate := s.candidateFireTime
		s.candidateFireTime = time.Time{}
		s.mu.Unlock()
		return true, candidate
	}
}

// Dispatcher is the scheduler loop. One instance drives one scheduler
// instance's firing; the facade owns its lifecycle (Start/Standby/Shutdown).
type Dispatcher struct {
	store  store.JobStore
	pool   *workerpool.Pool
	shell  *jobrun.Shell
	logger *slog.Logger
	cfg    Config

	costThreshold time.Duration

	mu      sync.Mutex
	paused  bool
	halted  bool
	sig     *signal
	stopped chan struct{}

	failures int
}

func New(jobStore store.JobStore, pool *workerpool.Pool, shell *jobrun.Shell, logger *slog.Logger, cfg Config) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	costThreshold := costThresholdInMemory
	if jobStore.SupportsPersistence() {
		costThreshold = costThresholdPersistent
	}
	return &Dispatcher{
		store:         jobStore,
		pool:          pool,
		shell:         shell,
		logger:        logger.With("component", "dispatcher"),
		cfg:           cfg.withDefaults(),
		costThreshold: costThreshold,
		paused:        true, // starts in standby; facade.Start flips this
		sig:           newSignal(),
		stopped:       make(chan struct{}),
	}
}

// SignalSchedulingChange wakes the loop early because a trigger was
// added/removed/rescheduled. candidateFireTime zero means "unknown,
// assume earliest" (spec.md §4.4's signalling paragraph).
func (d *Dispatcher) SignalSchedulingChange(candidateFireTime time.Time) {
	d.sig.raise(candidateFireTime)
}

// Resume takes the loop out of standby (step 1's gate).
func (d *Dispatcher) Resume() {
	d.mu.Lock()
	d.paused = false
	d.failures = 0
	d.mu.Unlock()
	d.sig.raise(time.Time{})
}

// Standby puts the loop into the standby gate without stopping it.
func (d *Dispatcher) Standby() {
	d.mu.Lock()
	d.paused = true
	d.mu.Unlock()
}

// Halt stops the loop for good; Run returns once the current iteration
// finishes.
func (d *Dispatcher) Halt() {
	d.mu.Lock()
	d.halted = true
	d.mu.Unlock()
	d.sig.raise(time.Time{})
}

func (d *Dispatcher) isPaused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

func (d *Dispatcher) isHalted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.halted
}

// Run drives the loop until Halt is called or ctx is cancelled. Meant to
// be launched on its own goroutine by the facade.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.stopped)
	d.logger.Info("dispatcher loop starting")
	for {
		if ctx.Err() != nil || d.isHalted() {
			d.logger.Info("dispatcher loop stopped")
			return
		}

		// Step 1: standby gate.
		if d.isPaused() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(standbyPollInterval):
			}
			continue
		}

		// Step 2: backoff after a prior acquisition failure.
		if delay := d.backoffDelay(); delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		// Step 3: reserve workers.
		available, err := d.pool.BlockForAvailableThreads()
		if err != nil {
			d.logger.Error("blockForAvailableThreads failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(standbyPollInterval):
			}
			continue
		}
		if available <= 0 {
			continue
		}

		// Step 4: acquire.
		maxCount := d.cfg.MaxBatchSize
		if available < maxCount {
			maxCount = available
		}
		noLaterThan := time.Now().Add(d.cfg.IdleWaitTime)
		acquireStart := time.Now()
		triggers, err := d.store.AcquireNextTriggers(ctx, noLaterThan, maxCount, d.cfg.BatchTimeWindow)
		metrics.AcquireLatency.Observe(time.Since(acquireStart).Seconds())
		if err != nil {
			d.recordFailure()
			metrics.DispatcherBackoffFailuresTotal.Inc()
			d.logger.Error("acquireNextTriggers failed", "error", err)
			continue
		}
		d.resetFailures()

		if len(triggers) == 0 {
			d.idle(ctx)
			continue
		}

		// Step 5: wait-until-due with early-replan.
		if d.waitUntilDueOrAbandon(ctx, triggers) {
			continue // abandoned: batch already released, go back to step 2
		}

		// Step 6: fire.
		d.fire(ctx, triggers)

		// A batch that fired doesn't sleep idle; loop immediately re-enters
		// step 1/2/3 to pick up the next batch.
	}
}

// Stopped reports a channel closed once Run has returned.
func (d *Dispatcher) Stopped() <-chan struct{} { return d.stopped }

func (d *Dispatcher) backoffDelay() time.Duration {
	d.mu.Lock()
	failures := d.failures
	d.mu.Unlock()
	if failures == 0 {
		return 0
	}
	return store.ClampRetryDelay(d.store.GetAcquireRetryDelay(failures))
}

func (d *Dispatcher) recordFailure() {
	d.mu.Lock()
	d.failures++
	d.mu.Unlock()
}

func (d *Dispatcher) resetFailures() {
	d.mu.Lock()
	d.failures = 0
	d.mu.Unlock()
}

// waitUntilDueOrAbandon implements step 5. Returns true if the batch was
// abandoned (and therefore already released back to the store).
func (d *Dispatcher) waitUntilDueOrAbandon(ctx context.Context, triggers []trigger.Trigger) bool {
	firstFire := earliestFireTime(triggers)
	for {
		now := time.Now()
		remaining := firstFire.Sub(now)
		if remaining <= minFireWait {
			return false
		}

		signaled, candidate := d.sig.waitUntil(ctx, firstFire)
		if ctx.Err() != nil {
			d.releaseAll(ctx, triggers)
			return true
		}
		if !signaled {
			continue // timer fired (or spuriously woke): recheck remaining
		}

		// A signal arrived: decide whether it's worth abandoning.
		candidateEarlier := candidate.IsZero() || candidate.Before(firstFire)
		worthAbandoning := candidateEarlier && firstFire.Sub(now) >= d.costThreshold
		if worthAbandoning {
			d.releaseAll(ctx, triggers)
			return true
		}
		// Not worth it: loop again, waiting out the (possibly shorter) remainder.
	}
}

func (d *Dispatcher) releaseAll(ctx context.Context, triggers []trigger.Trigger) {
	metrics.BatchAbandonedTotal.Inc()
	for _, trg := range triggers {
		if err := d.store.ReleaseAcquiredTrigger(ctx, trg); err != nil {
			d.logger.Error("releaseAcquiredTrigger failed", "trigger", trg.Key().String(), "error", err)
		}
	}
}

// fire implements step 6: triggersFired, then submit each resulting
// bundle to the worker pool as a job run shell.
func (d *Dispatcher) fire(ctx context.Context, triggers []trigger.Trigger) {
	results, err := d.store.TriggersFired(ctx, triggers)
	if err != nil {
		d.logger.Error("triggersFired failed", "error", err)
		d.releaseAll(ctx, triggers)
		return
	}
	for i, res := range results {
		if res.Err != nil || res.Bundle == nil {
			// Failed, or paused/removed/blocked since acquisition: hand the
			// trigger back so it does not stay ACQUIRED.
			if res.Err != nil {
				d.logger.Error("triggersFired result error", "error", res.Err)
			}
			if i < len(triggers) {
				if err := d.store.ReleaseAcquiredTrigger(ctx, triggers[i]); err != nil {
					d.logger.Error("releaseAcquiredTrigger failed", "trigger", triggers[i].Key().String(), "error", err)
				}
			}
			continue
		}
		bundle := res.Bundle
		metrics.TriggersFiredTotal.Inc()
		ok, err := d.pool.RunInThread(func() {
			d.shell.Run(ctx, bundle)
		})
		if err != nil || !ok {
			d.logger.Error("failed to submit job run to worker pool", "error", err)
			if completeErr := d.store.TriggeredJobComplete(ctx, bundle.Trigger, bundle.Job, domain.SetAllJobTriggersError, nil); completeErr != nil {
				d.logger.Error("triggeredJobComplete(SetAllJobTriggersError) failed", "error", completeErr)
			}
		}
	}
}

// idle implements step 7: sleep a randomised idle time, or until signalled.
func (d *Dispatcher) idle(ctx context.Context) {
	jitter := time.Duration(rand.Int63n(int64(d.cfg.IdleWaitTime) / 5)) // uniform[0, 0.2*idleWaitTime)
	sleepFor := d.cfg.IdleWaitTime - jitter
	deadline := time.Now().Add(sleepFor)
	d.sig.waitUntil(ctx, deadline)
}

func earliestFireTime(triggers []trigger.Trigger) time.Time {
	earliest := time.Time{}
	for _, trg := range triggers {
		nft := trg.NextFireTime()
		if nft == nil {
			continue
		}
		if earliest.IsZero() || nft.Before(earliest) {
			earliest = *nft
		}
	}
	return earliest
}
