// Package facade implements the thin scheduler façade (spec.md §6): the
// single composed Scheduler type external callers use to define and
// control jobs/triggers, wrapping a store.JobStore, a dispatcher.Dispatcher
// and a workerpool.Pool. Grounded on the teacher's usecase-layer
// method-per-operation style (internal/usecase/schedule.go), generalized
// from schedule CRUD to the full Quartz-style façade operation set.
package facade

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cug2104518294/quartz-explained/internal/dispatcher"
	"github.com/cug2104518294/quartz-explained/internal/domain"
	"github.com/cug2104518294/quartz-explained/internal/jobrun"
	"github.com/cug2104518294/quartz-explained/internal/jobs"
	"github.com/cug2104518294/quartz-explained/internal/listener"
	"github.com/cug2104518294/quartz-explained/internal/metrics"
	"github.com/cug2104518294/quartz-explained/internal/store"
	"github.com/cug2104518294/quartz-explained/internal/trigger"
	"github.com/cug2104518294/quartz-explained/internal/workerpool"
)

// executingRecord is one entry in the currently-executing-jobs table the
// façade maintains as a jobrun.ExecutionTracker.
type executingRecord struct {
	jobKey, triggerKey domain.Key
	fireTime           time.Time
	cancel             context.CancelFunc
}

// ExecutingJob is the GetCurrentlyExecutingJobs snapshot type.
type ExecutingJob struct {
	JobKey         domain.Key
	TriggerKey     domain.Key
	FireInstanceID string
	FireTime       time.Time
}

// Scheduler is the façade: one instance per logical scheduler, uniquely
// named, holding the store/dispatcher/pool/listeners it was built from.
type Scheduler struct {
	name       string
	instanceID string
	logger     *slog.Logger

	store      store.JobStore
	pool       *workerpool.Pool
	dispatcher *dispatcher.Dispatcher
	shell      *jobrun.Shell
	listeners  *listener.Manager

	mu       sync.Mutex
	started  bool
	standby  bool
	shutdown bool
	loopOnce sync.Once

	execMu sync.Mutex
	exec   map[string]*executingRecord // keyed by fireInstanceID
}

// Config is everything New needs to compose a Scheduler.
type Config struct {
	Name       string
	InstanceID string
	Store      store.JobStore
	PoolSize   int
	Dispatcher dispatcher.Config
	Logger     *slog.Logger
}

// New builds a Scheduler and its owned dispatcher/worker pool, but does
// not start it — call Start (or StartDelayed) explicitly, matching
// spec.md §6's isStarted/isInStandbyMode state machine.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Name == "" {
		return nil, newErr("New", KindInput, domain.ErrIllegalIdentity)
	}
	if cfg.Store == nil {
		return nil, newErr("New", KindInput, fmt.Errorf("facade: store must not be nil"))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("scheduler", cfg.Name)

	pool := workerpool.New(cfg.PoolSize, logger)
	listeners := listener.NewManager(logger)
	factory := jobs.FactoryFunc(func(detail domain.JobDetail) (jobs.Job, error) {
		return nil, fmt.Errorf("facade: no job factory registered for class %q; call SetJobFactory", detail.JobClass)
	})
	shell := jobrun.NewShell(cfg.Store, factory, listeners, logger)

	s := &Scheduler{
		name:       cfg.Name,
		instanceID: cfg.InstanceID,
		logger:     logger,
		store:      cfg.Store,
		pool:       pool,
		shell:      shell,
		listeners:  listeners,
		exec:       make(map[string]*executingRecord),
		standby:    true,
	}
	shell.SetTracker(s)
	s.dispatcher = dispatcher.New(cfg.Store, pool, shell, logger, cfg.Dispatcher)
	return s, nil
}

func (s *Scheduler) SchedulerName() string       { return s.name }
func (s *Scheduler) SchedulerInstanceID() string { return s.instanceID }

// SetJobFactory installs the factory used to resolve JobDetail.JobClass
// into executable Job instances. Safe to call before or after Start —
// the swap is atomic and takes effect on the next fire.
func (s *Scheduler) SetJobFactory(factory jobs.Factory) {
	s.shell.SetFactory(factory)
}

// GetListenerManager exposes listener registration (spec.md §6).
func (s *Scheduler) GetListenerManager() *listener.Manager { return s.listeners }

// --- Lifecycle ---

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return newErr("Start", KindFatal, fmt.Errorf("facade: scheduler is shut down"))
	}
	if err := s.ensureInitializedLocked(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	s.started = true
	s.standby = false
	s.mu.Unlock()

	s.loopOnce.Do(func() {
		metrics.SchedulerStartTime.Set(float64(time.Now().Unix()))
		go s.dispatcher.Run(ctx)
	})
	s.dispatcher.Resume()
	return nil
}

// StartDelayed starts the scheduler after the given delay, matching
// spec.md §6's startDelayed(seconds).
func (s *Scheduler) StartDelayed(ctx context.Context, delay time.Duration) error {
	go func() {
		select {
		case <-time.After(delay):
			_ = s.Start(ctx)
		case <-ctx.Done():
		}
	}()
	return nil
}

func (s *Scheduler) Standby() {
	s.mu.Lock()
	s.standby = true
	s.mu.Unlock()
	s.dispatcher.Standby()
}

// Shutdown stops the dispatcher loop and (optionally) waits for
// in-flight job runs to finish before returning.
func (s *Scheduler) Shutdown(waitForJobsToComplete bool) {
	s.mu.Lock()
	s.shutdown = true
	s.started = false
	s.mu.Unlock()

	s.dispatcher.Halt()
	<-s.dispatcher.Stopped()
	s.pool.Shutdown(waitForJobsToComplete)
	metrics.SchedulerShutdownsTotal.Inc()
}

func (s *Scheduler) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Scheduler) IsInStandbyMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.standby
}

func (s *Scheduler) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

func (s *Scheduler) ensureInitializedLocked(ctx context.Context) error {
	if err := s.store.Initialize(ctx); err != nil {
		return translate("Start", err)
	}
	return nil
}

// --- Job/trigger definition ---

// ScheduleJob stores a job and a trigger for it together, returning the
// trigger's first fire time (spec.md §6's two-arg scheduleJob).
func (s *Scheduler) ScheduleJob(ctx context.Context, job domain.JobDetail, trg trigger.Trigger) (*time.Time, error) {
	if job.Key.Name == "" || trg.Key().Name == "" {
		return nil, newErr("ScheduleJob", KindInput, domain.ErrIllegalIdentity)
	}
	cal, err := s.resolveCalendar(ctx, trg.CalendarName())
	if err != nil {
		return nil, translate("ScheduleJob", err)
	}
	trg.ComputeFirstFireTime(cal)
	if err := s.store.StoreJobAndTrigger(ctx, job, trg, false); err != nil {
		return nil, translate("ScheduleJob", err)
	}
	s.signalFor(trg)
	return trg.NextFireTime(), nil
}

// ScheduleTrigger adds a trigger for a job that's already stored
// (spec.md §6's one-arg scheduleJob(trigger)).
func (s *Scheduler) ScheduleTrigger(ctx context.Context, trg trigger.Trigger) (*time.Time, error) {
	if _, ok, err := s.store.RetrieveJob(ctx, trg.JobKey()); err != nil {
		return nil, translate("ScheduleTrigger", err)
	} else if !ok {
		return nil, newErr("ScheduleTrigger", KindNotFound, domain.ErrJobNotFound)
	}
	cal, err := s.resolveCalendar(ctx, trg.CalendarName())
	if err != nil {
		return nil, translate("ScheduleTrigger", err)
	}
	trg.ComputeFirstFireTime(cal)
	if err := s.store.StoreTrigger(ctx, trg, false); err != nil {
		return nil, translate("ScheduleTrigger", err)
	}
	s.signalFor(trg)
	return trg.NextFireTime(), nil
}

// resolveCalendar looks up the named calendar for ComputeFirstFireTime.
// An empty name means "no calendar" (nil, no error); a name that doesn't
// resolve to a stored calendar is a caller input error.
func (s *Scheduler) resolveCalendar(ctx context.Context, name string) (domain.Calendar, error) {
	if name == "" {
		return nil, nil
	}
	cal, ok, err := s.store.GetCalendar(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newErr("resolveCalendar", KindInput, fmt.Errorf("facade: calendar %q not found", name))
	}
	return cal, nil
}

// AddJob stores a job definition without any trigger, overwriting an
// existing one only when replaceExisting is true. It takes no flag for
// non-durable jobs: a job whose Durable is false is stored as given and
// has no path to fire until ScheduleTrigger adds a trigger for it.
func (s *Scheduler) AddJob(ctx context.Context, job domain.JobDetail, replaceExisting bool) error {
	return translate("AddJob", s.store.StoreJob(ctx, job, replaceExisting))
}

func (s *Scheduler) DeleteJob(ctx context.Context, key domain.Key) (bool, error) {
	ok, err := s.store.RemoveJob(ctx, key)
	return ok, translate("DeleteJob", err)
}

func (s *Scheduler) DeleteJobs(ctx context.Context, keys []domain.Key) error {
	for _, k := range keys {
		if _, err := s.store.RemoveJob(ctx, k); err != nil {
			return translate("DeleteJobs", err)
		}
	}
	return nil
}

func (s *Scheduler) UnscheduleTrigger(ctx context.Context, key domain.Key) (bool, error) {
	ok, err := s.store.RemoveTrigger(ctx, key)
	return ok, translate("UnscheduleTrigger", err)
}

func (s *Scheduler) UnscheduleTriggers(ctx context.Context, keys []domain.Key) error {
	for _, k := range keys {
		if _, err := s.store.RemoveTrigger(ctx, k); err != nil {
			return translate("UnscheduleTriggers", err)
		}
	}
	return nil
}

// RescheduleJob replaces an existing trigger's definition in place,
// returning the new trigger's first fire time.
func (s *Scheduler) RescheduleJob(ctx context.Context, triggerKey domain.Key, newTrigger trigger.Trigger) (*time.Time, error) {
	cal, err := s.resolveCalendar(ctx, newTrigger.CalendarName())
	if err != nil {
		return nil, translate("RescheduleJob", err)
	}
	newTrigger.ComputeFirstFireTime(cal)

	ok, err := s.store.ReplaceTrigger(ctx, triggerKey, newTrigger)
	if err != nil {
		return nil, translate("RescheduleJob", err)
	}
	if !ok {
		return nil, newErr("RescheduleJob", KindNotFound, domain.ErrTriggerNotFound)
	}
	s.signalFor(newTrigger)
	return newTrigger.NextFireTime(), nil
}

// TriggerJob fires a job once, immediately, bypassing the normal
// acquire/fire trigger path entirely (spec.md §6's triggerJob).
func (s *Scheduler) TriggerJob(ctx context.Context, jobKey domain.Key, data domain.DataMap) error {
	job, ok, err := s.store.RetrieveJob(ctx, jobKey)
	if err != nil {
		return translate("TriggerJob", err)
	}
	if !ok {
		return newErr("TriggerJob", KindNotFound, domain.ErrJobNotFound)
	}

	now := time.Now()
	adHoc := trigger.NewSimpleTrigger(
		domain.NewKey(jobKey.Group, fmt.Sprintf("%s-manual-%d", jobKey.Name, now.UnixNano())),
		jobKey, now, nil, 0, 0, data,
	)
	adHoc.ComputeFirstFireTime(nil)

	bundle := &store.FiredBundle{
		Job:               job,
		Trigger:           adHoc,
		FireTime:          now,
		ScheduledFireTime: now,
	}
	ok2, submitErr := s.pool.RunInThread(func() { s.shell.Run(ctx, bundle) })
	if submitErr != nil || !ok2 {
		return newErr("TriggerJob", KindStoreFault, fmt.Errorf("facade: could not submit manual fire to worker pool: %w", submitErr))
	}
	return nil
}

// --- Pause/resume ---

func (s *Scheduler) PauseTrigger(ctx context.Context, key domain.Key) error {
	return translate("PauseTrigger", s.store.PauseTrigger(ctx, key))
}

func (s *Scheduler) PauseTriggerGroup(ctx context.Context, m store.Matcher) ([]string, error) {
	groups, err := s.store.PauseTriggerGroup(ctx, m)
	return groups, translate("PauseTriggerGroup", err)
}

func (s *Scheduler) PauseJob(ctx context.Context, key domain.Key) error {
	return translate("PauseJob", s.store.PauseJob(ctx, key))
}

func (s *Scheduler) PauseJobGroup(ctx context.Context, m store.Matcher) ([]string, error) {
	groups, err := s.store.PauseJobGroup(ctx, m)
	return groups, translate("PauseJobGroup", err)
}

func (s *Scheduler) ResumeTrigger(ctx context.Context, key domain.Key) error {
	err := s.store.ResumeTrigger(ctx, key)
	if err == nil {
		s.dispatcher.SignalSchedulingChange(time.Time{})
	}
	return translate("ResumeTrigger", err)
}

func (s *Scheduler) ResumeTriggerGroup(ctx context.Context, m store.Matcher) ([]string, error) {
	groups, err := s.store.ResumeTriggerGroup(ctx, m)
	if err == nil {
		s.dispatcher.SignalSchedulingChange(time.Time{})
	}
	return groups, translate("ResumeTriggerGroup", err)
}

func (s *Scheduler) ResumeJob(ctx context.Context, key domain.Key) error {
	err := s.store.ResumeJob(ctx, key)
	if err == nil {
		s.dispatcher.SignalSchedulingChange(time.Time{})
	}
	return translate("ResumeJob", err)
}

func (s *Scheduler) ResumeJobGroup(ctx context.Context, m store.Matcher) ([]string, error) {
	groups, err := s.store.ResumeJobGroup(ctx, m)
	if err == nil {
		s.dispatcher.SignalSchedulingChange(time.Time{})
	}
	return groups, translate("ResumeJobGroup", err)
}

func (s *Scheduler) PauseAll(ctx context.Context) error {
	return translate("PauseAll", s.store.PauseAll(ctx))
}

func (s *Scheduler) ResumeAll(ctx context.Context) error {
	err := s.store.ResumeAll(ctx)
	if err == nil {
		s.dispatcher.SignalSchedulingChange(time.Time{})
	}
	return translate("ResumeAll", err)
}

// Clear wipes every job, trigger, and calendar (spec.md §6).
func (s *Scheduler) Clear(ctx context.Context) error {
	return translate("Clear", s.store.ClearAllSchedulingData(ctx))
}

// --- Introspection ---

func (s *Scheduler) CheckJobExists(ctx context.Context, key domain.Key) (bool, error) {
	ok, err := s.store.CheckJobExists(ctx, key)
	return ok, translate("CheckJobExists", err)
}

func (s *Scheduler) CheckTriggerExists(ctx context.Context, key domain.Key) (bool, error) {
	ok, err := s.store.CheckTriggerExists(ctx, key)
	return ok, translate("CheckTriggerExists", err)
}

func (s *Scheduler) GetJobKeys(ctx context.Context, m store.Matcher) ([]domain.Key, error) {
	keys, err := s.store.GetJobKeys(ctx, m)
	return keys, translate("GetJobKeys", err)
}

func (s *Scheduler) GetTriggerKeys(ctx context.Context, m store.Matcher) ([]domain.Key, error) {
	keys, err := s.store.GetTriggerKeys(ctx, m)
	return keys, translate("GetTriggerKeys", err)
}

func (s *Scheduler) GetJobGroupNames(ctx context.Context) ([]string, error) {
	names, err := s.store.GetJobGroupNames(ctx)
	return names, translate("GetJobGroupNames", err)
}

func (s *Scheduler) GetTriggerGroupNames(ctx context.Context) ([]string, error) {
	names, err := s.store.GetTriggerGroupNames(ctx)
	return names, translate("GetTriggerGroupNames", err)
}

func (s *Scheduler) GetTriggersOfJob(ctx context.Context, jobKey domain.Key) ([]trigger.Trigger, error) {
	trgs, err := s.store.GetTriggersForJob(ctx, jobKey)
	return trgs, translate("GetTriggersOfJob", err)
}

// GetJobDetail retrieves a stored job definition by key. The bool return
// is false (with a nil error) when no such job exists.
func (s *Scheduler) GetJobDetail(ctx context.Context, key domain.Key) (domain.JobDetail, bool, error) {
	job, ok, err := s.store.RetrieveJob(ctx, key)
	return job, ok, translate("GetJobDetail", err)
}

// GetTrigger retrieves a stored trigger by key.
func (s *Scheduler) GetTrigger(ctx context.Context, key domain.Key) (trigger.Trigger, bool, error) {
	trg, ok, err := s.store.RetrieveTrigger(ctx, key)
	return trg, ok, translate("GetTrigger", err)
}

// --- Calendars ---

func (s *Scheduler) AddCalendar(ctx context.Context, name string, cal domain.Calendar, replaceExisting, updateTriggers bool) error {
	return translate("AddCalendar", s.store.StoreCalendar(ctx, name, cal, replaceExisting, updateTriggers))
}

func (s *Scheduler) DeleteCalendar(ctx context.Context, name string) (bool, error) {
	ok, err := s.store.RemoveCalendar(ctx, name)
	return ok, translate("DeleteCalendar", err)
}

func (s *Scheduler) GetCalendar(ctx context.Context, name string) (domain.Calendar, bool, error) {
	cal, ok, err := s.store.GetCalendar(ctx, name)
	return cal, ok, translate("GetCalendar", err)
}

func (s *Scheduler) GetCalendarNames(ctx context.Context) ([]string, error) {
	names, err := s.store.GetCalendarNames(ctx)
	return names, translate("GetCalendarNames", err)
}

// --- Currently executing jobs & interrupt ---

// TrackStart/TrackEnd implement jobrun.ExecutionTracker.
func (s *Scheduler) TrackStart(fireInstanceID string, jobKey, triggerKey domain.Key, cancel context.CancelFunc) {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	s.exec[fireInstanceID] = &executingRecord{jobKey: jobKey, triggerKey: triggerKey, fireTime: time.Now(), cancel: cancel}
}

func (s *Scheduler) TrackEnd(fireInstanceID string) {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	delete(s.exec, fireInstanceID)
}

// GetCurrentlyExecutingJobs returns a snapshot of every in-flight job run.
func (s *Scheduler) GetCurrentlyExecutingJobs() []ExecutingJob {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	out := make([]ExecutingJob, 0, len(s.exec))
	for id, rec := range s.exec {
		out = append(out, ExecutingJob{
			JobKey:         rec.jobKey,
			TriggerKey:     rec.triggerKey,
			FireInstanceID: id,
			FireTime:       rec.fireTime,
		})
	}
	return out
}

// Interrupt cancels every currently-executing run of jobKey. It is the
// caller's responsibility that the wired Job implementation honors
// context cancellation.
func (s *Scheduler) Interrupt(jobKey domain.Key) (interrupted int) {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	for _, rec := range s.exec {
		if rec.jobKey == jobKey {
			rec.cancel()
			interrupted++
		}
	}
	return interrupted
}

// InterruptFireInstance cancels exactly one in-flight run by its fire
// instance ID (spec.md §6's interrupt(fireInstanceId) overload).
func (s *Scheduler) InterruptFireInstance(fireInstanceID string) bool {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	rec, ok := s.exec[fireInstanceID]
	if !ok {
		return false
	}
	rec.cancel()
	return true
}

func (s *Scheduler) signalFor(trg trigger.Trigger) {
	if nft := trg.NextFireTime(); nft != nil {
		s.dispatcher.SignalSchedulingChange(*nft)
	} else {
		s.dispatcher.SignalSchedulingChange(time.Time{})
	}
}

var _ jobrun.ExecutionTracker = (*Scheduler)(nil)
