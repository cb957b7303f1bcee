// Package memstore is the in-memory reference implementation of
// store.JobStore (spec.md §2's "Job store (contract + reference in-memory
// impl)" deliverable). It favours straightforward, single-process
// correctness over throughput: one mutex guards all state, grounded on
// golly/chrono's InMemoryStorage (internal/store/memstore is this
// module's equivalent of that file, generalized from a single-job-record
// model to the full job/trigger/calendar state machine in spec.md §3-4).
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cug2104518294/quartz-explained/internal/domain"
	"github.com/cug2104518294/quartz-explained/internal/store"
	"github.com/cug2104518294/quartz-explained/internal/trigger"
)

// recoveryDataJobKey / recoveryDataTriggerKey are the well-known data-map
// keys a recovery fire carries the original trigger identity under
// (spec.md §4.3 "Recovery").
const (
	RecoveryDataJobKey     = "MEM_RECOVERING_JOB_KEY"
	RecoveryDataTriggerKey = "MEM_RECOVERING_TRIGGER_KEY"
	RecoveryDataFireTime   = "MEM_RECOVERING_FIRE_TIME_IN_MILLISECONDS"
)

type jobEntry struct {
	detail domain.JobDetail
}

type triggerEntry struct {
	trg     trigger.Trigger
	jobKey  domain.Key
	blocked bool // true while ACQUIRED/EXECUTING elsewhere blocked it (state BLOCKED/PAUSED_BLOCKED)
}

// Store is the in-memory JobStore. Zero value is not usable; use New.
type Store struct {
	mu sync.Mutex

	jobs     map[domain.Key]*jobEntry
	triggers map[domain.Key]*triggerEntry
	calendars map[string]domain.Calendar

	pausedTriggerGroups map[string]bool
	pausedJobGroups     map[string]bool
	allPaused           bool

	// blockedJobs tracks jobs with an in-flight execution that disallows
	// concurrency, so triggersFired can block sibling triggers.
	blockedJobs map[domain.Key]bool

	misfireThreshold time.Duration
	clustered        bool
}

// New constructs an empty Store. misfireThreshold is the default
// (spec.md §6: 60s) unless overridden.
func New(misfireThreshold time.Duration) *Store {
	if misfireThreshold <= 0 {
		misfireThreshold = 60 * time.Second
	}
	return &Store{
		jobs:                make(map[domain.Key]*jobEntry),
		triggers:            make(map[domain.Key]*triggerEntry),
		calendars:           make(map[string]domain.Calendar),
		pausedTriggerGroups: make(map[string]bool),
		pausedJobGroups:     make(map[string]bool),
		blockedJobs:         make(map[domain.Key]bool),
		misfireThreshold:    misfireThreshold,
	}
}

func (s *Store) SupportsPersistence() bool { return false }
func (s *Store) IsClustered() bool         { return s.clustered }

func (s *Store) GetAcquireRetryDelay(failureCount int) time.Duration {
	return store.ClampRetryDelay(time.Duration(failureCount) * 100 * time.Millisecond)
}

// Initialize performs crash recovery: any trigger left ACQUIRED/EXECUTING
// is an orphan of a prior process; reset it to WAITING, and if its job
// requests recovery, synthesize a one-shot recovery fire (spec.md §4.3).
func (s *Store) Initialize(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, te := range s.triggers {
		st := te.trg.State()
		if st != domain.StateAcquired && st != domain.StateExecuting {
			continue
		}
		je, ok := s.jobs[te.jobKey]
		if ok && je.detail.RequestsRecovery {
			s.enqueueRecoveryFireLocked(key, te)
		}
		te.trg.SetState(domain.StateWaiting)
		te.blocked = false
	}
	s.blockedJobs = make(map[domain.Key]bool)
	return nil
}

// enqueueRecoveryFireLocked stores a one-shot SimpleTrigger carrying the
// original trigger's identity, so the job factory / job implementation can
// recognise a recovery run and act accordingly.
func (s *Store) enqueueRecoveryFireLocked(origKey domain.Key, te *triggerEntry) {
	data := domain.DataMap{
		RecoveryDataJobKey:     te.jobKey.String(),
		RecoveryDataTriggerKey: origKey.String(),
		RecoveryDataFireTime:   time.Now().UnixMilli(),
	}
	recoveryKey := domain.NewKey("RECOVERY", origKey.String()+"-"+time.Now().Format(time.RFC3339Nano))
	recTrigger := trigger.NewSimpleTrigger(recoveryKey, te.jobKey, time.Now(), nil, 0, 0, data)
	recTrigger.ComputeFirstFireTime(nil)
	s.triggers[recoveryKey] = &triggerEntry{trg: recTrigger, jobKey: te.jobKey}
}

// --- Mutation ---

func (s *Store) StoreJob(_ context.Context, job domain.JobDetail, replaceExisting bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Key]; exists && !replaceExisting {
		return domain.ErrJobAlreadyExists
	}
	s.jobs[job.Key] = &jobEntry{detail: job.Clone()}
	return nil
}

func (s *Store) StoreTrigger(_ context.Context, trg trigger.Trigger, replaceExisting bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeTriggerLocked(trg, replaceExisting)
}

func (s *Store) storeTriggerLocked(trg trigger.Trigger, replaceExisting bool) error {
	if _, exists := s.triggers[trg.Key()]; exists && !replaceExisting {
		return domain.ErrTriggerAlreadyExists
	}
	if trg.CalendarName() != "" {
		if _, ok := s.calendars[trg.CalendarName()]; !ok {
			return domain.ErrCalendarNotFound
		}
	}
	if _, ok := s.jobs[trg.JobKey()]; !ok {
		return domain.ErrJobNotFound
	}
	s.triggers[trg.Key()] = &triggerEntry{trg: trg, jobKey: trg.JobKey()}
	return nil
}

func (s *Store) StoreJobAndTrigger(_ context.Context, job domain.JobDetail, trg trigger.Trigger, replaceExisting bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Key]; exists && !replaceExisting {
		return domain.ErrJobAlreadyExists
	}
	s.jobs[job.Key] = &jobEntry{detail: job.Clone()}
	return s.storeTriggerLocked(trg, replaceExisting)
}

func (s *Store) RemoveJob(_ context.Context, key domain.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[key]; !ok {
		return false, nil
	}
	for tk, te := range s.triggers {
		if te.jobKey == key {
			delete(s.triggers, tk)
		}
	}
	delete(s.jobs, key)
	return true, nil
}

func (s *Store) RemoveTrigger(_ context.Context, key domain.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeTriggerLocked(key)
}

func (s *Store) removeTriggerLocked(key domain.Key) (bool, error) {
	te, ok := s.triggers[key]
	if !ok {
		return false, nil
	}
	delete(s.triggers, key)
	s.deleteJobIfOrphanedLocked(te.jobKey)
	return true, nil
}

func (s *Store) deleteJobIfOrphanedLocked(jobKey domain.Key) {
	je, ok := s.jobs[jobKey]
	if !ok || je.detail.Durable {
		return
	}
	for _, te := range s.triggers {
		if te.jobKey == jobKey {
			return
		}
	}
	delete(s.jobs, jobKey)
}

func (s *Store) ReplaceTrigger(_ context.Context, key domain.Key, newTrigger trigger.Trigger) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	te, ok := s.triggers[key]
	if !ok {
		return false, nil
	}
	if newTrigger.JobKey() != te.jobKey {
		if _, ok := s.jobs[newTrigger.JobKey()]; !ok {
			return false, domain.ErrJobNotFound
		}
	}
	s.triggers[newTrigger.Key()] = &triggerEntry{trg: newTrigger, jobKey: newTrigger.JobKey()}
	if newTrigger.Key() != key {
		delete(s.triggers, key)
	}
	return true, nil
}

func (s *Store) PauseTrigger(_ context.Context, key domain.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	te, ok := s.triggers[key]
	if !ok {
		return domain.ErrTriggerNotFound
	}
	s.pauseTriggerEntryLocked(te)
	return nil
}

func (s *Store) pauseTriggerEntryLocked(te *triggerEntry) {
	switch te.trg.State() {
	case domain.StateBlocked:
		te.trg.SetState(domain.StatePausedBlocked)
	case domain.StateComplete, domain.StateError:
		// no-op: terminal states are not pausable.
	default:
		te.trg.SetState(domain.StatePaused)
	}
}

func (s *Store) PauseTriggerGroup(_ context.Context, m store.Matcher) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := map[string]bool{}
	for k, te := range s.triggers {
		if !m.Matches(k) {
			continue
		}
		groups[k.Group] = true
		s.pauseTriggerEntryLocked(te)
	}
	for g := range groups {
		s.pausedTriggerGroups[g] = true
	}
	return sortedKeys(groups), nil
}

func (s *Store) PauseJob(_ context.Context, key domain.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[key]; !ok {
		return domain.ErrJobNotFound
	}
	for _, te := range s.triggers {
		if te.jobKey == key {
			s.pauseTriggerEntryLocked(te)
		}
	}
	return nil
}

func (s *Store) PauseJobGroup(_ context.Context, m store.Matcher) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := map[string]bool{}
	for jk := range s.jobs {
		if !m.Matches(jk) {
			continue
		}
		groups[jk.Group] = true
		for _, te := range s.triggers {
			if te.jobKey == jk {
				s.pauseTriggerEntryLocked(te)
			}
		}
	}
	for g := range groups {
		s.pausedJobGroups[g] = true
	}
	return sortedKeys(groups), nil
}

func (s *Store) resumeTriggerEntryLocked(te *triggerEntry) {
	switch te.trg.State() {
	case domain.StatePausedBlocked:
		te.trg.SetState(domain.StateBlocked)
	case domain.StatePaused:
		te.trg.SetState(domain.StateWaiting)
	}
}

func (s *Store) ResumeTrigger(_ context.Context, key domain.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	te, ok := s.triggers[key]
	if !ok {
		return domain.ErrTriggerNotFound
	}
	s.resumeTriggerEntryLocked(te)
	return nil
}

func (s *Store) ResumeTriggerGroup(_ context.Context, m store.Matcher) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := map[string]bool{}
	for k, te := range s.triggers {
		if !m.Matches(k) {
			continue
		}
		groups[k.Group] = true
		s.resumeTriggerEntryLocked(te)
	}
	for g := range groups {
		delete(s.pausedTriggerGroups, g)
	}
	return sortedKeys(groups), nil
}

func (s *Store) ResumeJob(_ context.Context, key domain.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[key]; !ok {
		return domain.ErrJobNotFound
	}
	for _, te := range s.triggers {
		if te.jobKey == key {
			s.resumeTriggerEntryLocked(te)
		}
	}
	return nil
}

func (s *Store) ResumeJobGroup(_ context.Context, m store.Matcher) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := map[string]bool{}
	for jk := range s.jobs {
		if !m.Matches(jk) {
			continue
		}
		groups[jk.Group] = true
		for _, te := range s.triggers {
			if te.jobKey == jk {
				s.resumeTriggerEntryLocked(te)
			}
		}
	}
	for g := range groups {
		delete(s.pausedJobGroups, g)
	}
	return sortedKeys(groups), nil
}

func (s *Store) PauseAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allPaused = true
	for _, te := range s.triggers {
		s.pauseTriggerEntryLocked(te)
	}
	return nil
}

func (s *Store) ResumeAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allPaused = false
	s.pausedTriggerGroups = make(map[string]bool)
	s.pausedJobGroups = make(map[string]bool)
	for _, te := range s.triggers {
		s.resumeTriggerEntryLocked(te)
	}
	return nil
}

func (s *Store) StoreCalendar(_ context.Context, name string, cal domain.Calendar, replaceExisting, updateTriggers bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.calendars[name]; exists && !replaceExisting {
		return domain.ErrJobAlreadyExists
	}
	s.calendars[name] = cal
	if !updateTriggers {
		return nil
	}
	for _, te := range s.triggers {
		if te.trg.CalendarName() == name {
			te.trg.ComputeFirstFireTime(cal)
		}
	}
	return nil
}

func (s *Store) RemoveCalendar(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calendars[name]; !ok {
		return false, nil
	}
	for _, te := range s.triggers {
		if te.trg.CalendarName() == name {
			return false, domain.ErrCalendarInUse
		}
	}
	delete(s.calendars, name)
	return true, nil
}

func (s *Store) ClearAllSchedulingData(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[domain.Key]*jobEntry)
	s.triggers = make(map[domain.Key]*triggerEntry)
	s.calendars = make(map[string]domain.Calendar)
	s.pausedTriggerGroups = make(map[string]bool)
	s.pausedJobGroups = make(map[string]bool)
	s.blockedJobs = make(map[domain.Key]bool)
	s.allPaused = false
	return nil
}

func (s *Store) ResetTriggerFromErrorState(_ context.Context, key domain.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	te, ok := s.triggers[key]
	if !ok {
		return domain.ErrTriggerNotFound
	}
	if te.trg.State() != domain.StateError {
		return nil
	}
	if s.pausedTriggerGroups[key.Group] || s.pausedJobGroups[te.jobKey.Group] {
		te.trg.SetState(domain.StatePaused)
	} else {
		te.trg.SetState(domain.StateWaiting)
	}
	return nil
}

// --- Query ---

func (s *Store) RetrieveJob(_ context.Context, key domain.Key) (domain.JobDetail, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	je, ok := s.jobs[key]
	if !ok {
		return domain.JobDetail{}, false, nil
	}
	return je.detail.Clone(), true, nil
}

func (s *Store) RetrieveTrigger(_ context.Context, key domain.Key) (trigger.Trigger, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	te, ok := s.triggers[key]
	if !ok {
		return nil, false, nil
	}
	return te.trg, true, nil
}

func (s *Store) CheckJobExists(_ context.Context, key domain.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[key]
	return ok, nil
}

func (s *Store) CheckTriggerExists(_ context.Context, key domain.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.triggers[key]
	return ok, nil
}

func (s *Store) GetJobKeys(_ context.Context, m store.Matcher) ([]domain.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Key
	for k := range s.jobs {
		if m.Matches(k) {
			out = append(out, k)
		}
	}
	sortKeys(out)
	return out, nil
}

func (s *Store) GetTriggerKeys(_ context.Context, m store.Matcher) ([]domain.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Key
	for k := range s.triggers {
		if m.Matches(k) {
			out = append(out, k)
		}
	}
	sortKeys(out)
	return out, nil
}

func (s *Store) GetJobGroupNames(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := map[string]bool{}
	for k := range s.jobs {
		groups[k.Group] = true
	}
	return sortedKeys(groups), nil
}

func (s *Store) GetTriggerGroupNames(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := map[string]bool{}
	for k := range s.triggers {
		groups[k.Group] = true
	}
	return sortedKeys(groups), nil
}

func (s *Store) GetTriggersForJob(_ context.Context, jobKey domain.Key) ([]trigger.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []trigger.Trigger
	for _, te := range s.triggers {
		if te.jobKey == jobKey {
			out = append(out, te.trg)
		}
	}
	return out, nil
}

func (s *Store) GetTriggerState(_ context.Context, key domain.Key) (domain.TriggerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	te, ok := s.triggers[key]
	if !ok {
		return domain.StateNone, nil
	}
	return te.trg.State(), nil
}

func (s *Store) GetCalendar(_ context.Context, name string) (domain.Calendar, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal, ok := s.calendars[name]
	return cal, ok, nil
}

func (s *Store) GetCalendarNames(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.calendars))
	for n := range s.calendars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) GetPausedTriggerGroups(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := make([]string, 0, len(s.pausedTriggerGroups))
	for g := range s.pausedTriggerGroups {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups, nil
}

func (s *Store) GetNumberOfJobs(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs), nil
}

func (s *Store) GetNumberOfTriggers(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.triggers), nil
}

func (s *Store) GetNumberOfCalendars(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calendars), nil
}

// --- Firing protocol ---

// AcquireNextTriggers implements spec.md §4.3.1: applies misfire handling
// to any WAITING trigger whose nextFireTime is more than misfireThreshold
// in the past, then selects up to maxCount due triggers ordered by
// (nextFireTime, priority desc, key), transitioning each WAITING→ACQUIRED.
func (s *Store) AcquireNextTriggers(_ context.Context, noLaterThan time.Time, maxCount int, timeWindow time.Duration) ([]trigger.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cutoff := noLaterThan.Add(timeWindow)

	var candidates []*triggerEntry
	for _, te := range s.triggers {
		if te.trg.State() != domain.StateWaiting {
			continue
		}
		nf := te.trg.NextFireTime()
		if nf == nil {
			continue
		}
		if now.Sub(*nf) > s.misfireThreshold {
			s.applyMisfireLocked(te)
			nf = te.trg.NextFireTime()
			if nf == nil || te.trg.State() != domain.StateWaiting {
				continue
			}
		}
		if !nf.After(cutoff) {
			candidates = append(candidates, te)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		ti, tj := candidates[i].trg, candidates[j].trg
		if !ti.NextFireTime().Equal(*tj.NextFireTime()) {
			return ti.NextFireTime().Before(*tj.NextFireTime())
		}
		if ti.Priority() != tj.Priority() {
			return ti.Priority() > tj.Priority()
		}
		return ti.Key().Less(tj.Key())
	})

	if maxCount > 0 && len(candidates) > maxCount {
		candidates = candidates[:maxCount]
	}

	out := make([]trigger.Trigger, 0, len(candidates))
	for _, te := range candidates {
		te.trg.SetState(domain.StateAcquired)
		out = append(out, te.trg)
	}
	return out, nil
}

// applyMisfireLocked runs the trigger's misfire instruction in place.
// Quartz's smart-policy default for a trigger with no remaining fires is
// to mark it complete instead of rescheduling.
func (s *Store) applyMisfireLocked(te *triggerEntry) {
	te.trg.UpdateAfterMisfire(s.calendarForLocked(te.trg))
	if te.trg.NextFireTime() == nil {
		te.trg.SetState(domain.StateComplete)
	}
}

func (s *Store) calendarForLocked(trg trigger.Trigger) domain.Calendar {
	if trg.CalendarName() == "" {
		return nil
	}
	return s.calendars[trg.CalendarName()]
}

func (s *Store) ReleaseAcquiredTrigger(_ context.Context, trg trigger.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	te, ok := s.triggers[trg.Key()]
	if !ok {
		return nil // idempotent: already gone.
	}
	if te.trg.State() == domain.StateAcquired {
		te.trg.SetState(domain.StateWaiting)
	}
	return nil
}

// TriggersFired implements spec.md §4.3.3.
func (s *Store) TriggersFired(_ context.Context, triggers []trigger.Trigger) ([]store.FiredResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]store.FiredResult, 0, len(triggers))
	for _, trg := range triggers {
		te, ok := s.triggers[trg.Key()]
		if !ok || te.trg.State() != domain.StateAcquired {
			results = append(results, store.FiredResult{})
			continue
		}
		nf := te.trg.NextFireTime()
		if nf == nil || nf.After(time.Now().Add(time.Second)) {
			results = append(results, store.FiredResult{})
			continue
		}

		je, ok := s.jobs[te.jobKey]
		if !ok {
			results = append(results, store.FiredResult{})
			continue
		}

		cal := s.calendarForLocked(te.trg)
		scheduled := *nf
		prev := te.trg.PreviousFireTime()
		te.trg.Triggered(cal)
		next := te.trg.NextFireTime()

		te.trg.SetState(domain.StateExecuting)

		_, isRecovering := te.trg.Data()[RecoveryDataTriggerKey]

		bundle := &store.FiredBundle{
			Job:               je.detail.Clone(),
			Trigger:           te.trg,
			Calendar:          cal,
			FireTime:          time.Now(),
			ScheduledFireTime: scheduled,
			PrevFireTime:      prev,
			NextFireTime:      next,
			IsRecovering:      isRecovering,
		}
		results = append(results, store.FiredResult{Bundle: bundle})

		if je.detail.DisallowConcurrentExecution {
			s.blockSiblingsLocked(te.jobKey, trg.Key())
		}
	}
	return results, nil
}

func (s *Store) blockSiblingsLocked(jobKey domain.Key, firingTrigger domain.Key) {
	s.blockedJobs[jobKey] = true
	for k, te := range s.triggers {
		if te.jobKey != jobKey || k == firingTrigger {
			continue
		}
		switch te.trg.State() {
		case domain.StateWaiting:
			te.trg.SetState(domain.StateBlocked)
		case domain.StatePaused:
			te.trg.SetState(domain.StatePausedBlocked)
		}
	}
}

func (s *Store) unblockSiblingsLocked(jobKey domain.Key) {
	delete(s.blockedJobs, jobKey)
	for _, te := range s.triggers {
		if te.jobKey != jobKey {
			continue
		}
		switch te.trg.State() {
		case domain.StateBlocked:
			te.trg.SetState(domain.StateWaiting)
		case domain.StatePausedBlocked:
			te.trg.SetState(domain.StatePaused)
		}
	}
}

// TriggeredJobComplete implements spec.md §4.3.4.
func (s *Store) TriggeredJobComplete(_ context.Context, trg trigger.Trigger, job domain.JobDetail, instruction domain.CompletionInstruction, newData domain.DataMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	te, ok := s.triggers[trg.Key()]
	jobStillExists := false
	if je, exists := s.jobs[job.Key]; exists {
		jobStillExists = true
		if job.PersistDataAfterExecution && newData != nil {
			je.detail.JobData = newData.Clone()
		}
	}

	if job.DisallowConcurrentExecution {
		s.unblockSiblingsLocked(job.Key)
	}

	switch instruction {
	case domain.DeleteTrigger:
		if ok {
			s.removeTriggerLocked(trg.Key())
		}
	case domain.SetTriggerComplete:
		if ok {
			te.trg.SetState(domain.StateComplete)
			s.deleteJobIfOrphanedLocked(job.Key)
		}
	case domain.SetTriggerError:
		if ok {
			te.trg.SetState(domain.StateError)
		}
	case domain.SetAllJobTriggersComplete:
		for _, other := range s.triggers {
			if other.jobKey == job.Key {
				other.trg.SetState(domain.StateComplete)
			}
		}
	case domain.SetAllJobTriggersError:
		for _, other := range s.triggers {
			if other.jobKey == job.Key {
				other.trg.SetState(domain.StateError)
			}
		}
	case domain.ReExecuteJob:
		// Handled by the dispatcher/job-run-shell refiring in place; the
		// store only needs to leave the trigger's state as EXECUTING.
	default: // NoOp
		if ok && te.trg.State() == domain.StateExecuting {
			if te.trg.NextFireTime() == nil {
				te.trg.SetState(domain.StateComplete)
				s.deleteJobIfOrphanedLocked(job.Key)
			} else {
				te.trg.SetState(domain.StateWaiting)
			}
		}
	}

	if !jobStillExists {
		// Job was deleted mid-flight; nothing further to reconcile.
		return nil
	}
	return nil
}

func sortKeys(keys []domain.Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var _ store.JobStore = (*Store)(nil)
