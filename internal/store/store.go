// Package store defines the job store contract (spec.md §4.3): the
// transactional interface the dispatcher relies on for at-most-once
// firing, plus the CRUD/query surface the scheduler façade builds on.
package store

import (
	"context"
	"time"

	"github.com/cug2104518294/quartz-explained/internal/domain"
	"github.com/cug2104518294/quartz-explained/internal/trigger"
)

// FiredBundle is the snapshot triggersFired hands to the job run shell:
// everything it needs without further store round-trips (spec.md §4.3.3).
type FiredBundle struct {
	Job              domain.JobDetail
	Trigger          trigger.Trigger
	Calendar         domain.Calendar
	FireTime         time.Time
	ScheduledFireTime time.Time
	PrevFireTime     *time.Time
	NextFireTime     *time.Time
	IsRecovering     bool
	RefireCount      int

	// ResultData is filled in by the job run shell after execution when
	// the job's PersistDataAfterExecution flag is set (spec.md §4.3.4).
	ResultData domain.DataMap
}

// FiredResult is one slot of triggersFired's return list — nil Bundle
// means the trigger was paused/removed/blocked since acquisition; the
// dispatcher releases such a trigger, and one with a non-nil Err, back to
// the store without running it (spec.md §4.4 step 6).
type FiredResult struct {
	Bundle *FiredBundle
	Err    error
}

// Matcher selects jobs/triggers by key for the group-scoped query and
// pause/resume operations (spec.md §4.7's matcher concept, reused here
// for getJobKeys/getTriggerKeys per §4.3).
type Matcher struct {
	// Group, when non-empty, restricts to an exact group.
	Group string
	// GroupPrefix, when non-empty, restricts to groups with this prefix.
	GroupPrefix string
	// anything leaves Group/GroupPrefix empty and matches every key.
}

func MatchAnyGroup() Matcher                 { return Matcher{} }
func MatchGroupEquals(group string) Matcher   { return Matcher{Group: group} }
func MatchGroupStartsWith(prefix string) Matcher { return Matcher{GroupPrefix: prefix} }

func (m Matcher) matches(group string) bool {
	if m.Group != "" {
		return group == m.Group
	}
	if m.GroupPrefix != "" {
		return len(group) >= len(m.GroupPrefix) && group[:len(m.GroupPrefix)] == m.GroupPrefix
	}
	return true
}

// Matches reports whether key satisfies the matcher.
func (m Matcher) Matches(key domain.Key) bool { return m.matches(key.Group) }

// JobStore is the authoritative, transactional source of truth (spec.md
// §4.3). Implementations: internal/store/memstore (in-process reference)
// and internal/store/pgstore (pgx/v5-backed, clustered).
type JobStore interface {
	// Initialize runs recovery: orphaned ACQUIRED/EXECUTING triggers are
	// reset to WAITING, enqueuing a recovery fire for RequestsRecovery jobs.
	Initialize(ctx context.Context) error

	// --- Mutation ---

	StoreJob(ctx context.Context, job domain.JobDetail, replaceExisting bool) error
	StoreTrigger(ctx context.Context, trg trigger.Trigger, replaceExisting bool) error
	StoreJobAndTrigger(ctx context.Context, job domain.JobDetail, trg trigger.Trigger, replaceExisting bool) error
	RemoveJob(ctx context.Context, key domain.Key) (bool, error)
	RemoveTrigger(ctx context.Context, key domain.Key) (bool, error)
	ReplaceTrigger(ctx context.Context, key domain.Key, newTrigger trigger.Trigger) (bool, error)

	PauseTrigger(ctx context.Context, key domain.Key) error
	PauseTriggerGroup(ctx context.Context, m Matcher) ([]string, error)
	PauseJob(ctx context.Context, key domain.Key) error
	PauseJobGroup(ctx context.Context, m Matcher) ([]string, error)
	ResumeTrigger(ctx context.Context, key domain.Key) error
	ResumeTriggerGroup(ctx context.Context, m Matcher) ([]string, error)
	ResumeJob(ctx context.Context, key domain.Key) error
	ResumeJobGroup(ctx context.Context, m Matcher) ([]string, error)
	PauseAll(ctx context.Context) error
	ResumeAll(ctx context.Context) error

	StoreCalendar(ctx context.Context, name string, cal domain.Calendar, replaceExisting, updateTriggers bool) error
	RemoveCalendar(ctx context.Context, name string) (bool, error)
	ClearAllSchedulingData(ctx context.Context) error
	ResetTriggerFromErrorState(ctx context.Context, key domain.Key) error

	// --- Query ---

	RetrieveJob(ctx context.Context, key domain.Key) (domain.JobDetail, bool, error)
	RetrieveTrigger(ctx context.Context, key domain.Key) (trigger.Trigger, bool, error)
	CheckJobExists(ctx context.Context, key domain.Key) (bool, error)
	CheckTriggerExists(ctx context.Context, key domain.Key) (bool, error)
	GetJobKeys(ctx context.Context, m Matcher) ([]domain.Key, error)
	GetTriggerKeys(ctx context.Context, m Matcher) ([]domain.Key, error)
	GetJobGroupNames(ctx context.Context) ([]string, error)
	GetTriggerGroupNames(ctx context.Context) ([]string, error)
	GetTriggersForJob(ctx context.Context, jobKey domain.Key) ([]trigger.Trigger, error)
	GetTriggerState(ctx context.Context, key domain.Key) (domain.TriggerState, error)
	GetCalendar(ctx context.Context, name string) (domain.Calendar, bool, error)
	GetCalendarNames(ctx context.Context) ([]string, error)
	GetPausedTriggerGroups(ctx context.Context) ([]string, error)
	GetNumberOfJobs(ctx context.Context) (int, error)
	GetNumberOfTriggers(ctx context.Context) (int, error)
	GetNumberOfCalendars(ctx context.Context) (int, error)

	// --- Firing protocol ---

	AcquireNextTriggers(ctx context.Context, noLaterThan time.Time, maxCount int, timeWindow time.Duration) ([]trigger.Trigger, error)
	ReleaseAcquiredTrigger(ctx context.Context, trg trigger.Trigger) error
	TriggersFired(ctx context.Context, triggers []trigger.Trigger) ([]FiredResult, error)
	TriggeredJobComplete(ctx context.Context, trg trigger.Trigger, job domain.JobDetail, instruction domain.CompletionInstruction, newData domain.DataMap) error

	// --- Retry/backoff & capabilities ---

	GetAcquireRetryDelay(failureCount int) time.Duration
	SupportsPersistence() bool
	IsClustered() bool
}

// ClampRetryDelay enforces the dispatcher-side bound on a store's
// getAcquireRetryDelay (spec.md §4.3): [20ms, 600000ms].
func ClampRetryDelay(d time.Duration) time.Duration {
	const (
		min = 20 * time.Millisecond
		max = 600000 * time.Millisecond
	)
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
