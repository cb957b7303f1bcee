// Package jobs defines the Job interface the job run shell executes, the
// JobExecutionContext it receives, and the JobFactory indirection spec.md
// §9 calls for ("dynamic dispatch on job class... the responsibility of
// the job factory, a user-pluggable interface").
package jobs

import (
	"context"
	"time"

	"github.com/cug2104518294/quartz-explained/internal/domain"
)

// Job is executable code resolved from a JobDetail's opaque JobClass
// string by a Factory. Implementations must be safe to run concurrently
// across different JobDetail instances; DisallowConcurrentExecution is
// the store's job, not the Job's.
type Job interface {
	Execute(ctx context.Context, jobCtx *ExecutionContext) error
}

// ExecutionContext is what the job run shell builds for each fire
// (spec.md §4.6 step 1): identity, merged data, and fire-time bookkeeping.
// The directives a Job can request travel back on ExecutionError instead.
type ExecutionContext struct {
	FireInstanceID string
	JobKey         domain.Key
	TriggerKey     domain.Key

	MergedData domain.DataMap

	FireTime          time.Time
	ScheduledFireTime time.Time
	PrevFireTime      *time.Time
	NextFireTime      *time.Time
	RefireCount       int
	IsRecovering      bool

	// ResultData, if non-nil after Execute returns, replaces the job's
	// stored data map when PersistDataAfterExecution is set (spec.md §4.3.4).
	ResultData domain.DataMap
}

// ExecutionError wraps an error returned from Job.Execute with the three
// refire/unschedule directives spec.md §4.6 step 5 describes. A Job that
// doesn't need them can simply return a plain error.
type ExecutionError struct {
	Err error

	RefireImmediately     bool
	UnscheduleFiringTrigger bool
	UnscheduleAllTriggers bool
}

func (e *ExecutionError) Error() string { return e.Err.Error() }
func (e *ExecutionError) Unwrap() error { return e.Err }

// Factory resolves a JobDetail's opaque JobClass string to an executable
// Job instance (spec.md §9's job factory indirection). The core never
// imports concrete Job implementations directly; callers register one
// Factory with the façade at startup.
type Factory interface {
	NewJob(detail domain.JobDetail) (Job, error)
}

// FactoryFunc adapts a plain function to Factory.
type FactoryFunc func(detail domain.JobDetail) (Job, error)

func (f FactoryFunc) NewJob(detail domain.JobDetail) (Job, error) { return f(detail) }
