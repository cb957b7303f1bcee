package domain

import "errors"

// Sentinel errors a JobStore (or anything built on top of it) returns.
// Callers use errors.Is to branch on them; the façade translates them into
// a SchedulerError (see internal/facade) for external consumers.
var (
	ErrJobNotFound        = errors.New("domain: job not found")
	ErrTriggerNotFound    = errors.New("domain: trigger not found")
	ErrCalendarNotFound   = errors.New("domain: calendar not found")
	ErrCalendarInUse      = errors.New("domain: calendar is referenced by an existing trigger")
	ErrJobAlreadyExists   = errors.New("domain: job with this identity already exists")
	ErrTriggerAlreadyExists = errors.New("domain: trigger with this identity already exists")
	ErrTriggerNotAcquired = errors.New("domain: trigger is not in the acquired state")
	ErrInvalidCronExpr    = errors.New("domain: invalid cron expression")
	ErrIllegalIdentity    = errors.New("domain: job or trigger identity must have a non-empty name")
)
