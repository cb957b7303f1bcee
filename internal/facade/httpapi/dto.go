package httpapi

import (
	"fmt"
	"time"

	"github.com/cug2104518294/quartz-explained/internal/cronexpr"
	"github.com/cug2104518294/quartz-explained/internal/domain"
	"github.com/cug2104518294/quartz-explained/internal/trigger"
)

// createJobRequest defines a job and, inline, the trigger that schedules
// its first fire — the two-argument scheduleJob(job, trigger) path
// (spec.md §6).
type createJobRequest struct {
	Group                       string         `json:"group"`
	Name                        string         `json:"name" binding:"required"`
	JobClass                    string         `json:"job_class" binding:"required"`
	Description                 string         `json:"description"`
	JobData                     domain.DataMap `json:"job_data"`
	Durable                     bool           `json:"durable"`
	RequestsRecovery            bool           `json:"requests_recovery"`
	PersistDataAfterExecution   bool           `json:"persist_data_after_execution"`
	DisallowConcurrentExecution bool           `json:"disallow_concurrent_execution"`

	Trigger triggerRequest `json:"trigger" binding:"required"`
}

// triggerRequest is a tagged union over the trigger kinds this API
// exposes for creation. Kind selects which fields apply; unsupported
// kinds (calendar-interval, daily-time-interval) are reachable only
// through the façade directly, not this HTTP surface.
type triggerRequest struct {
	Group string `json:"group"`
	Name  string `json:"name" binding:"required"`
	Kind  string `json:"kind" binding:"required,oneof=SIMPLE CRON"`

	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Priority  int        `json:"priority"`
	Data      domain.DataMap `json:"data"`

	// SIMPLE
	RepeatIntervalSeconds int `json:"repeat_interval_seconds"`
	RepeatCount           int `json:"repeat_count"`

	// CRON
	CronExpr string `json:"cron_expr"`
	Timezone string `json:"timezone"`
}

func (r triggerRequest) build(jobKey domain.Key) (trigger.Trigger, error) {
	key := domain.NewKey(r.Group, r.Name)
	start := time.Now()
	if r.StartTime != nil {
		start = *r.StartTime
	}

	switch r.Kind {
	case string(trigger.KindSimple):
		trg := trigger.NewSimpleTrigger(key, jobKey, start, r.EndTime,
			time.Duration(r.RepeatIntervalSeconds)*time.Second, r.RepeatCount, r.Data)
		if r.Priority > 0 {
			trg.SetPriority(r.Priority)
		}
		return trg, nil

	case string(trigger.KindCron):
		if r.CronExpr == "" {
			return nil, fmt.Errorf("cron_expr is required for a CRON trigger")
		}
		expr, err := cronexpr.Parse(r.CronExpr)
		if err != nil {
			return nil, fmt.Errorf("invalid cron_expr: %w", err)
		}
		loc := time.UTC
		if r.Timezone != "" {
			l, err := time.LoadLocation(r.Timezone)
			if err != nil {
				return nil, fmt.Errorf("invalid timezone: %w", err)
			}
			loc = l
		}
		trg := trigger.NewCronTrigger(key, jobKey, start, r.EndTime, expr, loc, r.Data)
		if r.Priority > 0 {
			trg.SetPriority(r.Priority)
		}
		return trg, nil

	default:
		return nil, fmt.Errorf("unsupported trigger kind %q", r.Kind)
	}
}

type jobResponse struct {
	Group                       string         `json:"group"`
	Name                        string         `json:"name"`
	JobClass                    string         `json:"job_class"`
	Description                 string         `json:"description,omitempty"`
	JobData                     domain.DataMap `json:"job_data,omitempty"`
	Durable                     bool           `json:"durable"`
	RequestsRecovery            bool           `json:"requests_recovery"`
	PersistDataAfterExecution   bool           `json:"persist_data_after_execution"`
	DisallowConcurrentExecution bool           `json:"disallow_concurrent_execution"`
}

func toJobResponse(job domain.JobDetail) jobResponse {
	return jobResponse{
		Group:                       job.Key.Group,
		Name:                        job.Key.Name,
		JobClass:                    job.JobClass,
		Description:                 job.Description,
		JobData:                     job.JobData,
		Durable:                     job.Durable,
		RequestsRecovery:            job.RequestsRecovery,
		PersistDataAfterExecution:   job.PersistDataAfterExecution,
		DisallowConcurrentExecution: job.DisallowConcurrentExecution,
	}
}

type triggerResponse struct {
	Group            string         `json:"group"`
	Name             string         `json:"name"`
	JobGroup         string         `json:"job_group"`
	JobName          string         `json:"job_name"`
	Kind             string         `json:"kind"`
	State            string         `json:"state"`
	NextFireTime     *time.Time     `json:"next_fire_time,omitempty"`
	PreviousFireTime *time.Time     `json:"previous_fire_time,omitempty"`
	Priority         int            `json:"priority"`
}

func toTriggerResponse(trg trigger.Trigger, state domain.TriggerState) triggerResponse {
	return triggerResponse{
		Group:            trg.Key().Group,
		Name:             trg.Key().Name,
		JobGroup:         trg.JobKey().Group,
		JobName:          trg.JobKey().Name,
		Kind:             string(trg.Kind()),
		State:            string(state),
		NextFireTime:     trg.NextFireTime(),
		PreviousFireTime: trg.PreviousFireTime(),
		Priority:         trg.Priority(),
	}
}

type scheduleJobResponse struct {
	jobResponse
	Trigger      triggerResponse `json:"trigger"`
	NextFireTime *time.Time      `json:"next_fire_time,omitempty"`
}

type triggerJobRequest struct {
	Data domain.DataMap `json:"data"`
}
