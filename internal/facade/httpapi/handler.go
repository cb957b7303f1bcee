// Package httpapi exposes internal/facade.Scheduler over HTTP: one gin
// router, grouped into job and trigger resources, guarded by bearer-JWT
// auth. Grounded on internal/http's handler/router shape (the teacher's
// webhook-delivery API), generalized from its Job/Schedule/Attempt
// resources to this module's Job/Trigger façade operations plus the
// currently-executing list and interrupt; calendars are not exposed.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cug2104518294/quartz-explained/internal/domain"
	"github.com/cug2104518294/quartz-explained/internal/facade"
	"github.com/cug2104518294/quartz-explained/internal/store"
)

// Handler wraps the façade and renders its operations as JSON.
type Handler struct {
	sched  *facade.Scheduler
	logger *slog.Logger
}

func NewHandler(sched *facade.Scheduler, logger *slog.Logger) *Handler {
	return &Handler{sched: sched, logger: logger.With("component", "httpapi")}
}

// CreateJob handles POST /jobs: store a job and its first trigger
// together (spec.md §6's two-arg scheduleJob).
func (h *Handler) CreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobKey := domain.NewKey(req.Group, req.Name)
	trg, err := req.Trigger.build(jobKey)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job := domain.JobDetail{
		Key:                         jobKey,
		JobClass:                    req.JobClass,
		Description:                 req.Description,
		JobData:                     req.JobData,
		Durable:                     req.Durable,
		RequestsRecovery:            req.RequestsRecovery,
		PersistDataAfterExecution:   req.PersistDataAfterExecution,
		DisallowConcurrentExecution: req.DisallowConcurrentExecution,
	}

	nextFire, err := h.sched.ScheduleJob(c.Request.Context(), job, trg)
	if err != nil {
		h.logError(c, "create job", err)
		writeError(c, "CreateJob", err)
		return
	}

	c.JSON(http.StatusCreated, scheduleJobResponse{
		jobResponse:  toJobResponse(job),
		Trigger:      toTriggerResponse(trg, trg.State()),
		NextFireTime: nextFire,
	})
}

// ListJobs handles GET /jobs?group=&prefix=.
func (h *Handler) ListJobs(c *gin.Context) {
	m := matcherFromQuery(c)
	keys, err := h.sched.GetJobKeys(c.Request.Context(), m)
	if err != nil {
		h.logError(c, "list jobs", err)
		writeError(c, "ListJobs", err)
		return
	}

	out := make([]gin.H, 0, len(keys))
	for _, k := range keys {
		out = append(out, gin.H{"group": k.Group, "name": k.Name})
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out})
}

// GetJob handles GET /jobs/:group/:name.
func (h *Handler) GetJob(c *gin.Context) {
	key := keyFromParams(c)
	job, ok, err := h.sched.GetJobDetail(c.Request.Context(), key)
	if err != nil {
		h.logError(c, "get job", err)
		writeError(c, "GetJob", err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, toJobResponse(job))
}

// DeleteJob handles DELETE /jobs/:group/:name.
func (h *Handler) DeleteJob(c *gin.Context) {
	key := keyFromParams(c)
	ok, err := h.sched.DeleteJob(c.Request.Context(), key)
	if err != nil {
		h.logError(c, "delete job", err)
		writeError(c, "DeleteJob", err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// PauseJob handles POST /jobs/:group/:name/pause.
func (h *Handler) PauseJob(c *gin.Context) {
	key := keyFromParams(c)
	if err := h.sched.PauseJob(c.Request.Context(), key); err != nil {
		h.logError(c, "pause job", err)
		writeError(c, "PauseJob", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResumeJob handles POST /jobs/:group/:name/resume.
func (h *Handler) ResumeJob(c *gin.Context) {
	key := keyFromParams(c)
	if err := h.sched.ResumeJob(c.Request.Context(), key); err != nil {
		h.logError(c, "resume job", err)
		writeError(c, "ResumeJob", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TriggerJob handles POST /jobs/:group/:name/trigger: fire the job once,
// immediately, bypassing the normal acquire/fire path.
func (h *Handler) TriggerJob(c *gin.Context) {
	key := keyFromParams(c)
	var req triggerJobRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if err := h.sched.TriggerJob(c.Request.Context(), key, req.Data); err != nil {
		h.logError(c, "trigger job", err)
		writeError(c, "TriggerJob", err)
		return
	}
	c.Status(http.StatusAccepted)
}

// ListTriggersOfJob handles GET /jobs/:group/:name/triggers.
func (h *Handler) ListTriggersOfJob(c *gin.Context) {
	key := keyFromParams(c)
	trgs, err := h.sched.GetTriggersOfJob(c.Request.Context(), key)
	if err != nil {
		h.logError(c, "list triggers of job", err)
		writeError(c, "ListTriggersOfJob", err)
		return
	}
	out := make([]triggerResponse, len(trgs))
	for i, trg := range trgs {
		out[i] = toTriggerResponse(trg, trg.State())
	}
	c.JSON(http.StatusOK, gin.H{"triggers": out})
}

// GetTrigger handles GET /triggers/:group/:name.
func (h *Handler) GetTrigger(c *gin.Context) {
	key := keyFromParams(c)
	trg, ok, err := h.sched.GetTrigger(c.Request.Context(), key)
	if err != nil {
		h.logError(c, "get trigger", err)
		writeError(c, "GetTrigger", err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "trigger not found"})
		return
	}
	c.JSON(http.StatusOK, toTriggerResponse(trg, trg.State()))
}

// DeleteTrigger handles DELETE /triggers/:group/:name.
func (h *Handler) DeleteTrigger(c *gin.Context) {
	key := keyFromParams(c)
	ok, err := h.sched.UnscheduleTrigger(c.Request.Context(), key)
	if err != nil {
		h.logError(c, "delete trigger", err)
		writeError(c, "DeleteTrigger", err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "trigger not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// PauseTrigger handles POST /triggers/:group/:name/pause.
func (h *Handler) PauseTrigger(c *gin.Context) {
	key := keyFromParams(c)
	if err := h.sched.PauseTrigger(c.Request.Context(), key); err != nil {
		h.logError(c, "pause trigger", err)
		writeError(c, "PauseTrigger", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResumeTrigger handles POST /triggers/:group/:name/resume.
func (h *Handler) ResumeTrigger(c *gin.Context) {
	key := keyFromParams(c)
	if err := h.sched.ResumeTrigger(c.Request.Context(), key); err != nil {
		h.logError(c, "resume trigger", err)
		writeError(c, "ResumeTrigger", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListExecuting handles GET /executing.
func (h *Handler) ListExecuting(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"executing": h.sched.GetCurrentlyExecutingJobs()})
}

// Interrupt handles POST /executing/:fireInstanceId/interrupt.
func (h *Handler) Interrupt(c *gin.Context) {
	id := c.Param("fireInstanceId")
	if !h.sched.InterruptFireInstance(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no in-flight run with that fire instance id"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) logError(c *gin.Context, op string, err error) {
	var se *facade.SchedulerError
	if errors.As(err, &se) && se.Kind == facade.KindNotFound {
		return
	}
	h.logger.ErrorContext(c.Request.Context(), op, "error", err)
}

func keyFromParams(c *gin.Context) domain.Key {
	return domain.NewKey(c.Param("group"), c.Param("name"))
}

func matcherFromQuery(c *gin.Context) store.Matcher {
	if prefix := c.Query("prefix"); prefix != "" {
		return store.MatchGroupStartsWith(prefix)
	}
	if group := c.Query("group"); group != "" {
		return store.MatchGroupEquals(group)
	}
	return store.MatchAnyGroup()
}
