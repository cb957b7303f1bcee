package httpapi

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/cug2104518294/quartz-explained/internal/facade"
	"github.com/cug2104518294/quartz-explained/internal/facade/httpapi/middleware"
)

// NewRouter builds the full gin engine for one scheduler's HTTP surface.
// jwksURL takes precedence over hmacKey when non-empty (spec.md's
// Clerk-or-local-secret auth split, config.Config's ClerkJWKSURL/JWTSecret).
func NewRouter(sched *facade.Scheduler, logger *slog.Logger, jwksURL string, hmacKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	h := NewHandler(sched, logger)
	authMW := middleware.Auth(jwksURL, hmacKey)

	jobs := r.Group("/jobs", authMW)
	jobs.POST("", h.CreateJob)
	jobs.GET("", h.ListJobs)
	jobs.GET("/:group/:name", h.GetJob)
	jobs.DELETE("/:group/:name", h.DeleteJob)
	jobs.POST("/:group/:name/pause", h.PauseJob)
	jobs.POST("/:group/:name/resume", h.ResumeJob)
	jobs.POST("/:group/:name/trigger", h.TriggerJob)
	jobs.GET("/:group/:name/triggers", h.ListTriggersOfJob)

	triggers := r.Group("/triggers", authMW)
	triggers.GET("/:group/:name", h.GetTrigger)
	triggers.DELETE("/:group/:name", h.DeleteTrigger)
	triggers.POST("/:group/:name/pause", h.PauseTrigger)
	triggers.POST("/:group/:name/resume", h.ResumeTrigger)

	executing := r.Group("/executing", authMW)
	executing.GET("", h.ListExecuting)
	executing.POST("/:fireInstanceId/interrupt", h.Interrupt)

	return r
}
