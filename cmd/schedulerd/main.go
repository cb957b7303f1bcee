// Command schedulerd runs one scheduler instance: it loads config, wires a
// job store (in-memory or Postgres, per STORE_BACKEND), builds the
// internal/facade.Scheduler, starts it, and serves the facade/httpapi
// router (plus /healthz, /readyz) and a separate /metrics server until
// told to shut down. Grounded on cmd/server/main.go's
// signal.NotifyContext + goroutine-per-HTTP-server shutdown shape,
// generalized from the teacher's webhook-delivery API process to a
// scheduler daemon.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	lj "gopkg.in/natefinch/lumberjack.v2"

	"github.com/cug2104518294/quartz-explained/config"
	"github.com/cug2104518294/quartz-explained/internal/dispatcher"
	"github.com/cug2104518294/quartz-explained/internal/facade"
	"github.com/cug2104518294/quartz-explained/internal/facade/httpapi"
	"github.com/cug2104518294/quartz-explained/internal/health"
	"github.com/cug2104518294/quartz-explained/internal/infrastructure/postgres"
	applog "github.com/cug2104518294/quartz-explained/internal/log"
	"github.com/cug2104518294/quartz-explained/internal/metrics"
	"github.com/cug2104518294/quartz-explained/internal/registry"
	"github.com/cug2104518294/quartz-explained/internal/store"
	"github.com/cug2104518294/quartz-explained/internal/store/memstore"
	"github.com/cug2104518294/quartz-explained/internal/store/pgstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobStore, checker, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeStore()

	instanceID := cfg.SchedulerInstanceID
	if instanceID == "" || instanceID == "AUTO" {
		instanceID = uuid.NewString()
	}

	sched, err := facade.New(facade.Config{
		Name:       cfg.SchedulerInstanceName,
		InstanceID: instanceID,
		Store:      jobStore,
		PoolSize:   cfg.ThreadCount,
		Dispatcher: dispatcher.Config{
			IdleWaitTime:    cfg.IdleWaitTime(),
			MaxBatchSize:    cfg.BatchTriggerAcquisitionMaxCount,
			BatchTimeWindow: cfg.BatchTimeWindow(),
		},
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("facade: %v", err)
	}
	if err := registry.Default().Register(sched); err != nil {
		log.Fatalf("registry: %v", err)
	}
	defer registry.Default().Remove(sched.SchedulerName())

	// A real deployment calls sched.SetJobFactory(...) here with the
	// jobs.Factory that resolves its own JobDetail.JobClass values before
	// Start; schedulerd has none of its own, so fires simply fail fast
	// with the façade's default "no job factory registered" error until
	// one is installed.

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("scheduler start: %v", err)
	}
	logger.Info("scheduler started", "name", sched.SchedulerName(), "instance_id", sched.SchedulerInstanceID())

	metrics.Register()
	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)

	apiRouter := httpapi.NewRouter(sched, logger, cfg.ClerkJWKSURL, []byte(cfg.JWTSecret))
	apiRouter.GET("/healthz", func(c *gin.Context) {
		writeHealth(c.Writer, checker.Liveness(c.Request.Context()))
	})
	apiRouter.GET("/readyz", func(c *gin.Context) {
		result := checker.Readiness(c.Request.Context())
		status := http.StatusOK
		if result.Status != "up" {
			status = http.StatusServiceUnavailable
		}
		c.Writer.WriteHeader(status)
		writeHealth(c.Writer, result)
	})
	apiSrv := &http.Server{Addr: ":" + cfg.Port, Handler: apiRouter}

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()
	go func() {
		logger.Info("api server started", "port", cfg.Port)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	sched.Shutdown(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown", "error", err)
	}
}

// buildStore wires store.JobStore per STORE_BACKEND; the returned closer
// is a no-op for the in-memory store.
func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.JobStore, *health.Checker, func(), error) {
	if cfg.StoreBackend == "postgres" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		pgStore, err := pgstore.New(ctx, pool, 60*time.Second)
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		if err := pgStore.Initialize(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)
		return pgStore, checker, pool.Close, nil
	}

	memStore := memstore.New(60 * time.Second)
	if err := memStore.Initialize(ctx); err != nil {
		return nil, nil, nil, err
	}
	checker := health.NewChecker(alwaysUpPinger{}, logger, prometheus.DefaultRegisterer)
	return memStore, checker, func() {}, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler
	if cfg.Env == "local" {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      cfg.SlogLevel(),
			TimeFormat: time.Kitchen,
		})
	} else {
		var out io.Writer = os.Stdout
		if cfg.LogFile != "" {
			out = io.MultiWriter(os.Stdout, &lj.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    cfg.LogMaxSizeMB,
				MaxBackups: cfg.LogMaxBackups,
				MaxAge:     cfg.LogMaxAgeDays,
			})
		}
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	}
	return slog.New(applog.NewContextHandler(handler))
}

func writeHealth(w http.ResponseWriter, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// alwaysUpPinger satisfies health.Pinger for the in-memory store, which
// has no external dependency to check.
type alwaysUpPinger struct{}

func (alwaysUpPinger) Ping(context.Context) error { return nil }
