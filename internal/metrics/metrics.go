package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Dispatcher loop metrics (internal/dispatcher)

	AcquireLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "acquire_next_triggers_duration_seconds",
		Help:      "Duration of one AcquireNextTriggers store call.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	TriggersFiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "triggers_fired_total",
		Help:      "Total triggers handed to the worker pool by the dispatcher loop.",
	})

	BatchAbandonedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "batch_abandoned_total",
		Help:      "Total acquired batches released early because an earlier-firing trigger was signalled.",
	})

	DispatcherBackoffFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "dispatcher_backoff_failures_total",
		Help:      "Total consecutive AcquireNextTriggers failures that triggered a backoff delay.",
	})

	// Job run shell metrics (internal/jobrun)

	JobExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "job_execution_duration_seconds",
		Help:      "Duration of one job execution, by job class.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"job_class"})

	JobsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "jobs_completed_total",
		Help:      "Total job executions finished, by completion instruction.",
	}, []string{"instruction"})

	JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "jobs_in_flight",
		Help:      "Number of job executions currently running.",
	})

	// Worker pool metrics (internal/workerpool)

	WorkerPoolCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "worker_pool_capacity",
		Help:      "Configured worker pool size.",
	})

	WorkerPoolInUse = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "worker_pool_in_use",
		Help:      "Worker pool slots currently occupied.",
	})

	// Scheduler lifecycle (internal/facade)

	SchedulerStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "instance_start_time_seconds",
		Help:      "Unix timestamp when this scheduler instance started.",
	})

	SchedulerShutdownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "instance_shutdowns_total",
		Help:      "Number of times this scheduler instance has shut down.",
	})

	// HTTP surface metrics (internal/facade/httpapi)

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		AcquireLatency,
		TriggersFiredTotal,
		BatchAbandonedTotal,
		DispatcherBackoffFailuresTotal,
		JobExecutionDuration,
		JobsCompletedTotal,
		JobsInFlight,
		WorkerPoolCapacity,
		WorkerPoolInUse,
		SchedulerStartTime,
		SchedulerShutdownsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
