// Package httpjob is a concrete jobs.Job that invokes a remote HTTP
// endpoint — this module's built-in job class, generalizing the teacher's
// internal/scheduler.Executor (a single hardcoded webhook-caller) into a
// reusable Job driven entirely by its JobDetail's data map.
package httpjob

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cug2104518294/quartz-explained/internal/domain"
	"github.com/cug2104518294/quartz-explained/internal/fireinstance"
	"github.com/cug2104518294/quartz-explained/internal/jobs"
)

// ClassName is the JobDetail.JobClass string this package's Factory
// resolves.
const ClassName = "core.HTTPJob"

// Data map keys consumed from ExecutionContext.MergedData.
const (
	DataMethod  = "http.method"
	DataURL     = "http.url"
	DataBody    = "http.body"
	DataHeaders = "http.headers" // map[string]string
	DataTimeout = "http.timeoutSeconds"
)

// Job calls a remote HTTP endpoint described by its merged data map.
// Retries and backoff are the trigger/misfire layer's concern, not this
// job's — it bounds the request by http.timeoutSeconds (default 30) and
// reports success/failure for exactly one fire.
type Job struct {
	client *http.Client
	logger *slog.Logger
}

func New(logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		client: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		logger: logger.With("component", "httpjob"),
	}
}

func (j *Job) Execute(ctx context.Context, jobCtx *jobs.ExecutionContext) error {
	start := time.Now()

	method, _ := jobCtx.MergedData[DataMethod].(string)
	if method == "" {
		method = http.MethodPost
	}
	url, _ := jobCtx.MergedData[DataURL].(string)
	if url == "" {
		return fmt.Errorf("httpjob: missing %q in job data", DataURL)
	}

	timeoutSeconds, _ := jobCtx.MergedData[DataTimeout].(int)
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	var bodyReader io.Reader
	if body, ok := jobCtx.MergedData[DataBody].(string); ok && body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("httpjob: build request: %w", err)
	}
	if headers, ok := jobCtx.MergedData[DataHeaders].(map[string]string); ok {
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}
	req.Header.Set("X-Fire-Instance-Id", jobCtx.FireInstanceID)
	reqCtx = fireinstance.WithFireInstanceID(reqCtx, jobCtx.FireInstanceID)

	j.logger.InfoContext(reqCtx, "sending request",
		"job_key", jobCtx.JobKey.String(),
		"trigger_key", jobCtx.TriggerKey.String(),
		"method", method,
		"url", url,
	)

	resp, err := j.client.Do(req)
	if err != nil {
		j.logger.ErrorContext(reqCtx, "request failed",
			"job_key", jobCtx.JobKey.String(),
			"error", err,
			"duration", time.Since(start),
		)
		return fmt.Errorf("httpjob: do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	duration := time.Since(start)
	j.logger.InfoContext(reqCtx, "received response",
		"job_key", jobCtx.JobKey.String(),
		"status", resp.StatusCode,
		"duration", duration,
	)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("httpjob: unexpected status code %d", resp.StatusCode)
	}
	return nil
}

// Factory builds a jobs.Factory that resolves ClassName to a shared Job
// instance, erroring on any other job class.
func Factory(logger *slog.Logger) jobs.FactoryFunc {
	j := New(logger)
	return func(detail domain.JobDetail) (jobs.Job, error) {
		if detail.JobClass != ClassName {
			return nil, fmt.Errorf("httpjob: factory does not handle job class %q", detail.JobClass)
		}
		return j, nil
	}
}

var _ jobs.Job = (*Job)(nil)
