package metrics

import (
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"

	coremetrics "github.com/kilianp07/gridmpc/core/metrics"
)

// SentryConfig selects the Sentry project failed steps are reported to.
type SentryConfig struct {
	DSN          string        `json:"dsn"`
	Environment  string        `json:"environment"`
	Release      string        `json:"release"`
	FlushTimeout time.Duration `json:"flush_timeout"`
	// transport replaces the HTTP transport in tests.
	transport sentry.Transport
}

// SentrySink reports steps that produced no action. Successful steps are
// ignored.
type SentrySink struct {
	hub   *sentry.Hub
	flush time.Duration
}

// NewSentrySink creates a sink on its own hub. An empty DSN yields a NopSink.
func NewSentrySink(cfg SentryConfig) (coremetrics.MetricsSink, error) {
	if cfg.DSN == "" {
		return coremetrics.NopSink{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		Transport:   cfg.transport,
	})
	if err != nil {
		return nil, err
	}
	flush := cfg.FlushTimeout
	if flush <= 0 {
		flush = 2 * time.Second
	}
	return &SentrySink{hub: sentry.NewHub(client, sentry.NewScope()), flush: flush}, nil
}

// RecordStep captures the step error tagged with the step identifiers.
func (s *SentrySink) RecordStep(ev coremetrics.StepEvent) error {
	if !ev.Failed() {
		return nil
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("step_id", ev.StepID)
		scope.SetTag("iteration", strconv.Itoa(ev.Iteration))
		scope.SetTag("outcome", ev.Outcome())
		scope.SetExtra("horizon_start", ev.Time.UTC().Format(time.RFC3339))
		s.hub.CaptureException(ev.Err)
	})
	return nil
}

// Close flushes buffered events.
func (s *SentrySink) Close() { s.hub.Flush(s.flush) }
