// Package metrics records Prometheus metrics for test runs, watch ticks,
// agent invocations and state notifications.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the redgreen collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	watchTicks    *prometheus.CounterVec
	agentCalls    *prometheus.CounterVec
	notifications prometheus.Counter
}

// New registers the collectors with reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redgreen_runs_total",
				Help: "Completed test runs by final status",
			},
			[]string{"status"},
		),
		runDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "redgreen_run_duration_seconds",
				Help:    "Wall time of test runs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		watchTicks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redgreen_watch_ticks_total",
				Help: "Watch timer expirations by outcome (run or skipped)",
			},
			[]string{"outcome"},
		),
		agentCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redgreen_agent_invocations_total",
				Help: "Agent CLI invocations by mode (stream or run) and outcome",
			},
			[]string{"mode", "outcome"},
		),
		notifications: f.NewCounter(
			prometheus.CounterOpts{
				Name: "redgreen_state_notifications_total",
				Help: "State change notifications delivered to the subscriber",
			},
		),
	}
}

// ObserveRun records a finished run.
func (r *Recorder) ObserveRun(status string, d time.Duration) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(status).Inc()
	r.runDuration.Observe(d.Seconds())
}

// WatchTick records one watch timer expiration.
func (r *Recorder) WatchTick(ran bool) {
	if r == nil {
		return
	}
	outcome := "skipped"
	if ran {
		outcome = "run"
	}
	r.watchTicks.WithLabelValues(outcome).Inc()
}

// AgentInvocation records one agent process that has finished.
func (r *Recorder) AgentInvocation(mode string, err error) {
	if r == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.agentCalls.WithLabelValues(mode, outcome).Inc()
}

// Notifications returns the state notification counter, or nil for a nil
// recorder.
func (r *Recorder) Notifications() prometheus.Counter {
	if r == nil {
		return nil
	}
	return r.notifications
}
