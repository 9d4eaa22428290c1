package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Eval outcomes used as the "outcome" label.
const (
	OutcomeOK        = "ok"
	OutcomeException = "exception"
	OutcomeAborted   = "aborted"
	OutcomeExhausted = "exhausted"
	OutcomeError     = "error"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scopectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scopectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	evalCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scopectl",
			Subsystem: "eval",
			Name:      "calls_total",
			Help:      "Script evaluations by outcome.",
		},
		[]string{"outcome"},
	)
	evalRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scopectl",
			Subsystem: "eval",
			Name:      "retries_total",
			Help:      "Eval attempts repeated after a missing response.",
		},
	)
	evalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scopectl",
			Subsystem: "eval",
			Name:      "duration_seconds",
			Help:      "Wall time of one evaluation including retries.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scopectl",
			Subsystem: "events",
			Name:      "received_total",
			Help:      "Pushed events by command and whether they applied.",
		},
		[]string{"command", "applied"},
	)
	runtimes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scopectl",
			Subsystem: "registry",
			Name:      "runtimes",
			Help:      "Runtimes currently tracked by the registry.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, evalCalls, evalRetries, evalDuration, events, runtimes)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordEval(outcome string, duration time.Duration) {
	RegisterMetrics()
	evalCalls.WithLabelValues(outcome).Inc()
	evalDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordEvalRetry() {
	RegisterMetrics()
	evalRetries.Inc()
}

func RecordEvent(command string, applied bool) {
	RegisterMetrics()
	events.WithLabelValues(command, strconv.FormatBool(applied)).Inc()
}

func SetRuntimeCount(n int) {
	RegisterMetrics()
	runtimes.Set(float64(n))
}
