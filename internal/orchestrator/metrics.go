package orchestrator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report orchestration activity.
type Metrics struct {
	runDuration    *prometheus.HistogramVec
	runFailures    *prometheus.CounterVec
	sessionOutcome *prometheus.CounterVec
	runsActive     prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry. The collectors are created only once to
// avoid duplicate registration panics when the orchestrator is instantiated
// multiple times (e.g. in unit tests).
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Supply a fresh registry when unique metric names are required (tests). Any
// registration error other than double registration panics, surfacing
// configuration bugs early.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "acp_remote",
			Subsystem: "orchestrator",
			Name:      "run_duration_seconds",
			Help:      "Duration of one prompt orchestration run.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	runFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "acp_remote",
			Subsystem: "orchestrator",
			Name:      "run_failures_total",
			Help:      "Total orchestration runs that ended in a failed result.",
		},
		[]string{"reason"},
	)
	sessionOutcome := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "acp_remote",
			Subsystem: "orchestrator",
			Name:      "session_resolutions_total",
			Help:      "How agent sessions were resolved: reused, resumed, or created.",
		},
		[]string{"outcome"},
	)
	runsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "acp_remote",
			Subsystem: "orchestrator",
			Name:      "runs_active",
			Help:      "Number of orchestration runs currently in flight.",
		},
	)

	collectors := []prometheus.Collector{runDuration, runFailures, sessionOutcome, runsActive}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch target := collector.(type) {
				case *prometheus.HistogramVec:
					runDuration = already.ExistingCollector.(*prometheus.HistogramVec)
				case *prometheus.CounterVec:
					switch target { //nolint:exhaustive
					case runFailures:
						runFailures = already.ExistingCollector.(*prometheus.CounterVec)
					case sessionOutcome:
						sessionOutcome = already.ExistingCollector.(*prometheus.CounterVec)
					}
				case prometheus.Gauge:
					runsActive = already.ExistingCollector.(prometheus.Gauge)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		runDuration:    runDuration,
		runFailures:    runFailures,
		sessionOutcome: sessionOutcome,
		runsActive:     runsActive,
	}
}

// ObserveRunDuration records a finished run with its status label.
func (m *Metrics) ObserveRunDuration(status string, duration time.Duration) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// IncRunFailure increments the failure counter for the given reason.
func (m *Metrics) IncRunFailure(reason string) {
	if m == nil || m.runFailures == nil {
		return
	}
	m.runFailures.WithLabelValues(reason).Inc()
}

// IncSessionOutcome counts one session resolution outcome.
func (m *Metrics) IncSessionOutcome(outcome string) {
	if m == nil || m.sessionOutcome == nil {
		return
	}
	m.sessionOutcome.WithLabelValues(outcome).Inc()
}

// IncActiveRuns marks a run as in flight.
func (m *Metrics) IncActiveRuns() {
	if m == nil || m.runsActive == nil {
		return
	}
	m.runsActive.Inc()
}

// DecActiveRuns marks a run as finished.
func (m *Metrics) DecActiveRuns() {
	if m == nil || m.runsActive == nil {
		return
	}
	m.runsActive.Dec()
}
