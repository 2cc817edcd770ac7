package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for the generation pipeline and its
// HTTP front. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	requestsTotal prometheus.Counter
	errorsTotal   prometheus.Counter
	runsTotal     *prometheus.CounterVec
	stageSeconds  *prometheus.HistogramVec
	planDefaults  prometheus.Counter
	runInFlight   prometheus.Gauge
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "autotok_http_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "autotok_http_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autotok_runs_total",
		Help: "Pipeline runs by result",
	}, []string{"result"})
	stageSeconds := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autotok_stage_duration_seconds",
		Help:    "Time spent in each pipeline stage",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})
	planDefaults := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "autotok_plan_defaults_total",
		Help: "Content plans where at least one field fell back to its default",
	})
	runInFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "autotok_run_in_flight",
		Help: "1 while a pipeline run is executing",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		runsTotal,
		stageSeconds,
		planDefaults,
		runInFlight,
	)

	return &Metrics{
		registry:      registry,
		requestsTotal: requestsTotal,
		errorsTotal:   errorsTotal,
		runsTotal:     runsTotal,
		stageSeconds:  stageSeconds,
		planDefaults:  planDefaults,
		runInFlight:   runInFlight,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m != nil {
		m.requestsTotal.Inc()
	}
}

// IncErrors increments the HTTP error counter.
func (m *Metrics) IncErrors() {
	if m != nil {
		m.errorsTotal.Inc()
	}
}

// ObserveRun counts a finished run.
func (m *Metrics) ObserveRun(ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.runsTotal.WithLabelValues(result).Inc()
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.stageSeconds.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// IncPlanDefaults counts a plan that used default values.
func (m *Metrics) IncPlanDefaults() {
	if m != nil {
		m.planDefaults.Inc()
	}
}

// SetInFlight toggles the in-flight gauge.
func (m *Metrics) SetInFlight(running bool) {
	if m == nil {
		return
	}
	if running {
		m.runInFlight.Set(1)
	} else {
		m.runInFlight.Set(0)
	}
}

// Handler returns an http.Handler that serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
