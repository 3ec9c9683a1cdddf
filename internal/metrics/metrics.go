// Package metrics exposes build telemetry as Prometheus metrics. Only
// watch mode serves them; one-shot builds use the recorder without a
// listener.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements engine.Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry      *prom.Registry
	buildDuration prom.Histogram
	buildOutcome  *prom.CounterVec
	unitResults   *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the build metrics on a
// fresh registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prom.NewRegistry()
	pr := &PrometheusRecorder{
		registry: reg,
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "cbuild",
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "cbuild",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		unitResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "cbuild",
			Name:      "unit_results_total",
			Help:      "Per-unit compile results (compiled, reused, failed, canceled)",
		}, []string{"result"}),
	}
	reg.MustRegister(pr.buildDuration, pr.buildOutcome, pr.unitResults)
	reg.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	return pr
}

// ObserveBuild records one completed build.
func (pr *PrometheusRecorder) ObserveBuild(outcome string, d time.Duration) {
	pr.buildOutcome.WithLabelValues(outcome).Inc()
	pr.buildDuration.Observe(d.Seconds())
}

// IncUnitResult records one unit outcome.
func (pr *PrometheusRecorder) IncUnitResult(status string) {
	pr.unitResults.WithLabelValues(status).Inc()
}

// Handler returns the /metrics HTTP handler for this recorder's registry.
func (pr *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(pr.registry, promhttp.HandlerOpts{})
}

// Serve starts a blocking HTTP listener exposing /metrics on addr.
func (pr *PrometheusRecorder) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", pr.Handler())
	return http.ListenAndServe(addr, mux)
}
