package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/model"
	"github.com/tss-calculator/sitepipe/pkg/sitepipe/application/service"
)

const namespace = "sitepipe"

// PrometheusRecorder keeps pipeline metrics on a private registry and writes
// them to a textfile collector file on Flush.
type PrometheusRecorder struct {
	registry      *prom.Registry
	textfile      string
	phaseDuration *prom.HistogramVec
	phaseResults  *prom.CounterVec
	runs          *prom.CounterVec
	toolCache     *prom.CounterVec
}

var _ service.MetricsRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder registers the pipeline collectors. An empty textfile
// makes Flush a no-op.
func NewPrometheusRecorder(textfile string) *PrometheusRecorder {
	r := &PrometheusRecorder{
		registry: prom.NewRegistry(),
		textfile: textfile,
		phaseDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of pipeline phases",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"phase"}),
		phaseResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "phase_results_total",
			Help:      "Pipeline phase results by status",
		}, []string{"phase", "status"}),
		runs: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome",
		}, []string{"outcome"}),
		toolCache: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "tool_cache_total",
			Help:      "Toolchain cache lookups by result",
		}, []string{"result"}),
	}
	r.registry.MustRegister(r.phaseDuration, r.phaseResults, r.runs, r.toolCache)
	return r
}

func (r *PrometheusRecorder) Registry() *prom.Registry {
	return r.registry
}

func (r *PrometheusRecorder) ObservePhase(phase model.Phase, status model.PhaseStatus, d time.Duration) {
	if status != model.PhaseSkipped {
		r.phaseDuration.WithLabelValues(string(phase)).Observe(d.Seconds())
	}
	r.phaseResults.WithLabelValues(string(phase), string(status)).Inc()
}

func (r *PrometheusRecorder) IncRun(outcome model.Outcome) {
	r.runs.WithLabelValues(string(outcome)).Inc()
}

func (r *PrometheusRecorder) AddCacheResults(hits, misses int) {
	r.toolCache.WithLabelValues("hit").Add(float64(hits))
	r.toolCache.WithLabelValues("miss").Add(float64(misses))
}

func (r *PrometheusRecorder) Flush() error {
	if r.textfile == "" {
		return nil
	}
	return prom.WriteToTextfile(r.textfile, r.registry)
}
