package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds pipeline Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	Runs          *prometheus.CounterVec
	Resumes       prometheus.Counter
	ActiveRuns    prometheus.Gauge
	StageDuration *prometheus.HistogramVec
	Decisions     *prometheus.CounterVec
	Score         prometheus.Histogram
}

// NewMetrics registers the pipeline collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Runs finished, by terminal status",
		}, []string{"status"}),
		Resumes: f.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_resumes_total",
			Help: "Runs resumed after a review resolution",
		}),
		ActiveRuns: f.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_active_runs",
			Help: "Runs currently executing",
		}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_mapping_decisions_total",
			Help: "Mapping decisions, by outcome",
		}, []string{"outcome"}),
		Score: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_similarity_score",
			Help:    "Validation similarity score per run",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
}

func (m *Metrics) observeStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) finish(r *Result) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(string(r.Status)).Inc()
	if r.Score != nil {
		m.Score.Observe(*r.Score)
	}
}

func (m *Metrics) decisions(accepted, queued, rejected int) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues("accepted").Add(float64(accepted))
	m.Decisions.WithLabelValues("queued-for-review").Add(float64(queued))
	m.Decisions.WithLabelValues("rejected").Add(float64(rejected))
}

func (m *Metrics) start() {
	if m != nil {
		m.ActiveRuns.Inc()
	}
}

func (m *Metrics) done() {
	if m != nil {
		m.ActiveRuns.Dec()
	}
}

func (m *Metrics) resumed() {
	if m != nil {
		m.Resumes.Inc()
	}
}
