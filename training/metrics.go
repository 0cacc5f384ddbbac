package training

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the training loop.
type Metrics struct {
	ScenariosGenerated prometheus.Counter
	Determinations     prometheus.Counter
	GradingOutcomes    *prometheus.CounterVec
	CorrectionsStored  prometheus.Counter
	SessionAccuracy    prometheus.Gauge
	DetermineDuration  prometheus.Histogram
}

// NewMetrics registers the training collectors with the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		ScenariosGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "regtrain_scenarios_generated_total",
			Help: "Total number of training scenarios generated",
		}),
		Determinations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "regtrain_determinations_total",
			Help: "Total number of determinations produced",
		}),
		GradingOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "regtrain_grading_outcomes_total",
			Help: "Graded test results by outcome",
		}, []string{"outcome"}),
		CorrectionsStored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "regtrain_corrections_stored_total",
			Help: "Human corrections written to the knowledge store",
		}),
		SessionAccuracy: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "regtrain_session_accuracy_percent",
			Help: "Accuracy of the current training session",
		}),
		DetermineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "regtrain_determination_duration_seconds",
			Help:    "Latency of determination calls",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveResult updates the grading collectors for one recorded result.
func (m *Metrics) ObserveResult(tr *TestResult, session *Session) {
	if m == nil {
		return
	}
	m.GradingOutcomes.WithLabelValues(string(tr.Outcome())).Inc()
	if session != nil && session.Accuracy != nil {
		m.SessionAccuracy.Set(*session.Accuracy)
	}
}
