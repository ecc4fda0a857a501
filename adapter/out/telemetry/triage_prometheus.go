// Package telemetry exports triage engine metrics to Prometheus.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"triage_server/core/agent/analytics"
	"triage_server/core/domain"
)

const namespace = "triage"

var (
	_ analytics.Observer        = (*PrometheusObserver)(nil)
	_ analytics.WeightsObserver = (*PrometheusObserver)(nil)
)

// PrometheusObserver records decisions, feedback and learned weights. Labels
// never carry user or email IDs.
type PrometheusObserver struct {
	registry *prometheus.Registry

	decisions  *prometheus.CounterVec
	priority   prometheus.Histogram
	confidence prometheus.Histogram
	feedback   *prometheus.CounterVec
	overrides  prometheus.Counter
	weights    *prometheus.GaugeVec
}

// NewPrometheusObserver registers the triage collectors on a fresh registry
// together with the Go runtime and process collectors.
func NewPrometheusObserver() *PrometheusObserver {
	scoreBuckets := prometheus.LinearBuckets(10, 10, 10)

	o := &PrometheusObserver{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Emails scored, by notification decision.",
		}, []string{"decision"}),
		priority: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "priority_score",
			Help:      "Distribution of priority scores.",
			Buckets:   scoreBuckets,
		}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confidence_score",
			Help:      "Distribution of confidence scores.",
			Buckets:   scoreBuckets,
		}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_total",
			Help:      "Accepted user feedback, by action.",
		}, []string{"action"}),
		overrides: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_overrides_total",
			Help:      "Decisions reclassified by the user.",
		}),
		weights: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "learned_weight",
			Help:      "Factor weights after the most recent learning update.",
		}, []string{"factor"}),
	}

	o.registry.MustRegister(
		o.decisions, o.priority, o.confidence, o.feedback, o.overrides, o.weights,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, d := range domain.AllDecisions {
		o.decisions.WithLabelValues(string(d))
	}
	return o
}

func (o *PrometheusObserver) ObserveDecision(_ string, analysis *domain.EmailAnalysis) {
	o.decisions.WithLabelValues(string(analysis.Decision)).Inc()
	o.priority.Observe(float64(analysis.PriorityScore))
	o.confidence.Observe(float64(analysis.ConfidenceScore))
}

func (o *PrometheusObserver) ObserveFeedback(_ string, fb *domain.UserFeedback) {
	o.feedback.WithLabelValues(string(fb.Action)).Inc()
	if fb.Action == domain.FeedbackReclassified {
		o.overrides.Inc()
	}
}

func (o *PrometheusObserver) ObserveWeights(_ string, w domain.WeightVector) {
	for _, f := range domain.AllFactors {
		o.weights.WithLabelValues(string(f)).Set(w.Get(f))
	}
}

// Registry exposes the underlying registry for extra collectors.
func (o *PrometheusObserver) Registry() *prometheus.Registry {
	return o.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (o *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{Registry: o.registry})
}
