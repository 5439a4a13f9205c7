// Package metrics exports session activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/grammarctl/internal/session"
)

const namespace = "grammarctl"

// Collector is a session.Observer that maintains Prometheus metrics.
//
// It registers on its own registry so several collectors can coexist in one
// process (tests, multiple nodes).
type Collector struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	faults        *prometheus.CounterVec
	recognized    *prometheus.CounterVec
	confidence    prometheus.Histogram
	state         *prometheus.GaugeVec
	skippedGroups prometheus.Gauge
}

var _ session.Observer = (*Collector)(nil)

// NewCollector creates a collector with all metrics registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by kind.",
		}, []string{"kind"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Reported faults by code.",
		}, []string{"code"}),
		recognized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognitions_total",
			Help:      "Recognized utterances, split by whether confidence met the threshold.",
		}, []string{"accepted"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recognition_confidence",
			Help:      "Confidence of recognized utterances.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "1 for the current session state, 0 otherwise.",
		}, []string{"state"}),
		skippedGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grammar_skipped_groups",
			Help:      "Groups skipped while building the loaded grammar.",
		}),
	}

	c.registry.MustRegister(
		c.events,
		c.faults,
		c.recognized,
		c.confidence,
		c.state,
		c.skippedGroups,
		collectors.NewGoCollector(),
	)
	c.setState(session.StateNoEngine)
	return c
}

// Observe implements session.Observer.
func (c *Collector) Observe(e session.Event) {
	c.events.WithLabelValues(string(e.Kind)).Inc()
	c.setState(e.State)

	switch e.Kind {
	case session.EventRecognized:
		accepted := "false"
		if e.Accepted {
			accepted = "true"
		}
		c.recognized.WithLabelValues(accepted).Inc()
		c.confidence.Observe(e.Confidence)
	case session.EventGrammarLoaded:
		c.skippedGroups.Set(float64(e.Skipped))
	case session.EventGrammarUnloaded, session.EventDisposed:
		c.skippedGroups.Set(0)
	}

	if e.Code != "" {
		c.faults.WithLabelValues(string(e.Code)).Inc()
	}
}

func (c *Collector) setState(current session.State) {
	for _, s := range session.States() {
		v := 0.0
		if s == current {
			v = 1
		}
		c.state.WithLabelValues(s.String()).Set(v)
	}
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
