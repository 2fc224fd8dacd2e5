// Package metrics exposes Prometheus instruments for tree building and the
// prediction client.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Build outcomes used as the "outcome" label.
const (
	OutcomeOK        = "ok"
	OutcomeMalformed = "malformed"
	OutcomeCycle     = "cycle"
	OutcomeUpstream  = "upstream_failed"
	OutcomeError     = "error"
)

// Collector holds the application's metrics on a private registry, so several
// collectors can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	TreesBuilt    *prometheus.CounterVec
	BuildDuration prometheus.Histogram
	TreeNodes     prometheus.Histogram
	RuleMisses    prometheus.Counter
	RuleLookups   *prometheus.CounterVec
	UpstreamPolls prometheus.Counter
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

// New creates and registers the collector's instruments under namespace.
func New(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		TreesBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trees_built_total",
			Help:      "Metabolite tree builds by outcome.",
		}, []string{"outcome"}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tree_build_duration_seconds",
			Help:      "Time spent constructing and assembling a metabolite tree.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		TreeNodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tree_nodes",
			Help:      "Number of nodes in assembled metabolite trees.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		RuleMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_table_misses_total",
			Help:      "Links whose rule code was not found in the rule table.",
		}),
		RuleLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaction_rule_lookups_total",
			Help:      "Reaction rule-name lookups against the prediction service.",
		}, []string{"result"}),
		UpstreamPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pathway_polls_total",
			Help:      "Pathway status polls issued to the prediction service.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	c.registry.MustRegister(
		c.TreesBuilt,
		c.BuildDuration,
		c.TreeNodes,
		c.RuleMisses,
		c.RuleLookups,
		c.UpstreamPolls,
		c.HTTPRequests,
		c.HTTPDuration,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveBuild records one finished tree build. Safe on a nil collector.
func (c *Collector) ObserveBuild(outcome string, elapsed time.Duration, nodes, ruleMisses int) {
	if c == nil {
		return
	}
	c.TreesBuilt.WithLabelValues(outcome).Inc()
	c.BuildDuration.Observe(elapsed.Seconds())
	if outcome == OutcomeOK {
		c.TreeNodes.Observe(float64(nodes))
	}
	c.RuleMisses.Add(float64(ruleMisses))
}

// ObserveRuleLookup counts a reaction rule lookup; result is "hit", "empty" or "error".
func (c *Collector) ObserveRuleLookup(result string) {
	if c == nil {
		return
	}
	c.RuleLookups.WithLabelValues(result).Inc()
}

// ObservePoll counts a pathway status poll.
func (c *Collector) ObservePoll() {
	if c == nil {
		return
	}
	c.UpstreamPolls.Inc()
}

// ObserveHTTP records a served request.
func (c *Collector) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
