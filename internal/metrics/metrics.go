// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for API latency. LLM completions can run for
// minutes, hence the long tail.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120}

// Route labels for requests the gateway answers itself.
const (
	RouteHomepage = "homepage"
	RouteStatic   = "static"
	RouteHealthz  = "healthz"
	RouteStatus   = "status"
	RouteMetrics  = "metrics"
	RouteOther    = "other"
)

// Metrics holds all Prometheus metric collectors for the gateway.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec
	UpstreamErrors    *prometheus.CounterVec

	services    map[string]bool
	metricsPath string
}

// New creates a Metrics instance with a custom registry and all collectors registered.
// services bounds the route label; metricsPath is the scrape endpoint, if any.
func New(services []string, metricsPath string) *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_hub_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "route"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_hub_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "route"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "api_hub_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_hub_proxy_upstream_request_duration_seconds",
			Help:    "Time to upstream response headers in seconds.",
			Buckets: defaultBuckets,
		}, []string{"service", "method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_hub_proxy_upstream_responses_total",
			Help: "Total upstream responses by service, method and status code.",
		}, []string{"service", "method", "status_code"}),

		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_hub_proxy_upstream_errors_total",
			Help: "Upstream requests that failed before a response was received.",
		}, []string{"service", "method"}),

		services:    make(map[string]bool, len(services)),
		metricsPath: metricsPath,
	}

	for _, s := range services {
		m.services[s] = true
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.UpstreamErrors,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// RouteLabel returns a bounded route label for path: a configured service name
// or one of the Route* constants.
func (m *Metrics) RouteLabel(path string) string {
	switch path {
	case "", "/", "/index", "/index.html":
		return RouteHomepage
	case "/favicon.ico", "/robots.txt", "/sitemap.xml":
		return RouteStatic
	case "/healthz":
		return RouteHealthz
	case "/proxy/status":
		return RouteStatus
	}
	if m.metricsPath != "" && path == m.metricsPath {
		return RouteMetrics
	}

	seg, _, _ := strings.Cut(strings.TrimLeft(path, "/"), "/")
	if m.services[seg] {
		return seg
	}
	return RouteOther
}
