// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for API latency. Streamed generations can run for
// minutes, hence the long tail.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120}

// Rejection stages for RejectedRequests.
const (
	StageMethod   = "method"
	StageRewrite  = "rewrite"
	StageHeaders  = "headers"
	StageBody     = "body"
	StageDispatch = "dispatch"
)

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	RejectedRequests       *prometheus.CounterVec
	ResponseHeadersDropped prometheus.Counter
	StreamedBytes          prometheus.Counter
	StreamErrors           prometheus.Counter
	ClientInits            *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemini_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gemini_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds, including the streamed body.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gemini_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gemini_proxy_upstream_request_duration_seconds",
			Help:    "Time until upstream response headers arrive, in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemini_proxy_upstream_responses_total",
			Help: "Total upstream responses by method and status code.",
		}, []string{"method", "status_code"}),

		RejectedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemini_proxy_rejected_requests_total",
			Help: "Requests that failed before a response was relayed, by pipeline stage.",
		}, []string{"stage"}),

		ResponseHeadersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gemini_proxy_response_headers_dropped_total",
			Help: "Upstream response header values dropped because they are not valid text.",
		}),

		StreamedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gemini_proxy_streamed_bytes_total",
			Help: "Response body bytes relayed from upstream to clients.",
		}),

		StreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gemini_proxy_stream_errors_total",
			Help: "Responses truncated by an upstream body read error.",
		}),

		ClientInits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemini_proxy_client_inits_total",
			Help: "Shared upstream client constructions by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.RejectedRequests,
		m.ResponseHeadersDropped,
		m.StreamedBytes,
		m.StreamErrors,
		m.ClientInits,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true, "CONNECT": true, "TRACE": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the allowed path label values (bounded cardinality).
var knownPrefixes = []string{
	"/v1beta", "/v1alpha", "/v1", "/upload", "/download",
	"/healthz", "/proxy/status", "/metrics",
}

// NormalizePath returns a bounded path label for Prometheus metrics.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}
