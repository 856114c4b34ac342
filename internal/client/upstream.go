// Package client provides the upstream HTTP client for the Gemini API.
package client

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gemini-proxy-go/internal/metrics"
	"gemini-proxy-go/internal/model"
)

var tracer = otel.Tracer("gemini-proxy/client")

// UpstreamClient sends rewritten requests through the shared client.
type UpstreamClient struct {
	shared  *SharedClient
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(shared *SharedClient, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	return &UpstreamClient{
		shared:  shared,
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Dispatch performs one upstream exchange and returns as soon as response
// headers arrive. The body is left unread; the caller owns it.
// ctx bounds the whole exchange including the later body reads, so a
// client disconnect also aborts the upstream request.
func (c *UpstreamClient) Dispatch(ctx context.Context, out *model.OutboundRequest) (*model.UpstreamResponse, error) {
	ctx, span := tracer.Start(ctx, "upstream.dispatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", out.Method),
			attribute.String("server.address", out.URL.Host),
			attribute.String("url.path", out.URL.Path),
		),
	)
	defer span.End()

	fail := func(err error) (*model.UpstreamResponse, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		return nil, &model.DispatchError{Method: out.Method, Host: out.URL.Host, Cause: err}
	}

	hc, err := c.shared.Get()
	if err != nil {
		return fail(err)
	}

	req, err := http.NewRequestWithContext(ctx, out.Method, out.URL.String(), bytes.NewReader(out.Body))
	if err != nil {
		return fail(err)
	}
	req.Header = out.Header
	// An empty value stops net/http from adding its own User-Agent.
	if _, ok := req.Header["User-Agent"]; !ok {
		req.Header["User-Agent"] = []string{""}
	}

	c.logger.Debug("upstream request",
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := hc.Do(req) //nolint:bodyclose // body ownership transfers to caller via UpstreamResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(out.Method)
	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
	}

	if err != nil {
		return fail(err)
	}

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}
