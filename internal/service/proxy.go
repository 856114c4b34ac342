// Package service implements the core proxy forwarding logic: URL rewriting,
// request translation, and response translation into a chunk stream.
package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gemini-proxy-go/internal/config"
	"gemini-proxy-go/internal/metrics"
	"gemini-proxy-go/internal/model"
)

var tracer = otel.Tracer("gemini-proxy/service")

// Dispatcher performs one upstream exchange without reading the response body.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *model.OutboundRequest) (*model.UpstreamResponse, error)
}

// ProxyService runs the forwarding pipeline for one request at a time.
// It holds no per-request state and is safe for concurrent use.
type ProxyService struct {
	rewriter   *Rewriter
	dispatcher Dispatcher
	chunkSize  int
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewProxyService creates a ProxyService.
// The metrics parameter is optional; pass nil to disable pipeline metrics.
func NewProxyService(rw *Rewriter, d Dispatcher, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	return &ProxyService{
		rewriter:   rw,
		dispatcher: d,
		chunkSize:  cfg.Upstream.ChunkSizeBytes,
		logger:     logger.With("component", "proxy_service"),
		metrics:    m,
	}
}

// Forward rewrites and translates in, dispatches it upstream, and returns
// the response with its body as an unread chunk stream. The caller must
// range over the body, which closes the upstream response.
//
// Stages run strictly in order and any failure returns before the upstream
// is contacted; nothing is retried.
func (s *ProxyService) Forward(in *model.InboundRequest) (*model.OutboundResponse, error) {
	ctx := in.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracer.Start(ctx, "proxy.forward",
		trace.WithAttributes(attribute.String("http.request.method", in.Method.String())),
	)
	defer span.End()

	target, err := s.rewriter.Rewrite(in.URL)
	if err != nil {
		return nil, s.reject(span, metrics.StageRewrite, err)
	}

	header, err := TranslateRequestHeaders(in.Header)
	if err != nil {
		return nil, s.reject(span, metrics.StageHeaders, err)
	}

	body, err := ReadBody(in.Body)
	if err != nil {
		return nil, s.reject(span, metrics.StageBody, err)
	}

	out := &model.OutboundRequest{
		Method: TranslateMethod(in.Method),
		URL:    target,
		Header: header,
		Body:   body,
	}

	s.logger.Debug("forwarding request",
		"method", out.Method,
		"path", target.Path,
		"body_bytes", len(body),
	)

	up, err := s.dispatcher.Dispatch(ctx, out)
	if err != nil {
		return nil, s.reject(span, metrics.StageDispatch, err)
	}

	resp, dropped := TranslateResponse(up, s.chunkSize)
	if dropped > 0 {
		s.logger.Debug("dropped upstream response headers", "count", dropped)
		if s.metrics != nil {
			s.metrics.ResponseHeadersDropped.Add(float64(dropped))
		}
	}
	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.StatusCode),
		attribute.Int("proxy.response_headers_dropped", dropped),
	)
	return resp, nil
}

func (s *ProxyService) reject(span trace.Span, stage string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, stage)
	if s.metrics != nil {
		s.metrics.RejectedRequests.WithLabelValues(stage).Inc()
	}
	return err
}
