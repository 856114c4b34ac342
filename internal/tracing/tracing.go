// Package tracing configures OpenTelemetry trace export for the proxy.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"

	"gemini-proxy-go/internal/config"
)

const (
	exportTimeout      = 10 * time.Second
	reconnectionPeriod = 10 * time.Second
)

// Provider owns the process tracer provider. A disabled Provider is valid
// and its Shutdown is a no-op; spans then go to the global no-op tracer.
type Provider struct {
	sdk *sdktrace.TracerProvider
}

// New builds an OTLP/gRPC exporting provider from cfg and installs it as the
// global tracer provider. When tracing is disabled nothing is installed.
func New(ctx context.Context, cfg *config.Config) (*Provider, error) {
	if !cfg.Tracing.Enabled {
		return &Provider{}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Tracing.Endpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(exportTimeout),
		otlptracegrpc.WithReconnectionPeriod(reconnectionPeriod),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := newResource(cfg.Tracing.ServiceName)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(Sampler(samplingRate(cfg)))),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{sdk: tp}, nil
}

// newResource merges the service name into the SDK default resource. The
// service attributes carry no schema URL so the merge never conflicts with
// the schema the SDK default was built against.
func newResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}
	return res, nil
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool {
	return p.sdk != nil
}

// Shutdown flushes buffered spans and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}

// Sampler maps a sampling rate in [0, 1] onto a root sampler.
func Sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

func samplingRate(cfg *config.Config) float64 {
	if cfg.Tracing.SamplingRate == nil {
		return 1.0
	}
	return *cfg.Tracing.SamplingRate
}
