// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package telemetry wires OpenTelemetry tracing for the scheduler and API.
package telemetry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the instrumentation scope of scheduler spans.
const TracerName = "github.com/ManuGH/recsched"

const shutdownTimeout = 5 * time.Second

// Config selects the exporter and sampling for a Provider.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	Exporter       string // key of exporters
	Endpoint       string // host:port of the collector
	SamplingRate   float64
}

type exporterFunc func(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error)

var exporters = map[string]exporterFunc{
	"grpc": func(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	},
	"http": func(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	},
}

// Exporters lists the supported exporter names.
func Exporters() []string {
	names := make([]string, 0, len(exporters))
	for name := range exporters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Provider owns the global tracer provider. The zero value is a disabled
// provider whose Shutdown is a no-op.
type Provider struct {
	tp   *sdktrace.TracerProvider
	once sync.Once
	err  error
}

// Option adjusts provider construction.
type Option func(*[]sdktrace.TracerProviderOption)

// WithSpanProcessor replaces the OTLP exporter, for tests and local debugging.
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(o *[]sdktrace.TracerProviderOption) {
		*o = append(*o, sdktrace.WithSpanProcessor(sp))
	}
}

// NewProvider installs a global tracer provider for cfg. When tracing is
// disabled a noop provider is installed so spans cost nothing.
func NewProvider(ctx context.Context, cfg Config, opts ...Option) (*Provider, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return &Provider{}, nil
	}

	var tpOpts []sdktrace.TracerProviderOption
	for _, opt := range opts {
		opt(&tpOpts)
	}
	if len(tpOpts) == 0 {
		newExporter, ok := exporters[cfg.Exporter]
		if !ok {
			return nil, fmt.Errorf("telemetry: exporter %q not supported (%v)", cfg.Exporter, Exporters())
		}
		exp, err := newExporter(ctx, cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("telemetry: %s exporter: %w", cfg.Exporter, err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(append(tpOpts,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SamplingRate))),
	)...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Provider{tp: tp}, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown flushes pending spans once. Later calls return the first result.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	p.once.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		p.err = p.tp.Shutdown(ctx)
	})
	return p.err
}

// Tracer returns a tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
