// Package apm configures the OpenTelemetry trace pipeline. Components
// get their tracers through the global provider installed here.
package apm

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/venuelabs/crossarb/internal/apperror"
	"github.com/venuelabs/crossarb/internal/logger"
)

// Provider selects the span exporter.
type Provider string

const (
	OTLPGRPCProvider Provider = "otlp_grpc"
	OTLPHTTPProvider Provider = "otlp_http"
	ZipkinProvider   Provider = "zipkin"
	ConsoleProvider  Provider = "console"
	EmptyProvider    Provider = "empty"
)

// Settings carries everything the trace pipeline needs from the
// application configuration.
type Settings struct {
	Provider    Provider
	ServiceName string
	Endpoint    string
	Headers     string // "key=value", forwarded on every export request
}

// TraceProvider owns the installed pipeline.
type TraceProvider interface {
	Stop() error
}

type traceProvider struct {
	tp *sdktrace.TracerProvider
}

type emptyProvider struct{}

func (emptyProvider) Stop() error { return nil }

// NewTraceProvider installs the global tracer provider and propagators
// for the configured exporter. An empty or unknown provider installs
// nothing and every span becomes a no-op.
func NewTraceProvider(settings Settings, log logger.LoggerInterface) (TraceProvider, error) {
	exp, err := newExporter(settings, log)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return emptyProvider{}, nil
	}

	rsrc, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(settings.ServiceName),
			attribute.String("otel.provider", string(settings.Provider)),
		))
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigurationError, "building trace resource")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(rsrc),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

	return &traceProvider{tp: tp}, nil
}

func newExporter(settings Settings, log logger.LoggerInterface) (sdktrace.SpanExporter, error) {
	switch settings.Provider {
	case OTLPGRPCProvider:
		return otlptracegrpc.New(
			context.Background(),
			otlptracegrpc.WithEndpointURL(settings.Endpoint),
			otlptracegrpc.WithHeaders(exportHeaders(settings.Headers)),
		)
	case OTLPHTTPProvider:
		return otlptracehttp.New(
			context.Background(),
			otlptracehttp.WithEndpointURL(settings.Endpoint),
			otlptracehttp.WithHeaders(exportHeaders(settings.Headers)),
		)
	case ZipkinProvider:
		return zipkin.New(settings.Endpoint)
	case ConsoleProvider:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case EmptyProvider, "":
		return nil, nil
	default:
		log.Warn(context.Background(), "unknown trace provider, tracing disabled",
			"provider", string(settings.Provider))
		return nil, nil
	}
}

func exportHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		if key, value, ok := strings.Cut(pair, "="); ok {
			headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	return headers
}

func (p *traceProvider) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.tp.Shutdown(ctx)
}
