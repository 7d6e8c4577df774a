// Package metrics configures the OpenTelemetry meter pipeline and the
// Prometheus scrape endpoint.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/venuelabs/crossarb/internal/apperror"
	"github.com/venuelabs/crossarb/internal/logger"
)

// Settings carries everything the meter pipeline needs from the
// application configuration. An empty OTLP endpoint means Prometheus
// only.
type Settings struct {
	ServiceName  string
	OTLPEndpoint string
	OTLPHeaders  string // "key=value" pairs, comma separated
	OTLPInsecure bool
}

// Provider owns the installed meter pipeline.
type Provider interface {
	Shutdown(ctx context.Context) error
}

// NewProvider installs the global meter provider. Counters created
// through otel.Meter anywhere in the process flow to every configured
// reader.
func NewProvider(settings Settings, log logger.LoggerInterface) (Provider, error) {
	var readers []sdkmetric.Reader

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigurationError, "creating prometheus exporter")
	}
	readers = append(readers, promExporter)

	if settings.OTLPEndpoint != "" {
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpointURL(settings.OTLPEndpoint),
			otlpmetricgrpc.WithHeaders(parseHeaders(settings.OTLPHeaders)),
		}
		if settings.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(context.Background(), opts...)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeConfigurationError, "creating otlp metric exporter")
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exp))
	}

	opts := make([]sdkmetric.Option, 0, len(readers)+1)
	for _, reader := range readers {
		opts = append(opts, sdkmetric.WithReader(reader))
	}
	opts = append(opts, sdkmetric.WithResource(
		resource.NewSchemaless(semconv.ServiceNameKey.String(settings.ServiceName)),
	))

	provider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(provider)

	log.Info(context.Background(), "meter provider installed",
		"service", settings.ServiceName, "otlp", settings.OTLPEndpoint != "")
	return provider, nil
}

func parseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		if key, value, ok := strings.Cut(pair, "="); ok {
			headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	return headers
}

// NewPrometheusServer returns an HTTP server exposing /metrics on the
// given port. The caller owns its lifecycle.
func NewPrometheusServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
