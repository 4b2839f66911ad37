// Package observability provides OpenTelemetry integration for distributed tracing.
//
// # Architecture
//
// Traces are exported over OTLP HTTP to a local collector: Jaeger, the OTel
// Collector, or any OTLP-compatible backend. Exporting to a local collector
// instead of a vendor API keeps credentials out of the application and gives
// the collector a chance to buffer and retry. When no endpoint is configured,
// setup is a no-op and the process runs without a tracing pipeline.
//
// # Local Development
//
// Run Jaeger all-in-one with the OTLP HTTP receiver enabled:
//
//	docker run --rm -p 16686:16686 -p 4318:4318 jaegertracing/all-in-one:latest
//
// Then point lorebase at it:
//
//	OTEL_EXPORTER_OTLP_ENDPOINT=localhost:4318 lorebase serve
//
// Traces appear in the Jaeger UI at http://localhost:16686 within a few
// seconds of the exporter's batch flush.
//
// # Configuration
//
// Environment variables:
//   - OTEL_EXPORTER_OTLP_ENDPOINT: collector endpoint (empty disables tracing)
//
// Config file (~/.lorebase/config.yaml):
//
//	otlp:
//	  endpoint: "localhost:4318"
//	  environment: "dev"
//	  service_name: "lorebase"
//
// # Troubleshooting
//
// Test the collector endpoint:
//
//	curl -v http://localhost:4318/v1/traces
//
// A 405 or 415 response means the receiver is up; connection refused means
// nothing is listening on that port.
package observability

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config for OTLP trace export.
type Config struct {
	// Endpoint is the OTLP HTTP collector endpoint, host:port with an
	// optional http:// or https:// prefix. Empty disables tracing.
	Endpoint string
	// Environment is the deployment environment (dev, staging, prod)
	Environment string
	// ServiceName is the service name shown in the tracing backend
	ServiceName string
}

// SetupTracing installs a global tracer provider that exports spans to the
// configured OTLP collector via OTLP HTTP protocol.
//
// Returns a shutdown function that flushes pending spans. If the endpoint is
// empty, tracing stays disabled and the shutdown function is a no-op. An
// exporter that cannot be constructed degrades the same way: the application
// runs untraced rather than failing to start.
func SetupTracing(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if cfg.Endpoint == "" {
		slog.Debug("tracing disabled, no OTLP endpoint configured")
		return noop, nil
	}

	endpoint, secure := normalizeEndpoint(cfg.Endpoint)

	// Set OTEL_SERVICE_NAME for the SDK's default resource detectors to
	// pick up. This ensures the service name appears correctly in the
	// tracing backend.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if !secure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		slog.Warn("failed to create OTLP exporter, tracing disabled", "error", err)
		return noop, nil
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)),
	)
	otel.SetTracerProvider(provider)

	slog.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return provider.Shutdown, nil
}

// normalizeEndpoint strips the scheme prefix from the configured endpoint.
// The OTLP HTTP client wants a bare host:port; the scheme only decides
// whether TLS is used.
func normalizeEndpoint(endpoint string) (host string, secure bool) {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		host, secure = strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		host, secure = strings.TrimPrefix(endpoint, "http://"), false
	default:
		host, secure = endpoint, false
	}
	return strings.TrimSuffix(host, "/"), secure
}
