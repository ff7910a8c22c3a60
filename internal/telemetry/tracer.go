package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type ShutdownFunc func(context.Context) error

// SetupTracer installs the global tracer provider and propagator. With an
// empty endpoint spans are still created, so log records carry trace ids,
// but nothing is exported.
func SetupTracer(ctx context.Context, serviceName, environment, endpoint string) (ShutdownFunc, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}

	if endpoint != "" {
		exporter, err := otlptracehttp.New(ctx, exporterOptions(endpoint)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// exporterOptions accepts host:port or a full http(s) URL.
func exporterOptions(endpoint string) []otlptracehttp.Option {
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		return []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(strings.TrimPrefix(endpoint, "http://")),
			otlptracehttp.WithInsecure(),
		}
	case strings.HasPrefix(endpoint, "https://"):
		return []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(strings.TrimPrefix(endpoint, "https://")),
		}
	default:
		return []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		}
	}
}
