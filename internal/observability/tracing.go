package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies the engine's spans. The helpers below resolve the
// tracer through the global provider, so they are no-ops until InitTracing
// has run — callers never need to check whether tracing is enabled.
const tracerName = "context-engine"

// TracerProvider owns the engine's OTLP pipeline.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// InitTracing wires the OTLP gRPC exporter and installs the engine's
// tracer provider as the process global.
func InitTracing(serviceName, environment, endpoint string) (*TracerProvider, error) {
	ctx := context.Background()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &TracerProvider{provider: provider}, nil
}

// Shutdown flushes buffered spans and stops the pipeline.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.provider.Shutdown(ctx)
}

// StartBuildSpan opens the span covering one context build: the whole
// fan-out for a case and its effective dimension set.
func StartBuildSpan(ctx context.Context, caseKey string, dims []string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "context.build",
		trace.WithAttributes(
			attribute.String("case.key", caseKey),
			attribute.StringSlice("context.dimensions", dims),
		),
	)
}

// RecordBuildOutcome stamps the quality result onto a build span.
func RecordBuildOutcome(span trace.Span, score float64, failedDimensions int) {
	span.SetAttributes(
		attribute.Float64("context.score", score),
		attribute.Int("context.failed_dimensions", failedDimensions),
	)
}

// StartDimensionSpan opens the span for one analyzer's run inside a build.
func StartDimensionSpan(ctx context.Context, dimension string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "context.dimension",
		trace.WithAttributes(attribute.String("context.dimension", dimension)),
	)
}

// StartGraphSpan opens the span for one knowledge-graph request attempt,
// so retries show up as sibling spans under the calling dimension.
func StartGraphSpan(ctx context.Context, path string, attempt int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "graph.call",
		trace.WithAttributes(
			attribute.String("graph.path", path),
			attribute.Int("graph.attempt", attempt),
		),
	)
}
