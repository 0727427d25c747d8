package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.opentelemetry.io/otel/trace"
)

// tracerName scopes the engine's spans. Sweep, block, unblock and report
// operations each open one through StartSpan, so a trace of a session reads
// as the sequence of operator actions.
const tracerName = "github.com/arpgate/arpgate"

// Span attribute keys for the engine operations.
const (
	AttrSubnet    = attribute.Key("arpgate.subnet")
	AttrTargetMAC = attribute.Key("arpgate.target_mac")
	AttrScanID    = attribute.Key("arpgate.scan_id")
)

// InitTracer installs a tracer provider exporting to stdout and returns its
// shutdown function. Stdout is enough for a single-operator tool; an OTLP
// exporter would slot in here unchanged.
func InitTracer(version string) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName("arpgate"),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// StartSpan opens one engine-operation span. With no provider installed it
// degrades to the otel no-op tracer, so callers never guard for tracing
// being disabled.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}
