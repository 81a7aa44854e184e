package hyperlockd

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// setupTracing installs a global TracerProvider so internal/dispatch's
// otel.Tracer calls produce real recording spans instead of no-ops. No
// exporter or span processor is attached, so spans are recorded and carried
// in request contexts but are not exported anywhere; the SDK's exporter
// environment variables are not read by this provider.
func setupTracing(ctx context.Context) (*sdktrace.TracerProvider, error) {
	res, err := sdkresource.New(ctx, sdkresource.WithAttributes(
		attribute.String("service.name", "hyperlockd"),
		attribute.String("service.namespace", "pkt.systems"),
	))
	if err != nil {
		return nil, fmt.Errorf("hyperlockd: build telemetry resource: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}
