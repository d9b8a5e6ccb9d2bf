// Package oteltrace adapts the global OpenTelemetry tracer to the
// observability.Tracer port used by the checkout use cases.
package oteltrace

import (
	"context"

	"github.com/nativebites/checkout/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type tracer struct{ t trace.Tracer }

// New returns a tracer scoped to the given instrumentation name. Spans are
// no-ops until the process installs a TracerProvider with an exporter via
// otel.SetTracerProvider; the checkout code does not depend on one existing.
func New(name string) observability.Tracer {
	if name == "" {
		name = "checkout"
	}
	return &tracer{t: otel.Tracer(name)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}
