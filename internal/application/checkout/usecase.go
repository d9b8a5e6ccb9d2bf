package checkout

import (
	"context"
	"time"

	"github.com/nativebites/checkout/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const spanPrefix = "UC."

// useCaseObs carries the per-invocation telemetry of one use case: the UC
// span, the RED instruments, and the closing use_case_done log. Every use case
// on Service opens one via beginUseCase and closes it in a defer, so outcome,
// latency, and trace correlation are recorded on every return path.
type useCaseObs struct {
	s       *Service
	name    string
	logger  observability.Logger
	span    trace.Span
	start   time.Time
	outcome string
	status  string
}

// beginUseCase starts the span and primes a success outcome. The returned
// context carries the span; end must run deferred.
func (s *Service) beginUseCase(ctx context.Context, name, spanName string, logger observability.Logger, attrs ...attribute.KeyValue) (context.Context, *useCaseObs) {
	attrs = append([]attribute.KeyValue{attribute.String("use_case", name)}, attrs...)
	ctx, span := s.tel.Tracer().Start(ctx, spanPrefix+spanName, attrs...)
	return ctx, &useCaseObs{
		s:       s,
		name:    name,
		logger:  logger,
		span:    span,
		start:   time.Now(),
		outcome: "success",
		status:  "OK",
	}
}

// fail marks the invocation as errored with a machine-readable status code.
func (u *useCaseObs) fail(code string) {
	u.outcome, u.status = "error", code
}

// note records a status code without flipping the outcome, for successful but
// noteworthy paths such as idempotent replays.
func (u *useCaseObs) note(code string) {
	u.status = code
}

func (u *useCaseObs) end(ctx context.Context, err error) {
	lat := time.Since(u.start).Seconds()

	if u.span != nil {
		if err != nil {
			u.span.RecordError(err)
			u.span.SetStatus(codes.Error, u.status)
		} else {
			u.span.SetStatus(codes.Ok, u.status)
		}
		u.span.End()
	}

	u.s.reqCounter.Add(1,
		observability.L("use_case", u.name),
		observability.L("outcome", u.outcome),
	)
	u.s.durHistogram.Observe(lat,
		observability.L("use_case", u.name),
	)

	fields := []observability.Field{
		observability.F("outcome", u.outcome),
		observability.F("status", u.status),
		observability.F("latency_seconds", lat),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	u.logger.Info("use_case_done", fields...)
}
