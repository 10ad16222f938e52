package observe

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the Jarvis tracer.
const tracerName = "github.com/MrWong99/jarvis"

// Tracer returns the Jarvis tracer of the global [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the trace id of the span in ctx, or "" without one.
// It ties the log lines of one wake-to-answer turn together.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id and span_id attached when
// ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}

// ─── Stages ──────────────────────────────────────────────────────────────────

// Stage measures one provider call of a turn (transcription, completion or
// speech) as a span plus a latency sample.
type Stage struct {
	span  trace.Span
	start time.Time
	hist  metric.Float64Histogram
}

// StartStage opens a span called name. hist, if non-nil, receives the stage
// duration in seconds when the stage ends.
func StartStage(ctx context.Context, name string, hist metric.Float64Histogram, attrs ...attribute.KeyValue) (context.Context, *Stage) {
	ctx, span := StartSpan(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &Stage{span: span, start: time.Now(), hist: hist}
}

// Span exposes the stage span for extra attributes.
func (s *Stage) Span() trace.Span { return s.span }

// End closes the stage. A non-nil err marks the span failed unless it is a
// context cancellation, which is recorded as an event only. The duration is
// recorded in every case.
func (s *Stage) End(ctx context.Context, err error) {
	if s.hist != nil {
		s.hist.Record(ctx, time.Since(s.start).Seconds())
	}
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.span.AddEvent("cancelled", trace.WithAttributes(attribute.String("reason", err.Error())))
	default:
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}
