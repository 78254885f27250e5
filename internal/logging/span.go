package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span times one unit of work such as an upload or a deletion attempt.
// Spans nest: a child inherits its parent's trace id and records the
// parent's span id.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
}

// StartSpan opens a span named name under whatever span ctx already carries
// and returns a context whose logger is tagged with the span identifiers.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	attrs := make([]any, 0, 4)
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
		ctx = WithTraceID(ctx, traceID)
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	if parent := SpanIDFromContext(ctx); parent != "" {
		attrs = append(attrs, slog.String("parent_span_id", parent))
	}

	spanID := uuid.NewString()
	attrs = append(attrs, slog.String("span_id", spanID), slog.String("span_name", name))

	logger := FromContext(ctx).With(attrs...)
	ctx = WithSpanID(WithLogger(ctx, logger), spanID)

	return ctx, &Span{name: name, logger: logger, start: time.Now()}
}

// Name returns the span name.
func (s *Span) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// End closes a span that succeeded.
func (s *Span) End() {
	s.Finish(nil)
}

// Finish closes the span, logging at WARN with err when the work failed.
func (s *Span) Finish(err error) {
	if s == nil {
		return
	}
	elapsed := slog.Duration("duration", time.Since(s.start))
	if err != nil {
		s.logger.Warn("span failed", elapsed, slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("span completed", elapsed)
}
