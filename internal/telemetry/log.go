package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

const (
	traceIDKey ctxKey = iota
	parentSpanIDKey
)

// WithTraceID attaches a trace ID to ctx, seeding one run's worth of
// spans.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func traceIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return uuid.NewString()
}

func parentSpanIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(parentSpanIDKey).(string)
	return v
}

// LogInstrumenter writes each span and business event as a single log line
// via the standard "log" package.
type LogInstrumenter struct {
	logger *log.Logger
}

// NewLogInstrumenter wraps logger (nil uses log.Default()).
func NewLogInstrumenter(logger *log.Logger) *LogInstrumenter {
	if logger == nil {
		logger = log.Default()
	}
	return &LogInstrumenter{logger: logger}
}

func (i *LogInstrumenter) StartSpan(ctx context.Context, source, component, action string) (context.Context, Span) {
	traceID := traceIDFrom(ctx)
	spanID := uuid.NewString()
	span := &logSpan{
		logger:       i.logger,
		traceID:      traceID,
		spanID:       spanID,
		parentSpanID: parentSpanIDFrom(ctx),
		source:       source,
		component:    component,
		action:       action,
		startTime:    time.Now(),
		metadata:     make(map[string]any),
	}
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	ctx = context.WithValue(ctx, parentSpanIDKey, spanID)
	return ctx, span
}

func (i *LogInstrumenter) EmitBusinessEvent(ctx context.Context, action, entity, recordID string, metadata map[string]any) {
	i.logger.Printf("event trace=%s span=%s type=business action=%s entity=%s record=%s metadata=%v",
		traceIDFrom(ctx), uuid.NewString(), action, entity, recordID, metadata)
}

type logSpan struct {
	logger       *log.Logger
	traceID      string
	spanID       string
	parentSpanID string
	source       string
	component    string
	action       string
	entity       string
	recordID     string
	status       string
	startTime    time.Time

	mu       sync.Mutex
	metadata map[string]any
	ended    bool
}

func (s *logSpan) TraceID() string { return s.traceID }
func (s *logSpan) SpanID() string  { return s.spanID }

func (s *logSpan) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *logSpan) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = value
}

func (s *logSpan) SetEntity(entity, recordID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entity = entity
	s.recordID = recordID
}

func (s *logSpan) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	durationMs := float64(time.Since(s.startTime).Microseconds()) / 1000.0
	s.logger.Printf("span trace=%s span=%s parent=%s source=%s component=%s action=%s entity=%s record=%s status=%s duration_ms=%.2f metadata=%v",
		s.traceID, s.spanID, s.parentSpanID, s.source, s.component, s.action, s.entity, s.recordID, s.status, durationMs, s.metadata)
}

var _ Instrumenter = (*LogInstrumenter)(nil)
var _ Instrumenter = (*NoopInstrumenter)(nil)
