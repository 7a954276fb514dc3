// Package telemetry instruments migration runs: timed spans around
// pipeline stages and one-shot business events per dispatched queue item,
// written as log lines or discarded by the no-op implementation.
package telemetry

import (
	"context"
	"time"
)

// Instrumenter starts spans and emits one-shot business events.
type Instrumenter interface {
	StartSpan(ctx context.Context, source, component, action string) (context.Context, Span)
	EmitBusinessEvent(ctx context.Context, action, entity, recordID string, metadata map[string]any)
}

// Span is a timed operation; SetEntity/SetMetadata/SetStatus annotate it
// before End() finalizes and reports it.
type Span interface {
	End()
	SetStatus(status string)
	SetMetadata(key string, value any)
	SetEntity(entity, recordID string)
	TraceID() string
	SpanID() string
}

// Event lists the fields a Span carries on End, or an EmitBusinessEvent call
// carries. LogInstrumenter writes these fields as one log line and does not
// build an Event value.
type Event struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	EventType    string // "system" (from a Span) or "business" (from EmitBusinessEvent)
	Source       string
	Component    string
	Action       string
	Entity       string
	RecordID     string
	DurationMs   float64
	Status       string
	Metadata     map[string]any
	CreatedAt    time.Time
}
