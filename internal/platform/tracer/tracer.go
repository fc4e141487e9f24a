// Package tracer narrows OpenTelemetry to the span surface services use.
package tracer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	// End completes the span, marking it failed when err is non-nil.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute = attribute.KeyValue

func String(key, value string) Attribute      { return attribute.String(key, value) }
func Bool(key string, value bool) Attribute   { return attribute.Bool(key, value) }
func Int(key string, value int) Attribute     { return attribute.Int(key, value) }
func Int64(key string, value int64) Attribute { return attribute.Int64(key, value) }

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return attribute.Int64(key, value.Milliseconds())
}

// Attribute keys shared across modules.
const (
	AttrWorkflowID  = "workflow.id"
	AttrOperationID = "workflow.operation_id"
	AttrApproverID  = "workflow.approver_id"
	AttrStatus      = "workflow.status"
	AttrEventType   = "audit.event_type"
	AttrRiskLevel   = "audit.risk_level"
	AttrSweepItems  = "sweep.items"
	AttrSweepFailed = "sweep.failed"
)
