package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"auth-gateway/internal/audit"
)

const eventScope = "auth-gateway.events"

// recordEmitter is the part of otellog.Logger the emitter needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// EventEmitter publishes authentication events as OTel log records. It
// implements audit.AuditLogger so it can sit next to the database logger.
type EventEmitter struct {
	logger recordEmitter
	now    func() time.Time
}

var _ audit.AuditLogger = (*EventEmitter)(nil)

// NewEventEmitter returns an emitter on provider, or audit.Nop when provider is nil.
func NewEventEmitter(provider *sdklog.LoggerProvider) audit.AuditLogger {
	if provider == nil {
		return audit.Nop{}
	}
	return newEventEmitter(provider.Logger(eventScope))
}

func newEventEmitter(l recordEmitter) *EventEmitter {
	return &EventEmitter{logger: l, now: time.Now}
}

// LogEvent emits one record with the action as event name.
func (e *EventEmitter) LogEvent(ctx context.Context, subject, action, resource string, metadata map[string]any) {
	rec := otellog.Record{}
	rec.SetTimestamp(e.now().UTC())
	rec.SetEventName(action)
	rec.SetSeverity(otellog.SeverityInfo)
	if len(metadata) > 0 {
		if b, err := json.Marshal(metadata); err == nil {
			rec.SetBody(otellog.BytesValue(b))
		}
	}
	rec.AddAttributes(otellog.String("auth.action", action))
	if subject != "" {
		rec.AddAttributes(otellog.String("auth.subject", subject))
	}
	if resource != "" {
		rec.AddAttributes(otellog.String("auth.resource", resource))
	}
	e.logger.Emit(ctx, rec)
}
