package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"scratcha-console/client/internal/telemetry"
)

// NewEmitter returns an Emitter that sends events as OTel log records via the
// given LoggerProvider. If provider is nil, returns a no-op emitter.
func NewEmitter(provider *sdklog.LoggerProvider) telemetry.Emitter {
	if provider == nil {
		return telemetry.Nop()
	}
	return &otelEmitter{logger: provider.Logger("scratcha.console")}
}

type otelEmitter struct {
	logger otellog.Logger
}

// Emit converts the event to an OTel log record and emits it.
func (e *otelEmitter) Emit(ctx context.Context, event telemetry.Event) error {
	rec := otellog.Record{}
	if !event.CreatedAt.IsZero() {
		rec.SetTimestamp(event.CreatedAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	if event.Message != "" {
		rec.SetBody(otellog.StringValue(event.Message))
	}
	if event.Type != "" {
		rec.AddAttributes(otellog.String("event_type", event.Type))
	}
	if event.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", event.UserID))
	}
	if event.ResourceID != "" {
		rec.AddAttributes(otellog.String("resource_id", event.ResourceID))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
