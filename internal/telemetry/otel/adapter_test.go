package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"scratcha-console/client/internal/telemetry"
)

func TestNewEmitter_NilProviderIsNoop(t *testing.T) {
	em := NewEmitter(nil)
	if em == nil {
		t.Fatal("NewEmitter(nil) returned nil")
	}
	if err := em.Emit(context.Background(), telemetry.Event{Type: telemetry.EventLogout}); err != nil {
		t.Errorf("Emit on no-op emitter: %v", err)
	}
}

func TestEmit_RecordsThroughProcessor(t *testing.T) {
	rec := &recordingProcessor{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(rec))
	em := NewEmitter(provider)

	event := telemetry.Event{
		Type:       telemetry.EventAppCreated,
		UserID:     "u1",
		ResourceID: "app1",
		Message:    "demo site",
		CreatedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := em.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if got := len(rec.records); got != 1 {
		t.Fatalf("processed %d records, want 1", got)
	}
	r := rec.records[0]
	if got := r.Body().AsString(); got != "demo site" {
		t.Errorf("body = %q, want %q", got, "demo site")
	}
	if !r.Timestamp().Equal(event.CreatedAt) {
		t.Errorf("timestamp = %v, want %v", r.Timestamp(), event.CreatedAt)
	}
	attrs := map[string]string{}
	r.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	if attrs["event_type"] != telemetry.EventAppCreated {
		t.Errorf("event_type = %q, want %q", attrs["event_type"], telemetry.EventAppCreated)
	}
	if attrs["user_id"] != "u1" || attrs["resource_id"] != "app1" {
		t.Errorf("attrs = %v, want user_id/resource_id set", attrs)
	}
}

// recordingProcessor captures emitted records for assertions.
type recordingProcessor struct {
	records []sdklog.Record
}

func (p *recordingProcessor) OnEmit(ctx context.Context, r *sdklog.Record) error {
	p.records = append(p.records, *r)
	return nil
}

func (p *recordingProcessor) Enabled(ctx context.Context, param sdklog.EnabledParameters) bool {
	return true
}

func (p *recordingProcessor) Shutdown(ctx context.Context) error   { return nil }
func (p *recordingProcessor) ForceFlush(ctx context.Context) error { return nil }
