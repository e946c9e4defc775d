// Package telemetry defines best-effort client event emission. Failures are
// logged and never surfaced to the operation that produced the event.
package telemetry

import (
	"context"
	"log"
	"time"
)

// Event types emitted by the session manager and resource store.
const (
	EventLoginSuccess   = "login_success"
	EventLoginFailure   = "login_failure"
	EventSignupSuccess  = "signup_success"
	EventLogout         = "logout"
	EventSessionExpired = "session_expired"
	EventAppCreated     = "app_created"
	EventAppDeleted     = "app_deleted"
	EventKeyCreated     = "key_created"
	EventKeyDeleted     = "key_deleted"
	EventKeyToggled     = "key_toggled"
)

// Event is a single client-side occurrence worth recording.
type Event struct {
	Type       string
	UserID     string
	ResourceID string
	Message    string
	CreatedAt  time.Time
}

// Emitter records events. Implementations must be safe for concurrent use.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Nop returns an Emitter that discards everything.
func Nop() Emitter { return nopEmitter{} }

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, Event) error { return nil }

// EmitAsync runs Emit in a goroutine with a short timeout so the calling
// operation is not blocked. Errors are logged.
func EmitAsync(emitter Emitter, event Event) {
	if emitter == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := emitter.Emit(ctx, event); err != nil {
			log.Printf("telemetry: async emit failed: %v", err)
		}
	}()
}
