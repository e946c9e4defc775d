// Package state persists client session state across runs under a single
// namespaced key in a local store.
package state

import (
	"context"

	"scratcha-console/client/internal/session/domain"
)

// SessionKey is the namespaced key the session record is stored under.
const SessionKey = "scratcha/session"

// Store persists and restores the session record. Load is synchronous: a
// returned value means restoration is complete, which is the signal the
// session initializer waits on before reconciling.
type Store interface {
	// Load returns the persisted session. ok is false when nothing is stored.
	Load(ctx context.Context) (s *domain.Session, ok bool, err error)
	// Save writes the session record, replacing any previous one.
	Save(ctx context.Context, s *domain.Session) error
	// Clear removes the persisted record. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}
