package session

import (
	"context"
	"log"

	"scratcha-console/client/internal/session/domain"
)

// Initialize reconciles persisted session state with the lifecycle rules.
// It runs at most once per Manager; concurrent and repeated callers block on
// the first run and observe its outcome. Reconciliation failures are logged,
// not surfaced: the worst case is an anonymous session.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.initErr = m.initialize(ctx)
	})
	return m.initErr
}

func (m *Manager) initialize(ctx context.Context) error {
	var restored domain.Session
	if m.store != nil {
		persisted, ok, err := m.store.Load(ctx)
		if err != nil {
			// Corrupt or unreadable state is discarded; the session stays anonymous.
			log.Printf("session: restore persisted state: %v", err)
			if clearErr := m.store.Clear(ctx); clearErr != nil {
				log.Printf("session: purge unreadable state: %v", clearErr)
			}
			return nil
		}
		if ok {
			restored = *persisted
		}
	}

	switch {
	case restored.IsAuthenticated && restored.Token == "":
		// Inconsistent persisted state: authenticated without a credential.
		log.Printf("session: inconsistent persisted state (authenticated without token), forcing anonymous")
		m.clearSession(ctx)

	case restored.Token != "" && restored.IsAuthenticated && restored.User != nil:
		// Fully resolved session; accept without refetching.
		m.mu.Lock()
		m.sess = restored
		m.mu.Unlock()

	case restored.Token != "":
		// Token held but profile unresolved (or authentication flag lost):
		// enter pending and attempt to resolve.
		m.mu.Lock()
		m.sess = domain.Session{
			Token:           restored.Token,
			IsAuthenticated: true,
			LastActivity:    restored.LastActivity,
		}
		m.persistLocked(ctx)
		m.mu.Unlock()
		if err := m.GetProfile(ctx); err != nil {
			log.Printf("session: resolve restored token: %v", err)
		}

	default:
		// Nothing usable persisted; purge any leftover partial record.
		if restored != (domain.Session{}) {
			m.clearSession(ctx)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sess.Validate(); err != nil {
		// Should be unreachable given the rules above.
		m.sess.Clear()
		return err
	}
	return nil
}
