// Package resource is the client-side cache of application and API key
// records, synchronized with the backend by explicit mutate-then-full-reload
// calls. Last client write wins locally; the store is always refetched in
// full after any mutation.
package resource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"scratcha-console/client/internal/gateway"
	"scratcha-console/client/internal/resource/domain"
	"scratcha-console/client/internal/telemetry"
)

// Sentinel errors returned by the store.
var (
	// ErrDeleteBlocked means the backend refused an application delete
	// because API keys are still attached; the wrapped message is the
	// backend's own wording and must reach the user unchanged.
	ErrDeleteBlocked = errors.New("cannot delete: resolve dependent API keys first")
	ErrNameRequired  = errors.New("name and description are required")
	ErrAppRequired   = errors.New("an application must be selected")
)

// DashboardAPI is the minimal gateway surface the store needs.
type DashboardAPI interface {
	Applications(ctx context.Context) ([]domain.App, []domain.APIKey, error)
	CreateApplication(ctx context.Context, name, description string, expiresPolicy int) error
	DeleteApplication(ctx context.Context, id string) error
	CreateAPIKey(ctx context.Context, appID, name string) error
	DeleteAPIKey(ctx context.Context, id string) error
	ActivateAPIKey(ctx context.Context, id string) error
	DeactivateAPIKey(ctx context.Context, id string) error
}

// Store caches application and API key collections. Mutations go through the
// store's own methods (single writer); any number of readers may take
// snapshots concurrently.
type Store struct {
	api     DashboardAPI
	emitter telemetry.Emitter

	// mutMu serializes mutate+reload pairs so two in-flight mutations can
	// never interleave their reloads into an inconsistent snapshot.
	mutMu sync.Mutex

	mu   sync.RWMutex
	apps []domain.App
	keys []domain.APIKey

	// reload coalescing: concurrent LoadAll callers wait on the in-flight
	// reload instead of issuing their own. writeGen counts confirmed
	// backend mutations; a caller only coalesces onto a reload whose
	// generation covers every write committed before the call, so a
	// post-mutation reload can never resynchronize against a fetch that
	// started before the mutation.
	reloadMu    sync.Mutex
	inflight    chan struct{}
	inflightGen uint64
	writeGen    uint64
	lastLoadErr error
}

// NewStore returns an empty Store backed by api. emitter may be nil.
func NewStore(api DashboardAPI, emitter telemetry.Emitter) *Store {
	if emitter == nil {
		emitter = telemetry.Nop()
	}
	return &Store{api: api, emitter: emitter}
}

// LoadAll clears the local collections and repopulates them from the full
// application list. Records are deduplicated by ID (the backend may repeat
// them) and a 404 is a normal empty result, not an error. Concurrent calls
// coalesce onto a single in-flight reload, but never onto one that started
// before the caller's last committed mutation.
func (s *Store) LoadAll(ctx context.Context) error {
	s.reloadMu.Lock()
	need := s.writeGen
	for {
		ch := s.inflight
		if ch == nil {
			break
		}
		if s.inflightGen >= need {
			// The in-flight reload started after every write this caller
			// must observe; its result is good enough.
			s.reloadMu.Unlock()
			select {
			case <-ch:
				s.reloadMu.Lock()
				err := s.lastLoadErr
				s.reloadMu.Unlock()
				return err
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		// The in-flight reload predates a committed write and would hand
		// back a stale snapshot. Wait it out, then start a fresh one.
		s.reloadMu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.reloadMu.Lock()
	}
	ch := make(chan struct{})
	s.inflight = ch
	s.inflightGen = s.writeGen
	s.reloadMu.Unlock()

	err := s.reload(ctx)

	s.reloadMu.Lock()
	s.lastLoadErr = err
	s.inflight = nil
	close(ch)
	s.reloadMu.Unlock()
	return err
}

// commitWrite records a confirmed backend mutation so subsequent LoadAll
// calls refuse to coalesce onto a reload that started before it.
func (s *Store) commitWrite() {
	s.reloadMu.Lock()
	s.writeGen++
	s.reloadMu.Unlock()
}

func (s *Store) reload(ctx context.Context) error {
	s.mu.Lock()
	s.apps = nil
	s.keys = nil
	s.mu.Unlock()

	apps, keys, err := s.api.Applications(ctx)
	if err != nil {
		if gateway.IsNotFound(err) {
			// No applications yet.
			return nil
		}
		return err
	}
	s.mu.Lock()
	s.apps = dedupApps(apps)
	s.keys = dedupKeys(keys)
	s.mu.Unlock()
	return nil
}

func dedupApps(in []domain.App) []domain.App {
	seen := make(map[string]struct{}, len(in))
	out := make([]domain.App, 0, len(in))
	for _, a := range in {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}

func dedupKeys(in []domain.APIKey) []domain.APIKey {
	seen := make(map[string]struct{}, len(in))
	out := make([]domain.APIKey, 0, len(in))
	for _, k := range in {
		if _, dup := seen[k.ID]; dup {
			continue
		}
		seen[k.ID] = struct{}{}
		out = append(out, k)
	}
	return out
}

// CreateApp registers an application. Both fields are required after
// trimming. On success the store resynchronizes with a full reload rather
// than inserting locally, so server-computed fields never drift.
func (s *Store) CreateApp(ctx context.Context, name, description string, expiresPolicy int) error {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" || description == "" {
		return ErrNameRequired
	}
	s.mutMu.Lock()
	defer s.mutMu.Unlock()
	if err := s.api.CreateApplication(ctx, name, description, expiresPolicy); err != nil {
		return err
	}
	s.commitWrite()
	telemetry.EmitAsync(s.emitter, telemetry.Event{Type: telemetry.EventAppCreated, Message: name})
	return s.LoadAll(ctx)
}

// DeleteApp deletes an application. When the backend blocks the delete
// because keys are still attached (422), ErrDeleteBlocked is returned with
// the backend message and the local collections are left untouched.
func (s *Store) DeleteApp(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrAppRequired
	}
	s.mutMu.Lock()
	defer s.mutMu.Unlock()
	if err := s.api.DeleteApplication(ctx, id); err != nil {
		if gateway.IsConflict(err) {
			if msg := gateway.MessageOf(err); msg != "" {
				return fmt.Errorf("%w: %s", ErrDeleteBlocked, msg)
			}
			return ErrDeleteBlocked
		}
		return err
	}
	s.commitWrite()
	telemetry.EmitAsync(s.emitter, telemetry.Event{Type: telemetry.EventAppDeleted, ResourceID: id})
	return s.LoadAll(ctx)
}

// CreateAPIKey creates a key scoped to the given application.
func (s *Store) CreateAPIKey(ctx context.Context, appID, name string) error {
	if strings.TrimSpace(appID) == "" {
		return ErrAppRequired
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	s.mutMu.Lock()
	defer s.mutMu.Unlock()
	if err := s.api.CreateAPIKey(ctx, appID, name); err != nil {
		return err
	}
	s.commitWrite()
	telemetry.EmitAsync(s.emitter, telemetry.Event{Type: telemetry.EventKeyCreated, ResourceID: appID, Message: name})
	return s.LoadAll(ctx)
}

// DeleteAPIKey deletes a key.
func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	s.mutMu.Lock()
	defer s.mutMu.Unlock()
	if err := s.api.DeleteAPIKey(ctx, id); err != nil {
		return err
	}
	s.commitWrite()
	telemetry.EmitAsync(s.emitter, telemetry.Event{Type: telemetry.EventKeyDeleted, ResourceID: id})
	return s.LoadAll(ctx)
}

// ToggleAPIKeyStatus transitions a key to the requested activation state.
// The backend exposes distinct activate and deactivate endpoints; the target
// boolean picks which one is called. The cached status changes only through
// the reload after the call resolves.
func (s *Store) ToggleAPIKeyStatus(ctx context.Context, id string, nextActive bool) error {
	s.mutMu.Lock()
	defer s.mutMu.Unlock()
	var err error
	if nextActive {
		err = s.api.ActivateAPIKey(ctx, id)
	} else {
		err = s.api.DeactivateAPIKey(ctx, id)
	}
	if err != nil {
		return err
	}
	s.commitWrite()
	telemetry.EmitAsync(s.emitter, telemetry.Event{Type: telemetry.EventKeyToggled, ResourceID: id})
	return s.LoadAll(ctx)
}

// Apps returns a copy of the cached applications.
func (s *Store) Apps() []domain.App {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.App, len(s.apps))
	copy(out, s.apps)
	return out
}

// Keys returns a copy of the cached API keys.
func (s *Store) Keys() []domain.APIKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.APIKey, len(s.keys))
	copy(out, s.keys)
	return out
}

// KeysForApp returns the cached keys referencing the given application.
func (s *Store) KeysForApp(appID string) []domain.APIKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.APIKey
	for _, k := range s.keys {
		if k.AppID == appID {
			out = append(out, k)
		}
	}
	return out
}

// AppByID returns the cached application with the given ID.
func (s *Store) AppByID(id string) (domain.App, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.apps {
		if a.ID == id {
			return a, true
		}
	}
	return domain.App{}, false
}
