package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"scratcha-console/client/internal/gateway"
	"scratcha-console/client/internal/session/domain"
	"scratcha-console/client/internal/state"
)

func TestInitialize_EmptyStoreStaysAnonymous(t *testing.T) {
	m := NewManager(&fakeAPI{}, state.NewMemoryStore(), nil, 24*time.Hour)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := m.State(); got != domain.StateAnonymous {
		t.Errorf("State = %q, want anonymous", got)
	}
}

func TestInitialize_NilStoreStaysAnonymous(t *testing.T) {
	m := NewManager(&fakeAPI{}, nil, nil, 24*time.Hour)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := m.State(); got != domain.StateAnonymous {
		t.Errorf("State = %q, want anonymous", got)
	}
}

func TestInitialize_FullSessionAcceptedWithoutRefetch(t *testing.T) {
	store := state.NewMemoryStore()
	sess := &domain.Session{
		Token:           "Bearer persisted",
		IsAuthenticated: true,
		User:            &domain.User{ID: "u1", UserName: "restored", Email: "r@example.com"},
		LastActivity:    time.Now().UTC(),
	}
	if err := store.Save(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	api := &fakeAPI{}
	m := NewManager(api, store, nil, 24*time.Hour)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := m.State(); got != domain.StateActive {
		t.Errorf("State = %q, want active", got)
	}
	if api.profileCalls != 0 {
		t.Errorf("profileCalls = %d, want 0 (no refetch for a fully resolved session)", api.profileCalls)
	}
	if got := m.Snapshot().User.UserName; got != "restored" {
		t.Errorf("UserName = %q, want restored", got)
	}
}

func TestInitialize_TokenWithoutUserResolvesProfile(t *testing.T) {
	store := state.NewMemoryStore()
	if err := store.Save(context.Background(), &domain.Session{
		Token:           "Bearer persisted",
		IsAuthenticated: true,
		LastActivity:    time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
	api := &fakeAPI{user: &domain.User{ID: "u1", UserName: "resolved", Email: "r@example.com"}}
	m := NewManager(api, store, nil, 24*time.Hour)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := m.State(); got != domain.StateActive {
		t.Errorf("State = %q, want active", got)
	}
	if api.profileCalls != 1 {
		t.Errorf("profileCalls = %d, want 1", api.profileCalls)
	}
}

func TestInitialize_StaleTokenClearsSession(t *testing.T) {
	store := state.NewMemoryStore()
	if err := store.Save(context.Background(), &domain.Session{
		Token:           "Bearer stale",
		IsAuthenticated: true,
	}); err != nil {
		t.Fatal(err)
	}
	api := &fakeAPI{profileErr: &gateway.Error{Status: 401, Kind: gateway.KindUnauthorized}}
	m := NewManager(api, store, nil, 24*time.Hour)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := m.State(); got != domain.StateAnonymous {
		t.Errorf("State = %q, want anonymous after stale token", got)
	}
	if _, ok, _ := store.Load(context.Background()); ok {
		t.Error("persisted state should be cleared after a 401 during restore")
	}
}

func TestInitialize_TransientResolveKeepsPending(t *testing.T) {
	store := state.NewMemoryStore()
	if err := store.Save(context.Background(), &domain.Session{
		Token:           "Bearer held",
		IsAuthenticated: true,
	}); err != nil {
		t.Fatal(err)
	}
	api := &fakeAPI{profileErr: &gateway.Error{Kind: gateway.KindTransient, Err: errors.New("timeout")}}
	m := NewManager(api, store, nil, 24*time.Hour)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := m.State(); got != domain.StatePending {
		t.Errorf("State = %q, want pending when resolution is only delayed", got)
	}
	if m.Token() == "" {
		t.Error("token must survive a transient resolve failure")
	}
}

func TestInitialize_AuthenticatedWithoutTokenForcesAnonymous(t *testing.T) {
	store := state.NewMemoryStore()
	if err := store.Save(context.Background(), &domain.Session{
		IsAuthenticated: true,
		User:            &domain.User{ID: "ghost"},
	}); err != nil {
		t.Fatal(err)
	}
	m := NewManager(&fakeAPI{}, store, nil, 24*time.Hour)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := m.State(); got != domain.StateAnonymous {
		t.Errorf("State = %q, want anonymous for authenticated-without-token", got)
	}
	if _, ok, _ := store.Load(context.Background()); ok {
		t.Error("inconsistent persisted state should be purged")
	}
}

func TestInitialize_LoadErrorFallsBackToAnonymous(t *testing.T) {
	m := NewManager(&fakeAPI{}, &failingStore{}, nil, 24*time.Hour)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize should swallow restore errors, got %v", err)
	}
	if got := m.State(); got != domain.StateAnonymous {
		t.Errorf("State = %q, want anonymous", got)
	}
}

func TestInitialize_ConcurrentCallersRunOnce(t *testing.T) {
	store := state.NewMemoryStore()
	if err := store.Save(context.Background(), &domain.Session{
		Token:           "Bearer persisted",
		IsAuthenticated: true,
	}); err != nil {
		t.Fatal(err)
	}
	api := &slowProfileAPI{fakeAPI: fakeAPI{user: &domain.User{ID: "u1", UserName: "once"}}}
	m := NewManager(api, store, nil, 24*time.Hour)

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Initialize(context.Background()); err != nil {
				t.Errorf("Initialize: %v", err)
			}
			if got := m.State(); got != domain.StateActive {
				t.Errorf("State = %q, want active after Initialize returns", got)
			}
		}()
	}
	wg.Wait()
	if got := api.calls(); got != 1 {
		t.Errorf("profile resolved %d times, want exactly 1", got)
	}
}

// failingStore simulates unreadable persisted state.
type failingStore struct{ cleared bool }

func (f *failingStore) Load(ctx context.Context) (*domain.Session, bool, error) {
	return nil, false, errors.New("corrupt state")
}
func (f *failingStore) Save(ctx context.Context, s *domain.Session) error { return nil }
func (f *failingStore) Clear(ctx context.Context) error                   { f.cleared = true; return nil }

// slowProfileAPI adds latency and call counting on top of fakeAPI.
type slowProfileAPI struct {
	fakeAPI
	mu sync.Mutex
}

func (s *slowProfileAPI) Profile(ctx context.Context) (*domain.User, error) {
	time.Sleep(20 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fakeAPI.Profile(ctx)
}

func (s *slowProfileAPI) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fakeAPI.profileCalls
}
