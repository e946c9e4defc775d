package resource

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"scratcha-console/client/internal/gateway"
	"scratcha-console/client/internal/resource/domain"
	"scratcha-console/client/internal/stubserver"
)

// fakeDashboard is an in-memory DashboardAPI with programmable failures
// and per-method call counts.
type fakeDashboard struct {
	mu           sync.Mutex
	apps         []domain.App
	keys         []domain.APIKey
	listErr      error
	deleteAppErr error
	listCalls    int
	activates    int
	deactivates  int
	listStarted  chan struct{}
	listRelease  chan struct{}
	startedOnce  sync.Once
}

func (f *fakeDashboard) Applications(ctx context.Context) ([]domain.App, []domain.APIKey, error) {
	// Snapshot at call entry: a response held back by listRelease reflects
	// the data as it was when the fetch started, like a real in-flight
	// response would.
	f.mu.Lock()
	f.listCalls++
	listErr := f.listErr
	apps := append([]domain.App(nil), f.apps...)
	keys := append([]domain.APIKey(nil), f.keys...)
	f.mu.Unlock()
	if f.listStarted != nil {
		f.startedOnce.Do(func() { close(f.listStarted) })
	}
	if f.listRelease != nil {
		select {
		case <-f.listRelease:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if listErr != nil {
		return nil, nil, listErr
	}
	return apps, keys, nil
}

func (f *fakeDashboard) CreateApplication(ctx context.Context, name, description string, expiresPolicy int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apps = append(f.apps, domain.App{ID: "app-new", Name: name, Description: description})
	return nil
}

func (f *fakeDashboard) DeleteApplication(ctx context.Context, id string) error {
	if f.deleteAppErr != nil {
		return f.deleteAppErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.apps[:0]
	for _, a := range f.apps {
		if a.ID != id {
			out = append(out, a)
		}
	}
	f.apps = out
	return nil
}

func (f *fakeDashboard) CreateAPIKey(ctx context.Context, appID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, domain.APIKey{ID: "key-new", AppID: appID, Name: name, Status: domain.StatusInactive})
	return nil
}

func (f *fakeDashboard) DeleteAPIKey(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.keys[:0]
	for _, k := range f.keys {
		if k.ID != id {
			out = append(out, k)
		}
	}
	f.keys = out
	return nil
}

func (f *fakeDashboard) setKeyStatus(id string, status domain.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.keys {
		if f.keys[i].ID == id {
			f.keys[i].Status = status
		}
	}
}

func (f *fakeDashboard) ActivateAPIKey(ctx context.Context, id string) error {
	f.mu.Lock()
	f.activates++
	f.mu.Unlock()
	f.setKeyStatus(id, domain.StatusActive)
	return nil
}

func (f *fakeDashboard) DeactivateAPIKey(ctx context.Context, id string) error {
	f.mu.Lock()
	f.deactivates++
	f.mu.Unlock()
	f.setKeyStatus(id, domain.StatusInactive)
	return nil
}

func TestLoadAll_PopulatesCollections(t *testing.T) {
	f := &fakeDashboard{
		apps: []domain.App{{ID: "a1", Name: "site one"}},
		keys: []domain.APIKey{{ID: "k1", AppID: "a1", Name: "prod", Status: domain.StatusActive}},
	}
	s := NewStore(f, nil)
	if err := s.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if got := len(s.Apps()); got != 1 {
		t.Errorf("len(Apps) = %d, want 1", got)
	}
	if got := len(s.KeysForApp("a1")); got != 1 {
		t.Errorf("len(KeysForApp) = %d, want 1", got)
	}
	if _, ok := s.AppByID("a1"); !ok {
		t.Error("AppByID(a1) should be found")
	}
}

func TestLoadAll_NotFoundMeansEmpty(t *testing.T) {
	f := &fakeDashboard{listErr: &gateway.Error{Status: 404, Kind: gateway.KindNotFound}}
	s := NewStore(f, nil)
	if err := s.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll on 404 = %v, want nil (empty account)", err)
	}
	if got := len(s.Apps()); got != 0 {
		t.Errorf("len(Apps) = %d, want 0", got)
	}
}

func TestLoadAll_DeduplicatesByID(t *testing.T) {
	f := &fakeDashboard{
		apps: []domain.App{
			{ID: "a1", Name: "first copy"},
			{ID: "a1", Name: "second copy"},
			{ID: "a2", Name: "other"},
		},
		keys: []domain.APIKey{
			{ID: "k1", AppID: "a1", Name: "dup"},
			{ID: "k1", AppID: "a1", Name: "dup again"},
		},
	}
	s := NewStore(f, nil)
	if err := s.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	apps := s.Apps()
	if len(apps) != 2 {
		t.Fatalf("len(Apps) = %d, want 2", len(apps))
	}
	// Keep-first: the earliest record for an ID wins.
	if apps[0].ID != "a1" || apps[0].Name != "first copy" {
		t.Errorf("apps[0] = %+v, want first copy of a1", apps[0])
	}
	if got := len(s.Keys()); got != 1 {
		t.Errorf("len(Keys) = %d, want 1", got)
	}
}

func TestLoadAll_ConcurrentCallersCoalesce(t *testing.T) {
	f := &fakeDashboard{
		apps:        []domain.App{{ID: "a1", Name: "one"}},
		listStarted: make(chan struct{}),
		listRelease: make(chan struct{}),
	}
	s := NewStore(f, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.LoadAll(context.Background()); err != nil {
			t.Errorf("leader LoadAll: %v", err)
		}
	}()
	<-f.listStarted

	const followers = 8
	for i := 0; i < followers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.LoadAll(context.Background()); err != nil {
				t.Errorf("follower LoadAll: %v", err)
			}
		}()
	}
	// Give the followers a moment to park on the in-flight reload.
	time.Sleep(20 * time.Millisecond)
	close(f.listRelease)
	wg.Wait()

	f.mu.Lock()
	calls := f.listCalls
	f.mu.Unlock()
	if calls != 1 {
		t.Errorf("Applications called %d times, want 1 (coalesced)", calls)
	}
}

func TestLoadAll_MutationNeverCoalescesOntoStaleReload(t *testing.T) {
	f := &fakeDashboard{
		listStarted: make(chan struct{}),
		listRelease: make(chan struct{}),
	}
	s := NewStore(f, nil)

	// Hold a reload in flight that snapshotted the backend before the
	// mutation below commits.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.LoadAll(context.Background()); err != nil {
			t.Errorf("stale LoadAll: %v", err)
		}
	}()
	<-f.listStarted

	done := make(chan error, 1)
	go func() {
		done <- s.CreateApp(context.Background(), "new site", "created mid-reload", 0)
	}()
	// Let the create commit and reach its post-mutation reload while the
	// stale fetch is still in flight.
	time.Sleep(20 * time.Millisecond)
	close(f.listRelease)

	if err := <-done; err != nil {
		t.Fatalf("CreateApp: %v", err)
	}
	wg.Wait()
	if _, ok := s.AppByID("app-new"); !ok {
		t.Errorf("created record missing after successful CreateApp: apps = %v", s.Apps())
	}
}

func TestCreateApp_Validation(t *testing.T) {
	s := NewStore(&fakeDashboard{}, nil)
	if err := s.CreateApp(context.Background(), "", "desc", 0); !errors.Is(err, ErrNameRequired) {
		t.Errorf("empty name: err = %v, want ErrNameRequired", err)
	}
	if err := s.CreateApp(context.Background(), "name", "   ", 0); !errors.Is(err, ErrNameRequired) {
		t.Errorf("blank description: err = %v, want ErrNameRequired", err)
	}
}

func TestCreateApp_ReloadsAfterMutation(t *testing.T) {
	f := &fakeDashboard{}
	s := NewStore(f, nil)
	if err := s.CreateApp(context.Background(), "new site", "a captcha site", 0); err != nil {
		t.Fatalf("CreateApp: %v", err)
	}
	if _, ok := s.AppByID("app-new"); !ok {
		t.Error("created app should appear after the post-mutation reload")
	}
}

func TestDeleteApp_BlockedLeavesCollectionsUntouched(t *testing.T) {
	f := &fakeDashboard{
		apps: []domain.App{{ID: "a1", Name: "site"}},
		keys: []domain.APIKey{{ID: "k1", AppID: "a1", Name: "prod"}},
	}
	s := NewStore(f, nil)
	if err := s.LoadAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.deleteAppErr = &gateway.Error{
		Status:  422,
		Kind:    gateway.KindConflict,
		Message: "application has dependent API keys",
	}
	err := s.DeleteApp(context.Background(), "a1")
	if !errors.Is(err, ErrDeleteBlocked) {
		t.Fatalf("DeleteApp err = %v, want ErrDeleteBlocked", err)
	}
	if got := err.Error(); got == ErrDeleteBlocked.Error() {
		t.Error("blocked delete should carry the backend's message")
	}
	if got := len(s.Apps()); got != 1 {
		t.Errorf("len(Apps) = %d after blocked delete, want 1 (unchanged)", got)
	}
	if got := len(s.Keys()); got != 1 {
		t.Errorf("len(Keys) = %d after blocked delete, want 1 (unchanged)", got)
	}
}

func TestDeleteApp_SucceedsAfterKeysRemoved(t *testing.T) {
	f := &fakeDashboard{
		apps: []domain.App{{ID: "a1", Name: "site"}},
		keys: []domain.APIKey{{ID: "k1", AppID: "a1", Name: "prod"}},
	}
	s := NewStore(f, nil)
	if err := s.LoadAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteAPIKey(context.Background(), "k1"); err != nil {
		t.Fatalf("DeleteAPIKey: %v", err)
	}
	if err := s.DeleteApp(context.Background(), "a1"); err != nil {
		t.Fatalf("DeleteApp: %v", err)
	}
	if got := len(s.Apps()); got != 0 {
		t.Errorf("len(Apps) = %d, want 0", got)
	}
}

func TestCreateAPIKey_Validation(t *testing.T) {
	s := NewStore(&fakeDashboard{}, nil)
	if err := s.CreateAPIKey(context.Background(), "", "prod"); !errors.Is(err, ErrAppRequired) {
		t.Errorf("missing app: err = %v, want ErrAppRequired", err)
	}
	if err := s.CreateAPIKey(context.Background(), "a1", "  "); !errors.Is(err, ErrNameRequired) {
		t.Errorf("blank name: err = %v, want ErrNameRequired", err)
	}
}

func TestToggleAPIKeyStatus_CallsMatchingEndpointOnce(t *testing.T) {
	f := &fakeDashboard{
		apps: []domain.App{{ID: "a1", Name: "site"}},
		keys: []domain.APIKey{{ID: "k1", AppID: "a1", Name: "prod", Status: domain.StatusInactive}},
	}
	s := NewStore(f, nil)
	if err := s.LoadAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := s.ToggleAPIKeyStatus(context.Background(), "k1", true); err != nil {
		t.Fatalf("ToggleAPIKeyStatus: %v", err)
	}
	f.mu.Lock()
	activates, deactivates := f.activates, f.deactivates
	f.mu.Unlock()
	if activates != 1 || deactivates != 0 {
		t.Errorf("activates = %d, deactivates = %d, want 1 and 0", activates, deactivates)
	}
	keys := s.Keys()
	if len(keys) != 1 || keys[0].Status != domain.StatusActive {
		t.Errorf("cached status = %v, want active after reload", keys)
	}

	if err := s.ToggleAPIKeyStatus(context.Background(), "k1", false); err != nil {
		t.Fatalf("ToggleAPIKeyStatus: %v", err)
	}
	f.mu.Lock()
	deactivates = f.deactivates
	f.mu.Unlock()
	if deactivates != 1 {
		t.Errorf("deactivates = %d, want 1", deactivates)
	}
}

// TestStore_AgainstStubBackend drives the store through a real gateway
// against the in-process stub.
func TestStore_AgainstStubBackend(t *testing.T) {
	stub := stubserver.New(stubserver.Options{DuplicateListings: true})
	srv := httptest.NewServer(stub.Handler())
	defer srv.Close()
	stub.SeedUser("owner@example.com", "12345678", "owner", nil, nil)

	token := ""
	gw := gateway.New(srv.URL, 5*time.Second, func() string { return token })
	grant, err := gw.Login(context.Background(), "owner@example.com", "12345678")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	token = grant.TokenType + " " + grant.AccessToken

	s := NewStore(gw, nil)
	if err := s.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll on empty account: %v", err)
	}
	if got := len(s.Apps()); got != 0 {
		t.Fatalf("len(Apps) = %d, want 0", got)
	}

	if err := s.CreateApp(context.Background(), "demo site", "integration fixture", 0); err != nil {
		t.Fatalf("CreateApp: %v", err)
	}
	apps := s.Apps()
	if len(apps) != 1 {
		t.Fatalf("len(Apps) = %d, want 1 (duplicate listings must be deduplicated)", len(apps))
	}
	appID := apps[0].ID

	if err := s.CreateAPIKey(context.Background(), appID, "prod key"); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	keys := s.KeysForApp(appID)
	if len(keys) != 1 {
		t.Fatalf("len(KeysForApp) = %d, want 1", len(keys))
	}

	err = s.DeleteApp(context.Background(), appID)
	if !errors.Is(err, ErrDeleteBlocked) {
		t.Fatalf("DeleteApp with attached key: err = %v, want ErrDeleteBlocked", err)
	}

	if err := s.ToggleAPIKeyStatus(context.Background(), keys[0].ID, true); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if got := s.KeysForApp(appID)[0].Status; got != domain.StatusActive {
		t.Errorf("Status = %q, want active", got)
	}

	if err := s.DeleteAPIKey(context.Background(), keys[0].ID); err != nil {
		t.Fatalf("DeleteAPIKey: %v", err)
	}
	if err := s.DeleteApp(context.Background(), appID); err != nil {
		t.Fatalf("DeleteApp after key removal: %v", err)
	}
	if got := len(s.Apps()); got != 0 {
		t.Errorf("len(Apps) = %d after delete, want 0", got)
	}
}
