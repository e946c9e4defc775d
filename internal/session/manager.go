// Package session is the single authority for who is logged in and what they
// may do. It owns the session lifecycle (anonymous, pending, active,
// degraded), persists state through the state store, and classifies auth
// failures for callers.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"scratcha-console/client/internal/gateway"
	"scratcha-console/client/internal/session/domain"
	"scratcha-console/client/internal/state"
	"scratcha-console/client/internal/telemetry"
)

// Sentinel errors returned by the manager; callers map them to user-facing messages.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrSessionExpired     = errors.New("session expired")
)

// AuthAPI is the minimal gateway surface the session manager needs.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*gateway.TokenGrant, error)
	Signup(ctx context.Context, email, password, userName string) (*gateway.TokenGrant, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (*domain.User, error)
	UpdateUserName(ctx context.Context, userName string) error
	DeleteAccount(ctx context.Context) error
}

// Manager holds the current session and orchestrates login, logout, profile
// refresh, and expiry checks. All mutation goes through its methods; readers
// get copies via Snapshot.
type Manager struct {
	api     AuthAPI
	store   state.Store
	emitter telemetry.Emitter
	maxIdle time.Duration

	mu   sync.Mutex
	sess domain.Session

	initOnce sync.Once
	initErr  error

	nowF func() time.Time
}

// NewManager returns a Manager. store may be nil for an ephemeral session;
// emitter may be nil to disable event emission. maxIdle <= 0 falls back to 24h.
func NewManager(api AuthAPI, store state.Store, emitter telemetry.Emitter, maxIdle time.Duration) *Manager {
	if emitter == nil {
		emitter = telemetry.Nop()
	}
	if maxIdle <= 0 {
		maxIdle = 24 * time.Hour
	}
	return &Manager{
		api:     api,
		store:   store,
		emitter: emitter,
		maxIdle: maxIdle,
		nowF:    func() time.Time { return time.Now().UTC() },
	}
}

// Login authenticates with email/password, stores the issued token, and
// immediately resolves the profile. A transient or 403 profile failure does
// not fail the login; the session stays pending (or degraded) until it
// resolves. A 401 on that first fetch means the token is already dead and
// the login fails.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return ErrInvalidCredentials
	}
	grant, err := m.api.Login(ctx, email, password)
	if err != nil {
		telemetry.EmitAsync(m.emitter, telemetry.Event{Type: telemetry.EventLoginFailure, Message: email})
		if gateway.IsUnauthorized(err) {
			// A 401 on an explicit login attempt is a credential failure,
			// never a signal to tear down any existing session.
			if msg := gateway.MessageOf(err); msg != "" {
				return fmt.Errorf("%w: %s", ErrInvalidCredentials, msg)
			}
			return ErrInvalidCredentials
		}
		return err
	}
	m.adoptGrant(ctx, grant)
	if err := m.GetProfile(ctx); err != nil {
		if gateway.IsUnauthorized(err) {
			// The backend rejected its own freshly issued token; GetProfile
			// already cleared the session, so the login failed outright.
			telemetry.EmitAsync(m.emitter, telemetry.Event{Type: telemetry.EventLoginFailure, Message: email})
			return err
		}
		log.Printf("session: profile fetch after login failed: %v", err)
	}
	telemetry.EmitAsync(m.emitter, telemetry.Event{Type: telemetry.EventLoginSuccess, UserID: m.userID()})
	return nil
}

// Signup registers a new account; on success the same token-then-profile
// contract as Login applies.
func (m *Manager) Signup(ctx context.Context, email, password, userName string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return ErrInvalidCredentials
	}
	grant, err := m.api.Signup(ctx, email, password, strings.TrimSpace(userName))
	if err != nil {
		if gateway.IsUnauthorized(err) {
			return ErrInvalidCredentials
		}
		return err
	}
	m.adoptGrant(ctx, grant)
	if err := m.GetProfile(ctx); err != nil {
		if gateway.IsUnauthorized(err) {
			return err
		}
		log.Printf("session: profile fetch after signup failed: %v", err)
	}
	telemetry.EmitAsync(m.emitter, telemetry.Event{Type: telemetry.EventSignupSuccess, UserID: m.userID()})
	return nil
}

// adoptGrant stores the issued token and enters the pending state.
func (m *Manager) adoptGrant(ctx context.Context, grant *gateway.TokenGrant) {
	token := grant.AccessToken
	if grant.TokenType != "" {
		token = grant.TokenType + " " + grant.AccessToken
	}
	m.mu.Lock()
	m.sess = domain.Session{
		Token:           token,
		IsAuthenticated: true,
		LastActivity:    m.nowF(),
	}
	m.persistLocked(ctx)
	m.mu.Unlock()
}

// Logout invalidates the session server-side (best effort) and then
// unconditionally clears all session fields. After return the session is
// anonymous regardless of network outcome.
func (m *Manager) Logout(ctx context.Context) {
	userID := m.userID()
	m.mu.Lock()
	hadToken := m.sess.Token != ""
	m.mu.Unlock()
	if hadToken {
		if err := m.api.Logout(ctx); err != nil {
			log.Printf("session: server-side logout failed: %v", err)
		}
	}
	m.clearSession(ctx)
	if hadToken {
		telemetry.EmitAsync(m.emitter, telemetry.Event{Type: telemetry.EventLogout, UserID: userID})
	}
}

// GetProfile fetches the profile for the stored token. A 401 clears the
// whole session (the credential is gone); a 403 clears only the user and
// keeps the token (soft-degraded, the profile call was rejected for this
// instance); any other failure leaves the session untouched for retry.
func (m *Manager) GetProfile(ctx context.Context) error {
	m.mu.Lock()
	tok := m.sess.Token
	m.mu.Unlock()
	if tok == "" {
		return ErrNotAuthenticated
	}
	user, err := m.api.Profile(ctx)
	if err != nil {
		switch {
		case gateway.IsUnauthorized(err):
			m.clearSession(ctx)
		case gateway.IsForbidden(err):
			m.mu.Lock()
			m.sess.User = nil
			m.sess.Degraded = true
			m.persistLocked(ctx)
			m.mu.Unlock()
		}
		return err
	}
	m.mu.Lock()
	m.sess.User = user
	m.sess.IsAuthenticated = true
	m.sess.Degraded = false
	m.sess.LastActivity = m.nowF()
	m.persistLocked(ctx)
	m.mu.Unlock()
	return nil
}

// UpdateUserName patches the display name and mirrors it locally without a
// full profile refetch.
func (m *Manager) UpdateUserName(ctx context.Context, userName string) error {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return errors.New("session: user name is required")
	}
	m.mu.Lock()
	tok := m.sess.Token
	m.mu.Unlock()
	if tok == "" {
		return ErrNotAuthenticated
	}
	if err := m.api.UpdateUserName(ctx, userName); err != nil {
		return err
	}
	m.mu.Lock()
	if m.sess.User != nil {
		m.sess.User.UserName = userName
	}
	m.sess.LastActivity = m.nowF()
	m.persistLocked(ctx)
	m.mu.Unlock()
	return nil
}

// DeleteAccount soft-deletes the account server-side, then clears the local
// session.
func (m *Manager) DeleteAccount(ctx context.Context) error {
	m.mu.Lock()
	tok := m.sess.Token
	m.mu.Unlock()
	if tok == "" {
		return ErrNotAuthenticated
	}
	if err := m.api.DeleteAccount(ctx); err != nil {
		return err
	}
	m.clearSession(ctx)
	return nil
}

// CheckSessionExpiry reports whether the session sat idle longer than the
// configured maximum. An expired session is forcibly logged out.
func (m *Manager) CheckSessionExpiry(ctx context.Context) bool {
	m.mu.Lock()
	last := m.sess.LastActivity
	active := m.sess.Token != ""
	m.mu.Unlock()
	if !active || last.IsZero() {
		return false
	}
	if m.nowF().Sub(last) <= m.maxIdle {
		return false
	}
	userID := m.userID()
	m.Logout(ctx)
	telemetry.EmitAsync(m.emitter, telemetry.Event{Type: telemetry.EventSessionExpired, UserID: userID})
	return true
}

// UpdateActivity stamps lastActivity to now. No-op when anonymous.
func (m *Manager) UpdateActivity(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.Token == "" {
		return
	}
	m.sess.LastActivity = m.nowF()
	m.persistLocked(ctx)
}

// HasRole reports whether the resolved user carries role. False when no user.
func (m *Manager) HasRole(role string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.User.HasRole(role)
}

// HasPermission reports whether the resolved user carries permission. False when no user.
func (m *Manager) HasPermission(permission string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.User.HasPermission(permission)
}

// Token returns the stored bearer credential, or "" when anonymous.
// Satisfies gateway.TokenFunc.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.Token
}

// State returns the derived lifecycle state.
func (m *Manager) State() domain.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.State()
}

// Snapshot returns a copy of the current session for read-only fan-out.
func (m *Manager) Snapshot() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := m.sess
	if m.sess.User != nil {
		u := *m.sess.User
		cp.User = &u
	}
	return cp
}

// TokenExpiry parses the stored token as a JWT without verifying it and
// returns the exp claim. ok is false when no token is held or the token does
// not carry a parseable expiry. Introspection only; validation is the
// backend's job.
func (m *Manager) TokenExpiry() (time.Time, bool) {
	tok := strings.TrimPrefix(m.Token(), "Bearer ")
	if tok == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// clearSession resets to anonymous and removes the persisted record.
func (m *Manager) clearSession(ctx context.Context) {
	m.mu.Lock()
	m.sess.Clear()
	m.mu.Unlock()
	if m.store != nil {
		if err := m.store.Clear(ctx); err != nil {
			log.Printf("session: clear persisted state: %v", err)
		}
	}
}

// persistLocked writes the session through the state store. Callers hold mu.
// Persistence failures are logged; they never fail the auth operation.
func (m *Manager) persistLocked(ctx context.Context) {
	if m.store == nil {
		return
	}
	cp := m.sess
	if m.sess.User != nil {
		u := *m.sess.User
		cp.User = &u
	}
	if err := m.store.Save(ctx, &cp); err != nil {
		log.Printf("session: persist state: %v", err)
	}
}

func (m *Manager) userID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.User == nil {
		return ""
	}
	return m.sess.User.ID
}
