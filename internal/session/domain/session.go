// Package domain defines the session entity and its lifecycle states.
package domain

import (
	"errors"
	"time"
)

// User is the authenticated user's profile as returned by the backend.
type User struct {
	ID          string   `json:"id"`
	UserName    string   `json:"username"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// HasRole reports whether the user carries the given role. False for a nil user.
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasPermission reports whether the user carries the given permission. False for a nil user.
func (u *User) HasPermission(permission string) bool {
	if u == nil {
		return false
	}
	for _, p := range u.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// State is the session lifecycle state derived from the stored fields.
type State string

const (
	// StateAnonymous means no token is held; the natural rest state.
	StateAnonymous State = "anonymous"
	// StatePending means a token is held but the profile has not resolved yet.
	StatePending State = "pending"
	// StateActive means both token and profile are present.
	StateActive State = "active"
	// StateDegraded means the token is held but the profile was rejected (403) and cleared.
	StateDegraded State = "degraded"
)

// Session is the authenticated-identity state of the running client.
type Session struct {
	// Token is the bearer credential, possibly carrying a "Bearer " scheme prefix. Empty when anonymous.
	Token string `json:"token,omitempty"`
	// User is the resolved profile; nil until getProfile succeeds.
	User *User `json:"user,omitempty"`
	// IsAuthenticated must never be true while Token is empty.
	IsAuthenticated bool `json:"isAuthenticated"`
	// Degraded marks the soft-degraded state entered on a 403 profile fetch.
	Degraded bool `json:"degraded,omitempty"`
	// LastActivity is the time of the last confirmed interaction or successful auth call.
	LastActivity time.Time `json:"lastActivity,omitzero"`
}

// State derives the lifecycle state. Token decides anonymous vs not; User decides active.
func (s *Session) State() State {
	switch {
	case s.Token == "":
		return StateAnonymous
	case s.User != nil:
		return StateActive
	case s.Degraded:
		return StateDegraded
	default:
		return StatePending
	}
}

// Validate checks the session invariant: authenticated implies a token is held.
func (s *Session) Validate() error {
	if s.IsAuthenticated && s.Token == "" {
		return errors.New("session: authenticated without a token")
	}
	return nil
}

// Clear resets the session to the anonymous rest state.
func (s *Session) Clear() {
	*s = Session{}
}
