package domain

import (
	"strings"
	"time"
)

// APIKey is a secret key scoped to an application. AppID is a lookup
// reference only; the key does not own the application.
type APIKey struct {
	ID       string    `json:"id"`
	AppID    string    `json:"appId"`
	Name     string    `json:"name"`
	Key      string    `json:"key"`
	Status   Status    `json:"status"`
	LastUsed time.Time `json:"lastUsed,omitzero"`
}

// MaskKey partially redacts a secret for display: first 8 characters, an
// ellipsis, then the last 4. Keys shorter than 12 characters are fully
// redacted. Display only; never use the result for any decision.
func MaskKey(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) < 12 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:8] + "..." + secret[len(secret)-4:]
}
