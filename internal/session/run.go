package session

import (
	"context"
	"time"
)

// Run drives the periodic session maintenance: an activity ping while
// authenticated and a session-expiry check. It only touches session fields
// and returns when ctx is done. Intervals <= 0 fall back to 5m and 1h.
func (m *Manager) Run(ctx context.Context, pingInterval, expiryInterval time.Duration) {
	if pingInterval <= 0 {
		pingInterval = 5 * time.Minute
	}
	if expiryInterval <= 0 {
		expiryInterval = time.Hour
	}
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	expiry := time.NewTicker(expiryInterval)
	defer expiry.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			m.UpdateActivity(ctx)
		case <-expiry.C:
			m.CheckSessionExpiry(ctx)
		}
	}
}
