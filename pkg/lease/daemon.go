package lease

import (
	"context"
	"time"
)

// RunDaemon scans for expired/heartbeat-missed leases at a fixed
// interval until ctx is cancelled, grounded on spec.md §4.8's "a daemon
// scans for now > expected and publishes RELEASE" description.
func (m *Manager) RunDaemon(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ScanExpired()
		}
	}
}
