package client

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Poller fetches full snapshots on an interval. It is the safety net
// under the WebSocket feed: anything a dropped socket missed is
// repaired on the next cycle, and each poll doubles as a presence
// heartbeat on the server.
type Poller struct {
	remote    Remote
	profileID string
	interval  time.Duration
	session   *Session
	logger    *zap.Logger
}

// NewPoller creates a poller delivering into session.
func NewPoller(remote Remote, profileID string, interval time.Duration, session *Session, logger *zap.Logger) *Poller {
	return &Poller{
		remote:    remote,
		profileID: profileID,
		interval:  interval,
		session:   session,
		logger:    logger,
	}
}

// Run polls until ctx is canceled. Failures are logged and retried on
// the next tick, without backoff.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	snap, err := p.remote.Snapshot(ctx, p.profileID)
	if err != nil {
		p.logger.Debug("poll failed", zap.Error(err))
		return
	}
	p.session.Deliver(SnapshotReceived{Snapshot: snap})
}
