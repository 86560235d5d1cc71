// Package jobs implements the periodic session sweep (C10): ping and
// timeout enforcement, running once per second.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/dungeongate/bancho/internal/player"
	"github.com/dungeongate/bancho/internal/protocol"
	"github.com/dungeongate/bancho/internal/registry"
)

const (
	sweepInterval = time.Second
	pingInterval  = 10 * time.Second
	timeout       = 45 * time.Second
)

// Disconnector runs the full connectionLost chain for a timed-out session:
// registry removal, departure from every channel/match/spectator
// relationship, a USER_QUIT broadcast, and closing the underlying
// transport connection so a blocked read unblocks. *bancho.Service
// satisfies this.
type Disconnector interface {
	Disconnect(ctx context.Context, s *player.Session)
}

// Sweep owns the periodic liveness check over every registered session.
type Sweep struct {
	registry     *registry.Registry
	disconnector Disconnector
	logger       *slog.Logger
}

// NewSweep constructs a Sweep bound to the session registry it walks and
// the Disconnector it hands timed-out sessions to.
func NewSweep(reg *registry.Registry, disconnector Disconnector, logger *slog.Logger) *Sweep {
	return &Sweep{registry: reg, disconnector: disconnector, logger: logger}
}

// Run blocks, ticking once per second, until ctx is cancelled.
func (sw *Sweep) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("sweep stopped")
			return
		case <-ticker.C:
			sw.tick()
		}
	}
}

func (sw *Sweep) tick() {
	now := time.Now()
	for _, s := range sw.registry.All() {
		if s.IsBot() || s.Closed() {
			continue
		}
		idle := now.Sub(s.LastResponse())

		if idle >= timeout {
			sw.logger.Debug("session timed out", "user_id", s.ID(), "idle", idle)
			sw.disconnector.Disconnect(context.Background(), s)
			continue
		}

		if s.Transport() == player.TransportTCP && idle >= pingInterval {
			_ = s.SendFrame(protocol.RespPong, nil)
		}
	}
}
