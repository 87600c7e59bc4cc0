// Package cleanup hosts the background janitor that reclaims per-session
// state. Sessions live in memory only, so abandoned conversations would
// otherwise hold their variable stores until restart.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/pilotdeck/pilotdeck/pkg/config"
	"github.com/pilotdeck/pilotdeck/pkg/session"
)

// fallbackSweepInterval guards against a zero-valued config in callers that
// skip the settings loader.
const fallbackSweepInterval = 15 * time.Minute

// Service periodically drops sessions that have been idle past the
// configured window. Sweeps are idempotent.
type Service struct {
	cfg      config.SessionConfig
	sessions *session.Manager

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a janitor over the session manager.
func NewService(cfg config.SessionConfig, sessions *session.Manager) *Service {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = fallbackSweepInterval
	}
	return &Service{cfg: cfg, sessions: sessions}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Session janitor started",
		"max_idle", s.cfg.MaxIdle,
		"sweep_interval", s.cfg.SweepInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Session janitor stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	if s.cfg.MaxIdle <= 0 {
		return
	}
	if pruned := s.sessions.PruneIdle(s.cfg.MaxIdle); pruned > 0 {
		slog.Info("Reclaimed idle sessions", "count", pruned, "remaining", s.sessions.Count())
	}
}
