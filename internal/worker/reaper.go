package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/certwise/certprep-backend/internal/config"
	"github.com/certwise/certprep-backend/internal/session"
)

// SessionReaper sweeps the live session registry. Per sweep it drops
// terminal sessions whose grace window has passed, re-runs finalize for
// timed sessions stuck after a failed auto-submit persist, and abandons
// untimed sessions with no candidate activity past the idle timeout. Timed
// sessions are never idle-abandoned; their deadline already ends them.
type SessionReaper struct {
	manager  *session.Manager
	interval time.Duration
	idle     time.Duration
	grace    time.Duration
	log      zerolog.Logger
}

// NewSessionReaper creates a new SessionReaper.
func NewSessionReaper(manager *session.Manager, cfg *config.Config, log zerolog.Logger) *SessionReaper {
	return &SessionReaper{
		manager:  manager,
		interval: cfg.ReaperInterval,
		idle:     cfg.SessionIdleTimeout,
		grace:    cfg.TerminalGrace,
		log:      log.With().Str("component", "session_reaper").Logger(),
	}
}

// Start blocks, sweeping every interval until the context is cancelled.
func (w *SessionReaper) Start(ctx context.Context) {
	w.log.Info().
		Dur("interval", w.interval).
		Dur("idle_timeout", w.idle).
		Dur("terminal_grace", w.grace).
		Msg("SessionReaper started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("SessionReaper stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SessionReaper) sweep(ctx context.Context) {
	now := time.Now()

	for _, s := range w.manager.Sessions() {
		attemptID := s.AttemptID().String()

		switch {
		case s.Terminal():
			if now.Sub(s.TerminalAt()) >= w.grace {
				w.manager.Remove(s)
				w.log.Debug().Str("attempt_id", attemptID).Msg("Terminal session removed")
			}

		case s.NeedsFinalizeRetry():
			if err := s.RetryFinalize(ctx); err != nil {
				w.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("Finalize retry failed")
			} else {
				w.log.Info().Str("attempt_id", attemptID).Msg("Finalize retry succeeded")
			}

		case s.Attempt().TimeLimitMinutes == nil && now.Sub(s.LastActivity()) >= w.idle:
			if err := s.Abandon(ctx); err != nil {
				w.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("Idle abandon failed")
			} else {
				w.log.Info().Str("attempt_id", attemptID).Msg("Idle session abandoned")
			}
		}
	}
}
