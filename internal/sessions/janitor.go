package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/deepresearch/research-agent/pkg/contracts"
	"github.com/rs/zerolog/log"
)

const minSweepInterval = time.Minute

// Janitor periodically removes sessions that have been idle longer than
// the retention window.
type Janitor struct {
	store     contracts.SessionStore
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewJanitor creates a janitor for store. A zero retention disables it.
func NewJanitor(store contracts.SessionStore, retention, interval time.Duration) *Janitor {
	if interval < minSweepInterval {
		interval = minSweepInterval
	}
	return &Janitor{
		store:     store,
		retention: retention,
		interval:  interval,
		now:       time.Now,
	}
}

// Start sweeps on every tick until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	if j.retention <= 0 {
		log.Info().Msg("Session janitor disabled")
		return
	}
	log.Info().
		Dur("retention", j.retention).
		Dur("interval", j.interval).
		Msg("Session janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Session janitor stopped")
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep removes expired sessions once and returns how many were removed.
func (j *Janitor) Sweep(ctx context.Context) int {
	list, err := j.store.ListSessions(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Session janitor: failed to list sessions")
		return 0
	}

	cutoff := j.now().Add(-j.retention)
	purged := 0
	for _, sess := range list {
		if !sess.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := j.store.DeleteSession(ctx, sess.ID); err != nil && !errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Str("session_id", sess.ID).Msg("Session janitor: failed to delete")
			continue
		}
		purged++
	}

	if purged > 0 {
		log.Info().Int("purged", purged).Int("remaining", len(list)-purged).Msg("Session sweep complete")
	}
	return purged
}
