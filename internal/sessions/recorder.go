package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/deepresearch/research-agent/internal/relay"
	"github.com/deepresearch/research-agent/pkg/contracts"
	"github.com/deepresearch/research-agent/pkg/models"
	"github.com/rs/zerolog/log"
)

// Recorder mirrors relayed events into a SessionStore. The runtime owns
// session ids; a session appears once an event carrying its id is relayed.
type Recorder struct {
	store contracts.SessionStore
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store contracts.SessionStore) *Recorder {
	return &Recorder{store: store}
}

// Observe implements relay.Observer.
func (r *Recorder) Observe(ctx context.Context, run relay.Run, ev models.Event) {
	if run.SessionID == "" {
		return
	}
	switch ev.Type {
	case models.EventSystem, models.EventResult, models.EventError:
	default:
		return
	}

	update := func(sess *models.Session) { apply(sess, run, ev) }

	err := r.store.UpdateSessionFunc(ctx, run.SessionID, update)
	if errors.Is(err, ErrNotFound) {
		now := time.Now().UTC()
		sess := &models.Session{
			ID:        run.SessionID,
			Query:     run.Query.Text,
			Model:     run.Model,
			Status:    models.SessionActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		update(sess)
		err = r.store.CreateSession(ctx, sess)
		if errors.Is(err, ErrExists) {
			// another run created it first
			err = r.store.UpdateSessionFunc(ctx, run.SessionID, update)
		}
	}
	if err != nil {
		log.Warn().Err(err).Str("session_id", run.SessionID).Msg("Failed to record session")
	}
}

func apply(sess *models.Session, run relay.Run, ev models.Event) {
	switch ev.Type {
	case models.EventSystem:
		// a resumed session is active again
		sess.Status = models.SessionActive
		sess.Query = run.Query.Text
		sess.LastError = ""
	case models.EventResult:
		sess.Status = models.SessionCompleted
		if ev.IsError {
			sess.Status = models.SessionError
		}
		sess.NumTurns += ev.NumTurns
		sess.TotalCostUSD += ev.TotalCostUSD
		sess.DurationMs += ev.DurationMs
	case models.EventError:
		sess.Status = models.SessionError
		if ev.Error != nil {
			sess.LastError = ev.Error.Message
		}
	}
}
