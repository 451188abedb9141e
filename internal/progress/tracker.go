package progress

import (
	"sync"
	"time"

	"github.com/deepresearch/research-agent/pkg/models"
)

// Tracker accumulates a live event stream. Add and State are safe for
// concurrent use, but a stream is expected to have a single consumer.
type Tracker struct {
	mu       sync.Mutex
	tables   Tables
	now      func() time.Time
	events   []Observed
	reported bool
	finished bool
}

// NewTracker creates a tracker using t.
func NewTracker(t Tables) *Tracker {
	return &Tracker{tables: t, now: time.Now}
}

// Add records ev with the current time and returns the new state.
func (tr *Tracker) Add(ev models.Event) State {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	switch {
	case ev.IsDone():
		tr.finished = true
	case ev.Type == models.EventResult:
		tr.reported = true
	}
	tr.events = append(tr.events, Observed{Event: ev, ReceivedAt: tr.now().UTC()})
	return tr.reduce()
}

// State returns the current state without adding anything.
func (tr *Tracker) State() State {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.reduce()
}

// Finished reports whether the done sentinel was seen.
func (tr *Tracker) Finished() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.finished
}

func (tr *Tracker) reduce() State {
	return Reduce(tr.events, !tr.finished && !tr.reported, tr.tables)
}
