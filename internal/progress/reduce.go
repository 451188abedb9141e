// Package progress folds a relayed agent event stream into display state:
// the reconstructed tool calls, a best-effort stage label, counters, and the
// final report once it arrives.
//
// Reduce is a pure function of the observed events. Tracker is the
// consumer-side accumulator that stamps events as they arrive and
// recomputes the state after each one.
package progress

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/deepresearch/research-agent/pkg/models"
)

// Observed is an event plus the time the consumer received it.
type Observed struct {
	Event      models.Event
	ReceivedAt time.Time
}

// Stats are the aggregate counters over all tool calls.
type Stats struct {
	Searches  int `json:"searches"`
	Fetches   int `json:"fetches"`
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// State is the derived progress view.
type State struct {
	// Events are the display-ready events: everything except the final
	// report and the done sentinel.
	Events    []models.Event          `json:"events"`
	ToolCalls []models.ToolCallRecord `json:"toolCalls"`
	Stage     string                  `json:"stage"`
	Stats     Stats                   `json:"stats"`
	Report    *models.Event           `json:"report,omitempty"`
	SessionID string                  `json:"sessionId,omitempty"`
}

type toolOutcome struct {
	content json.RawMessage
	isError bool
}

var emptyInput = json.RawMessage("{}")

// Reduce derives the progress state from the events observed so far.
// inFlight reports whether the request is still running; it only affects
// the stage label before the first tool call.
func Reduce(events []Observed, inFlight bool, t Tables) State {
	st := State{
		Events:    []models.Event{},
		ToolCalls: ToolCalls(events),
	}

	for _, o := range events {
		ev := o.Event
		if ev.SessionID != "" && (st.SessionID == "" || ev.Type == models.EventSystem) {
			st.SessionID = ev.SessionID
		}
		switch {
		case ev.IsDone():
		case ev.Type == models.EventResult:
			if st.Report == nil {
				report := ev
				st.Report = &report
			}
		default:
			st.Events = append(st.Events, ev)
		}
	}

	st.Stats = stats(st.ToolCalls, t)
	st.Stage = stage(st.ToolCalls, inFlight, t)
	return st
}

// ToolCalls correlates tool_use and tool_result blocks by id in two
// passes, so a result may arrive before or after its call and in any
// event type.
func ToolCalls(events []Observed) []models.ToolCallRecord {
	// Pass 1: results by tool_use id, last one wins.
	results := make(map[string]toolOutcome)
	for _, o := range events {
		for _, b := range o.Event.Blocks() {
			if b.Type == models.BlockToolResult && b.ToolUseID != "" {
				results[b.ToolUseID] = toolOutcome{content: b.Content, isError: b.IsError}
			}
		}
	}

	// Pass 2: calls in event order, first sighting of an id wins.
	calls := []models.ToolCallRecord{}
	seen := make(map[string]bool)
	for i, o := range events {
		for j, b := range o.Event.Blocks() {
			if b.Type != models.BlockToolUse || b.Name == "" {
				continue
			}
			id := b.ID
			if id == "" {
				id = FallbackID(b.Name, i, j)
			}
			if seen[id] {
				continue
			}
			seen[id] = true

			rec := models.ToolCallRecord{
				ID:          id,
				Name:        b.Name,
				Input:       b.Input,
				FirstSeenAt: o.ReceivedAt,
			}
			if len(rec.Input) == 0 || string(rec.Input) == "null" {
				rec.Input = emptyInput
			}
			if res, ok := results[id]; ok {
				rec.Completed = true
				rec.Result = res.content
				rec.IsError = res.isError
			}
			calls = append(calls, rec)
		}
	}
	return calls
}

// FallbackID names a tool_use block that carries no id by its position in
// the event sequence. It is stable across reductions of the same events.
func FallbackID(name string, eventIndex, blockIndex int) string {
	return fmt.Sprintf("%s-%d-%d", name, eventIndex, blockIndex)
}

func stats(calls []models.ToolCallRecord, t Tables) Stats {
	s := Stats{Total: len(calls)}
	for _, c := range calls {
		switch t.category(c.Name) {
		case CategorySearch:
			s.Searches++
		case CategoryFetch:
			s.Fetches++
		}
		if c.Completed {
			s.Completed++
		}
	}
	return s
}

// stage: a running last call wins; otherwise the label follows which
// categories have at least one completed call.
func stage(calls []models.ToolCallRecord, inFlight bool, t Tables) string {
	if len(calls) == 0 {
		if inFlight {
			return StageInitializing
		}
		return StageReady
	}

	last := calls[len(calls)-1]
	if !last.Completed {
		return t.RunningLabel(last.Name)
	}

	done := make(map[Category]bool)
	for _, c := range calls {
		if c.Completed {
			done[t.category(c.Name)] = true
		}
	}
	switch {
	case !done[CategorySearch]:
		return StagePreparing
	case !done[CategoryFetch]:
		return StageAnalyzing
	case !done[CategoryWrite]:
		return StageSynthesizing
	default:
		return StageFinalizing
	}
}
