package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EventType discriminates the variants of an agent runtime event.
type EventType string

const (
	EventSystem     EventType = "system"
	EventAssistant  EventType = "assistant"
	EventUser       EventType = "user"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventError      EventType = "error"
	EventResult     EventType = "result"

	// EventDone is the relay's end-of-stream sentinel. It is never emitted
	// by the agent runtime itself.
	EventDone EventType = "done"
)

// ErrorKindAgent is the error kind used when the runtime fails mid-stream.
const ErrorKindAgent = "AGENT_ERROR"

// Event is one message emitted by the agent runtime.
//
// The known variants are decoded into typed fields. Whatever the runtime
// sent is kept verbatim and re-emitted by MarshalJSON, so fields this
// package does not model survive a decode/encode round trip untouched.
type Event struct {
	Type      EventType `json:"type"`
	Subtype   string    `json:"subtype,omitempty"`
	SessionID string    `json:"session_id,omitempty"`

	// assistant / user
	Message *EventMessage `json:"message,omitempty"`
	Content Blocks        `json:"content,omitempty"`

	// tool_call / tool_result
	ToolName    string          `json:"tool_name,omitempty"`
	ToolCallID  string          `json:"tool_call_id,omitempty"`
	Input       json.RawMessage `json:"input,omitempty"`
	ToolIsError bool            `json:"isError,omitempty"`

	// Result is the tool output for tool_result events and the final
	// report text for result events.
	Result json.RawMessage `json:"result,omitempty"`

	// error
	Error *ErrorPayload `json:"error,omitempty"`

	// result
	IsError       bool            `json:"is_error,omitempty"`
	DurationMs    int64           `json:"duration_ms,omitempty"`
	DurationAPIMs int64           `json:"duration_api_ms,omitempty"`
	NumTurns      int             `json:"num_turns,omitempty"`
	TotalCostUSD  float64         `json:"total_cost_usd,omitempty"`
	Usage         json.RawMessage `json:"usage,omitempty"`

	raw json.RawMessage
}

// EventMessage is the model message wrapped by assistant and user events.
type EventMessage struct {
	Role    string `json:"role,omitempty"`
	Model   string `json:"model,omitempty"`
	ID      string `json:"id,omitempty"`
	Content Blocks `json:"content,omitempty"`
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Tool    string `json:"tool,omitempty"`
	Details any    `json:"details,omitempty"`
}

type eventFields Event

// ParseEvent decodes a single runtime event. Only malformed JSON is an
// error; unknown types and fields are accepted.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// NewErrorEvent builds an error event that did not come from the runtime.
func NewErrorEvent(kind, message string, details any) Event {
	return Event{
		Type: EventError,
		Error: &ErrorPayload{
			Type:    kind,
			Message: message,
			Details: details,
		},
	}
}

// DoneEvent returns the end-of-stream sentinel.
func DoneEvent() Event {
	return Event{Type: EventDone}
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var f eventFields
	if err := json.Unmarshal(data, &f); err != nil {
		// Some modelled field has a shape we do not expect. Decode the
		// members one at a time so the rest of the event survives.
		lenient, lerr := decodeMembers(data)
		if lerr != nil {
			return fmt.Errorf("decode event: %w", lerr)
		}
		f = lenient
	}
	*e = Event(f)
	e.raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	return nil
}

// decodeMembers fills an event from each top-level member on its own and
// skips the members that do not fit their field.
func decodeMembers(data []byte) (eventFields, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return eventFields{}, err
	}

	var f eventFields
	for key, value := range members {
		one, err := json.Marshal(map[string]json.RawMessage{key: value})
		if err != nil {
			continue
		}
		next := f
		if json.Unmarshal(one, &next) == nil {
			f = next
		}
	}
	return f, nil
}

func (e Event) MarshalJSON() ([]byte, error) {
	if len(e.raw) > 0 {
		return e.raw, nil
	}
	return json.Marshal(eventFields(e))
}

// Raw returns the bytes the event was decoded from, or nil for events
// constructed in-process.
func (e Event) Raw() json.RawMessage {
	return e.raw
}

// Known reports whether the event is one of the modelled variants.
func (e Event) Known() bool {
	switch e.Type {
	case EventSystem, EventAssistant, EventUser, EventToolCall, EventToolResult, EventError, EventResult, EventDone:
		return true
	}
	return false
}

// IsDone reports whether the event is the end-of-stream sentinel.
func (e Event) IsDone() bool {
	return e.Type == EventDone
}

// ReportText returns the final report carried by a result event.
func (e Event) ReportText() string {
	if e.Type != EventResult || len(e.Result) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Result, &s); err != nil {
		return string(e.Result)
	}
	return s
}

// Blocks returns every content block carried by the event, in order:
// message content, top-level content, then a block synthesised from the
// flat tool_call / tool_result variants.
func (e Event) Blocks() []ContentBlock {
	var out []ContentBlock
	if e.Message != nil {
		out = append(out, e.Message.Content...)
	}
	out = append(out, e.Content...)

	switch e.Type {
	case EventToolCall:
		if e.ToolName != "" {
			out = append(out, ContentBlock{
				Type:  BlockToolUse,
				ID:    e.ToolCallID,
				Name:  e.ToolName,
				Input: e.Input,
			})
		}
	case EventToolResult:
		if e.ToolCallID != "" {
			out = append(out, ContentBlock{
				Type:      BlockToolResult,
				ToolUseID: e.ToolCallID,
				Content:   e.Result,
				IsError:   e.ToolIsError,
			})
		}
	}
	return out
}
