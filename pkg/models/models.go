package models

import (
	"encoding/json"
	"time"
)

// ── Research Query ───────────────────────────────────────────

// SearchType is the search strategy hint attached to a query.
type SearchType string

const (
	SearchNeural  SearchType = "neural"
	SearchKeyword SearchType = "keyword"
)

// Query is one research request submitted by a user.
type Query struct {
	Text      string       `json:"query"`
	SessionID string       `json:"sessionId,omitempty"`
	Options   *SearchHints `json:"options,omitempty"`
}

// SearchHints are optional preferences appended to the query text as
// plain language. They are never enforced. NumResults keeps the number
// text as the client sent it.
type SearchHints struct {
	SearchType SearchType  `json:"searchType,omitempty"`
	NumResults json.Number `json:"numResults,omitempty"`
	DateRange  *DateRange  `json:"dateRange,omitempty"`
}

// DateRange bounds publication dates, ISO-8601 (YYYY-MM-DD).
type DateRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// ── Status ───────────────────────────────────────────────────

// HealthStatus is returned by the query status endpoint.
type HealthStatus struct {
	Status          string `json:"status"`
	Message         string `json:"message"`
	Version         string `json:"version"`
	HasAnthropicKey bool   `json:"hasAnthropicKey"`
	HasExaKey       bool   `json:"hasExaKey"`
}

// ── Sessions ─────────────────────────────────────────────────

// Session is a research session observed on the relayed event stream.
// The agent runtime owns session ids; this record only mirrors them.
type Session struct {
	ID           string        `json:"id"`
	Query        string        `json:"query"`
	Model        string        `json:"model,omitempty"`
	Status       SessionStatus `json:"status"`
	NumTurns     int           `json:"num_turns"`
	TotalCostUSD float64       `json:"total_cost_usd"`
	DurationMs   int64         `json:"duration_ms"`
	LastError    string        `json:"last_error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// SessionStatus tracks the lifecycle of a session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionError     SessionStatus = "error"
)

// ── MCP (Model Context Protocol) ─────────────────────────────

type MCPRequest struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

type MCPResponse struct {
	Jsonrpc string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type MCPToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}

type MCPToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type MCPToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

type MCPContent struct {
	Type string `json:"type"` // text, image, resource
	Text string `json:"text,omitempty"`
}

// TextResult wraps text as a single-block tool result.
func TextResult(text string, isError bool) *MCPToolResult {
	return &MCPToolResult{
		Content: []MCPContent{{Type: "text", Text: text}},
		IsError: isError,
	}
}
