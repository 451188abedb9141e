package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/deepresearch/research-agent/internal/config"
	"github.com/deepresearch/research-agent/pkg/models"
)

var (
	// ErrInvalidBody means the request body is not a JSON object.
	ErrInvalidBody = errors.New("Invalid request body")
	// ErrInvalidQuery means the query field is missing, empty or not a string.
	ErrInvalidQuery = errors.New("Query is required and must be a string")
	// ErrMissingCredential is wrapped with the name of the missing variable.
	ErrMissingCredential = errors.New("is not configured")
)

type queryRequest struct {
	Query     json.RawMessage `json:"query"`
	SessionID json.RawMessage `json:"sessionId"`
	Options   json.RawMessage `json:"options"`
}

// DecodeQuery parses an inbound query request body. Only the query text is
// checked; a session id or hint with an unexpected shape is dropped.
func DecodeQuery(data []byte) (models.Query, error) {
	var req queryRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return models.Query{}, ErrInvalidBody
	}

	var text string
	if len(req.Query) == 0 || json.Unmarshal(req.Query, &text) != nil || text == "" {
		return models.Query{}, ErrInvalidQuery
	}
	q := models.Query{Text: text, Options: decodeHints(req.Options)}
	_ = json.Unmarshal(req.SessionID, &q.SessionID)
	return q, nil
}

// decodeHints reads each hint on its own. Numbers may arrive as JSON
// numbers or numeric strings.
func decodeHints(data json.RawMessage) *models.SearchHints {
	var fields struct {
		SearchType json.RawMessage `json:"searchType"`
		NumResults json.RawMessage `json:"numResults"`
		DateRange  json.RawMessage `json:"dateRange"`
	}
	if len(data) == 0 || json.Unmarshal(data, &fields) != nil {
		return nil
	}

	var hints models.SearchHints
	_ = json.Unmarshal(fields.SearchType, &hints.SearchType)

	var n json.Number
	if json.Unmarshal(fields.NumResults, &n) == nil {
		if f, err := n.Float64(); err == nil && f != 0 {
			hints.NumResults = n
		}
	}

	var bounds struct {
		Start json.RawMessage `json:"start"`
		End   json.RawMessage `json:"end"`
	}
	if json.Unmarshal(fields.DateRange, &bounds) == nil {
		var dr models.DateRange
		_ = json.Unmarshal(bounds.Start, &dr.Start)
		_ = json.Unmarshal(bounds.End, &dr.End)
		if dr != (models.DateRange{}) {
			hints.DateRange = &dr
		}
	}

	if hints == (models.SearchHints{}) {
		return nil
	}
	return &hints
}

// Validate checks the query and the credentials the relay depends on.
func Validate(q models.Query, creds config.Credentials) error {
	if q.Text == "" {
		return ErrInvalidQuery
	}
	if name := creds.Missing(); name != "" {
		return fmt.Errorf("%s %w", name, ErrMissingCredential)
	}
	return nil
}

// EnhanceQuery appends a plain-language preferences line derived from the
// search hints. The runtime is free to ignore it.
func EnhanceQuery(text string, hints *models.SearchHints) string {
	if hints == nil {
		return text
	}

	var parts []string
	if hints.SearchType != "" {
		parts = append(parts, fmt.Sprintf("Prefer %s search", hints.SearchType))
	}
	if hints.NumResults != "" {
		parts = append(parts, fmt.Sprintf("Find approximately %s relevant sources", hints.NumResults))
	}
	if dr := hints.DateRange; dr != nil && (dr.Start != "" || dr.End != "") {
		var bounds []string
		if dr.Start != "" {
			bounds = append(bounds, "published after "+dr.Start)
		}
		if dr.End != "" {
			bounds = append(bounds, "published before "+dr.End)
		}
		parts = append(parts, "Focus on papers "+strings.Join(bounds, " and "))
	}

	if len(parts) == 0 {
		return text
	}
	return text + "\n\nSearch preferences: " + strings.Join(parts, "; ")
}
