// Package streamclient consumes the relay's server-sent event stream.
package streamclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/deepresearch/research-agent/pkg/models"
	"github.com/rs/zerolog/log"
)

const queryPath = "/api/agent/query"

// Client posts research queries to a relay server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a client for the relay at baseURL.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 0}, // streams are long-lived
	}
}

// HTTPError is a non-200 response to a query, i.e. a validation or
// configuration failure reported before any frame.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("relay returned %d: %s", e.StatusCode, e.Message)
}

// Query posts q and calls emit for every frame until the done sentinel,
// the end of the body, or emit returning false.
func (c *Client) Query(ctx context.Context, q models.Query, emit func(models.Event) bool) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+queryPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseError(resp)
	}
	return ReadFrames(resp.Body, emit)
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}
	if msg == "" {
		msg = resp.Status
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: msg}
}

// ReadFrames parses an event stream of "data: <json>" frames. Frames that
// are not valid events are logged and skipped. Reading stops after the
// done sentinel has been emitted.
func ReadFrames(r io.Reader, emit func(models.Event) bool) error {
	reader := bufio.NewReader(r)
	var data strings.Builder

	// flush reports whether reading should continue.
	flush := func() bool {
		if data.Len() == 0 {
			return true
		}
		payload := data.String()
		data.Reset()

		ev, err := models.ParseEvent([]byte(payload))
		if err != nil {
			log.Warn().Err(err).Str("frame", payload).Msg("Failed to parse stream frame")
			return true
		}
		if !emit(ev) {
			return false
		}
		return !ev.IsDone()
	}

	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if !flush() {
				return nil
			}
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "data:"):
			value := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		}

		if err != nil {
			flush()
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
