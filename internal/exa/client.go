// Package exa is a minimal client for the Exa neural search API.
package exa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultBaseURL = "https://api.exa.ai"

var tracer = otel.Tracer("research-agent/exa")

// Client calls the Exa HTTP API.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewClient creates a client. An empty baseURL selects DefaultBaseURL.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exa: status %d: %s", e.StatusCode, e.Body)
}

type TextOptions struct {
	MaxCharacters int `json:"maxCharacters,omitempty"`
}

type ContentsOptions struct {
	Text *TextOptions `json:"text,omitempty"`
}

type SearchRequest struct {
	Query              string           `json:"query"`
	Type               string           `json:"type,omitempty"`
	NumResults         int              `json:"numResults,omitempty"`
	UseAutoprompt      bool             `json:"useAutoprompt"`
	IncludeDomains     []string         `json:"includeDomains,omitempty"`
	ExcludeDomains     []string         `json:"excludeDomains,omitempty"`
	StartPublishedDate string           `json:"startPublishedDate,omitempty"`
	EndPublishedDate   string           `json:"endPublishedDate,omitempty"`
	Contents           *ContentsOptions `json:"contents,omitempty"`
}

type ContentsRequest struct {
	IDs  []string     `json:"ids"`
	Text *TextOptions `json:"text,omitempty"`
}

type FindSimilarRequest struct {
	URL                 string `json:"url"`
	NumResults          int    `json:"numResults,omitempty"`
	ExcludeSourceDomain bool   `json:"excludeSourceDomain"`
}

// Result is one document returned by any endpoint.
type Result struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Author        string   `json:"author,omitempty"`
	PublishedDate string   `json:"publishedDate,omitempty"`
	Score         *float64 `json:"score,omitempty"`
	Text          string   `json:"text,omitempty"`
	Highlights    []string `json:"highlights,omitempty"`
}

// Response is the common response envelope.
type Response struct {
	Results          []Result `json:"results"`
	AutopromptString string   `json:"autopromptString,omitempty"`
}

// Search runs a neural or keyword search, optionally with contents.
func (c *Client) Search(ctx context.Context, req *SearchRequest) (*Response, error) {
	return c.post(ctx, "/search", req)
}

// GetContents fetches document text for result ids or URLs.
func (c *Client) GetContents(ctx context.Context, req *ContentsRequest) (*Response, error) {
	return c.post(ctx, "/contents", req)
}

// FindSimilar returns documents similar to a URL.
func (c *Client) FindSimilar(ctx context.Context, req *FindSimilarRequest) (*Response, error) {
	return c.post(ctx, "/findSimilar", req)
}

func (c *Client) post(ctx context.Context, path string, payload any) (*Response, error) {
	ctx, span := tracer.Start(ctx, "exa"+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("exa.endpoint", path)),
	)
	defer span.End()

	resp, err := c.do(ctx, path, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("exa.results", len(resp.Results)))
	return resp, nil
}

func (c *Client) do(ctx context.Context, path string, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("exa: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("exa: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("exa: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("exa: read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: httpResp.StatusCode, Body: string(respBody)}
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("exa: parse response: %w", err)
	}
	return &out, nil
}
