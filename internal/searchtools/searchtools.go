// Package searchtools exposes the search provider to the agent runtime as
// a small set of tools. Every tool validates its arguments, applies
// defaults, normalizes the provider response into a flat JSON document and
// reports failures as in-band error results instead of returning errors.
package searchtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/deepresearch/research-agent/internal/exa"
	"github.com/deepresearch/research-agent/pkg/models"
)

const (
	ServerName    = "exa-search"
	ServerVersion = "1.0.0"

	ToolSearch      = "search"
	ToolGetContents = "get_contents"
	ToolFindSimilar = "find_similar"
)

// QualifiedName returns the name the agent runtime uses for a tool served
// by this package, e.g. "mcp__exa-search__search".
func QualifiedName(tool string) string {
	return "mcp__" + ServerName + "__" + tool
}

// ErrUnknownTool is returned by Call for names not served by this package.
var ErrUnknownTool = errors.New("unknown tool")

// Provider is the upstream search API.
type Provider interface {
	Search(ctx context.Context, req *exa.SearchRequest) (*exa.Response, error)
	GetContents(ctx context.Context, req *exa.ContentsRequest) (*exa.Response, error)
	FindSimilar(ctx context.Context, req *exa.FindSimilarRequest) (*exa.Response, error)
}

type handler func(ctx context.Context, args json.RawMessage) *models.MCPToolResult

type tool struct {
	info    models.MCPToolInfo
	handler handler
}

// Adapter serves the search tools against a Provider.
type Adapter struct {
	provider Provider
	tools    map[string]tool
}

// New creates an Adapter.
func New(p Provider) *Adapter {
	a := &Adapter{provider: p}
	a.tools = map[string]tool{
		ToolSearch: {
			info:    models.MCPToolInfo{Name: ToolSearch, Description: searchDescription, InputSchema: searchSchema()},
			handler: a.callSearch,
		},
		ToolGetContents: {
			info:    models.MCPToolInfo{Name: ToolGetContents, Description: getContentsDescription, InputSchema: getContentsSchema()},
			handler: a.callGetContents,
		},
		ToolFindSimilar: {
			info:    models.MCPToolInfo{Name: ToolFindSimilar, Description: findSimilarDescription, InputSchema: findSimilarSchema()},
			handler: a.callFindSimilar,
		},
	}
	return a
}

// Tools lists the served tools sorted by name.
func (a *Adapter) Tools() []models.MCPToolInfo {
	out := make([]models.MCPToolInfo, 0, len(a.tools))
	for _, t := range a.tools {
		out = append(out, t.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call invokes a tool by its unqualified name. The only error is
// ErrUnknownTool; tool failures are reported through the result.
func (a *Adapter) Call(ctx context.Context, name string, args json.RawMessage) (*models.MCPToolResult, error) {
	t, ok := a.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.handler(ctx, args), nil
}

func (a *Adapter) callSearch(ctx context.Context, raw json.RawMessage) *models.MCPToolResult {
	var args SearchArgs
	if err := decodeArgs(raw, &args); err != nil {
		return failure(searchErrPrefix, err)
	}
	return a.Search(ctx, args)
}

func (a *Adapter) callGetContents(ctx context.Context, raw json.RawMessage) *models.MCPToolResult {
	var args ContentsArgs
	if err := decodeArgs(raw, &args); err != nil {
		return failure(contentsErrPrefix, err)
	}
	return a.GetContents(ctx, args)
}

func (a *Adapter) callFindSimilar(ctx context.Context, raw json.RawMessage) *models.MCPToolResult {
	var args SimilarArgs
	if err := decodeArgs(raw, &args); err != nil {
		return failure(similarErrPrefix, err)
	}
	return a.FindSimilar(ctx, args)
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func success(v any) *models.MCPToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return models.TextResult("Error encoding result: "+err.Error(), true)
	}
	return models.TextResult(string(data), false)
}

func failure(prefix string, err error) *models.MCPToolResult {
	return models.TextResult(prefix+err.Error(), true)
}
