// Package mcpgw implements the MCP (Model Context Protocol) gateway that
// exposes the search tools to the agent runtime.
//
// The runtime is pointed at the gateway through its MCP server config and
// speaks JSON-RPC 2.0 over plain HTTP POST:
//   - initialize / notifications/initialized handshake
//   - tools/list discovery
//   - tools/call invocation
package mcpgw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/deepresearch/research-agent/internal/searchtools"
	"github.com/deepresearch/research-agent/pkg/models"
	"github.com/rs/zerolog/log"
)

const protocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeToolNotFound   = -32001
)

// ToolServer is the set of tools served by the gateway.
type ToolServer interface {
	Tools() []models.MCPToolInfo
	Call(ctx context.Context, name string, args json.RawMessage) (*models.MCPToolResult, error)
}

// Gateway dispatches MCP requests to a ToolServer.
type Gateway struct {
	tools ToolServer
}

// NewGateway creates a new MCP gateway.
func NewGateway(tools ToolServer) *Gateway {
	return &Gateway{tools: tools}
}

// HandleJSONRPC processes an MCP JSON-RPC 2.0 request. It returns nil for
// notifications, which get no response.
func (gw *Gateway) HandleJSONRPC(ctx context.Context, req *models.MCPRequest) *models.MCPResponse {
	switch req.Method {

	// ── Discovery ────────────────────────────────────
	case "initialize":
		return gw.handleInitialize(req)

	case "tools/list":
		return result(req, map[string]interface{}{"tools": gw.tools.Tools()})

	// ── Tool Invocation ──────────────────────────────
	case "tools/call":
		return gw.handleToolsCall(ctx, req)

	// ── Notifications (no response) ──────────────────
	case "notifications/initialized":
		log.Debug().Msg("MCP client initialized")
		return nil

	case "ping":
		return result(req, map[string]string{})

	default:
		return ErrorResponse(req.ID, CodeMethodNotFound, "Method not found",
			fmt.Sprintf("Method '%s' is not supported by the MCP gateway", req.Method))
	}
}

func (gw *Gateway) handleInitialize(req *models.MCPRequest) *models.MCPResponse {
	return result(req, map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]bool{
				"listChanged": false,
			},
		},
		"serverInfo": map[string]string{
			"name":    searchtools.ServerName,
			"version": searchtools.ServerVersion,
		},
	})
}

func (gw *Gateway) handleToolsCall(ctx context.Context, req *models.MCPRequest) *models.MCPResponse {
	var params models.MCPToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return ErrorResponse(req.ID, CodeInvalidParams, "Invalid params", err.Error())
	}
	if params.Name == "" {
		return ErrorResponse(req.ID, CodeInvalidParams, "Invalid params", "tool name is required")
	}

	res, err := gw.tools.Call(ctx, params.Name, params.Arguments)
	if errors.Is(err, searchtools.ErrUnknownTool) {
		return ErrorResponse(req.ID, CodeToolNotFound, "Tool not found",
			fmt.Sprintf("Tool '%s' is not served by %s", params.Name, searchtools.ServerName))
	}
	if err != nil {
		res = models.TextResult("Tool execution error: "+err.Error(), true)
	}

	log.Debug().Str("tool", params.Name).Bool("is_error", res.IsError).Msg("MCP tool call")
	return result(req, res)
}

func result(req *models.MCPRequest, v interface{}) *models.MCPResponse {
	return &models.MCPResponse{Jsonrpc: "2.0", Result: v, ID: req.ID}
}

// ErrorResponse builds a JSON-RPC error response.
func ErrorResponse(id interface{}, code int, message, data string) *models.MCPResponse {
	return &models.MCPResponse{
		Jsonrpc: "2.0",
		Error: &models.MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
}
