// Package handlers implements the HTTP handlers for the research agent API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/coder/websocket"
	"github.com/deepresearch/research-agent/internal/config"
	"github.com/deepresearch/research-agent/internal/mcpgw"
	"github.com/deepresearch/research-agent/internal/relay"
	"github.com/deepresearch/research-agent/internal/sessions"
	"github.com/deepresearch/research-agent/pkg/contracts"
	"github.com/deepresearch/research-agent/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const maxRequestBody = 1 << 20

// Handlers holds all handler dependencies.
type Handlers struct {
	Config     *config.Config
	Relay      *relay.Service
	Sessions   contracts.SessionStore
	MCPGateway *mcpgw.Gateway
}

// New creates a new Handlers instance with all dependencies.
func New(cfg *config.Config, rs *relay.Service, sess contracts.SessionStore, gw *mcpgw.Gateway) *Handlers {
	return &Handlers{
		Config:     cfg,
		Relay:      rs,
		Sessions:   sess,
		MCPGateway: gw,
	}
}

// ══════════════════════════════════════════════════════════════
// ── Query Relay ──────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// QueryStatus reports liveness and which credentials are configured.
func (h *Handlers) QueryStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.HealthStatus{
		Status:          "ok",
		Message:         "Deep AI Research Agent API is running",
		Version:         h.Config.Version,
		HasAnthropicKey: h.Config.Credentials.AnthropicAPIKey != "",
		HasExaKey:       h.Config.Credentials.ExaAPIKey != "",
	})
}

// Query relays one research query as a server-sent event stream.
func (h *Handlers) Query(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, relay.ErrInvalidBody.Error())
		return
	}

	q, err := h.prepare(body)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	sink, err := relay.NewSSESink(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.Relay.Stream(r.Context(), q, sink)
}

// QueryWebSocket relays one research query over a WebSocket. The first
// client message is the query; every frame is one text message.
func (h *Handlers) QueryWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.Config.AllowedOrigins,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to accept websocket")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxRequestBody)

	ctx := r.Context()
	_, data, err := conn.Read(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket closed before query")
		return
	}

	q, err := h.prepare(data)
	if err != nil {
		msg, _ := json.Marshal(map[string]string{"error": err.Error()})
		if werr := conn.Write(ctx, websocket.MessageText, msg); werr == nil {
			conn.Close(websocket.StatusPolicyViolation, err.Error())
		}
		return
	}

	// Only control frames are expected from here on; the returned context
	// ends when the client goes away.
	ctx = conn.CloseRead(ctx)

	res := h.Relay.Stream(ctx, q, relay.NewWebSocketSink(conn))
	if res.Outcome != relay.OutcomeAborted {
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

func (h *Handlers) prepare(body []byte) (models.Query, error) {
	q, err := relay.DecodeQuery(body)
	if err != nil {
		return models.Query{}, err
	}
	if err := h.Relay.Validate(q); err != nil {
		if errors.Is(err, relay.ErrMissingCredential) {
			log.Error().Err(err).Msg("Relay is not configured")
		}
		return models.Query{}, err
	}
	return q, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, relay.ErrMissingCredential):
		return http.StatusInternalServerError
	case errors.Is(err, relay.ErrInvalidBody), errors.Is(err, relay.ErrInvalidQuery):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ══════════════════════════════════════════════════════════════
// ── Sessions ─────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.Sessions.ListSessions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"message":  "Session management is available",
		"sessions": list,
	})
}

// CreateSession acknowledges the request. The runtime assigns session ids
// on the first query, which is when the session is recorded.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "created",
		"message": "Session will be created on first query",
		"note":    "The agent runtime manages session IDs automatically",
	})
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := h.Sessions.DeleteSession(r.Context(), id); err != nil {
		respondSessionError(w, err)
		return
	}
	log.Info().Str("session_id", id).Msg("Session deleted")
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

func respondSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, sessions.ErrNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

// ══════════════════════════════════════════════════════════════
// ── MCP Gateway ──────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) MCPEndpoint(w http.ResponseWriter, r *http.Request) {
	var req models.MCPRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		respondJSON(w, http.StatusOK, mcpgw.ErrorResponse(nil, mcpgw.CodeParseError, "Parse error", err.Error()))
		return
	}

	log.Debug().Str("method", req.Method).Msg("MCP request received")

	resp := h.MCPGateway.HandleJSONRPC(r.Context(), &req)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
