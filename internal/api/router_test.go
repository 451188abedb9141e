package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/deepresearch/research-agent/internal/agent"
	"github.com/deepresearch/research-agent/internal/agentcfg"
	"github.com/deepresearch/research-agent/internal/api"
	"github.com/deepresearch/research-agent/internal/api/handlers"
	"github.com/deepresearch/research-agent/internal/config"
	"github.com/deepresearch/research-agent/internal/exa"
	"github.com/deepresearch/research-agent/internal/mcpgw"
	"github.com/deepresearch/research-agent/internal/relay"
	"github.com/deepresearch/research-agent/internal/searchtools"
	"github.com/deepresearch/research-agent/internal/sessions"
	"github.com/deepresearch/research-agent/internal/streamclient"
	"github.com/deepresearch/research-agent/pkg/contracts"
	"github.com/deepresearch/research-agent/pkg/models"
)

type sliceStream struct {
	events []models.Event
}

func (s *sliceStream) Next(ctx context.Context) (models.Event, error) {
	if len(s.events) == 0 {
		return models.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *sliceStream) Close() error { return nil }

type scriptedRuntime struct {
	lines  []string
	prompt string
}

func (r *scriptedRuntime) Query(_ context.Context, prompt string, _ agentcfg.Config) (agent.Stream, error) {
	r.prompt = prompt
	s := &sliceStream{}
	for _, l := range r.lines {
		ev, err := models.ParseEvent([]byte(l))
		if err != nil {
			return nil, err
		}
		s.events = append(s.events, ev)
	}
	return s, nil
}

type noProvider struct{}

func (noProvider) Search(context.Context, *exa.SearchRequest) (*exa.Response, error) {
	return &exa.Response{}, nil
}
func (noProvider) GetContents(context.Context, *exa.ContentsRequest) (*exa.Response, error) {
	return &exa.Response{}, nil
}
func (noProvider) FindSimilar(context.Context, *exa.FindSimilarRequest) (*exa.Response, error) {
	return &exa.Response{}, nil
}

var script = []string{
	`{"type":"system","subtype":"init","session_id":"sess-1"}`,
	`{"type":"assistant","message":{"content":[{"type":"text","text":"Searching"}]},"session_id":"sess-1"}`,
	`{"type":"result","subtype":"success","result":"# Report","session_id":"sess-1","num_turns":3,"total_cost_usd":0.05}`,
}

func newTestRouter(t *testing.T, creds config.Credentials) (http.Handler, *sessions.MemorySessionStore) {
	t.Helper()
	return newRouterWith(t, creds, &scriptedRuntime{lines: script})
}

func newRouterWith(t *testing.T, creds config.Credentials, rt contracts.AgentRuntime) (http.Handler, *sessions.MemorySessionStore) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Credentials = creds
	cfg.Agent.MCPURL = "http://localhost:8080/mcp"

	store := sessions.NewMemorySessionStore()
	rs := relay.NewService(rt, agentcfg.NewBuilder(cfg.Agent), cfg, sessions.NewRecorder(store))
	gw := mcpgw.NewGateway(searchtools.New(noProvider{}))
	return api.NewRouter(cfg, handlers.New(cfg, rs, store, gw)), store
}

func fullCreds() config.Credentials {
	return config.Credentials{AnthropicAPIKey: "sk-ant", ExaAPIKey: "exa"}
}

func decodeBody(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t, fullCreds())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody(t, rec.Body)["status"]; got != "healthy" {
		t.Errorf("status field = %v", got)
	}
}

func TestQueryStatus_ReportsCredentials(t *testing.T) {
	router, _ := newTestRouter(t, config.Credentials{AnthropicAPIKey: "sk-ant"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agent/query", nil))

	body := decodeBody(t, rec.Body)
	if body["status"] != "ok" || body["message"] != "Deep AI Research Agent API is running" {
		t.Errorf("body = %v", body)
	}
	if body["hasAnthropicKey"] != true || body["hasExaKey"] != false {
		t.Errorf("credential flags = %v / %v", body["hasAnthropicKey"], body["hasExaKey"])
	}
}

func TestQuery_RejectsBadRequests(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		creds  config.Credentials
		status int
		errMsg string
	}{
		{"empty object", `{}`, fullCreds(), 400, "Query is required and must be a string"},
		{"empty query", `{"query":""}`, fullCreds(), 400, "Query is required and must be a string"},
		{"number query", `{"query":42}`, fullCreds(), 400, "Query is required and must be a string"},
		{"not json", `query=x`, fullCreds(), 400, "Invalid request body"},
		{"no exa key", `{"query":"x"}`, config.Credentials{AnthropicAPIKey: "sk-ant"}, 500, "EXA_API_KEY is not configured"},
		{"no anthropic key", `{"query":"x"}`, config.Credentials{ExaAPIKey: "exa"}, 500, "ANTHROPIC_API_KEY is not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t, tt.creds)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agent/query", strings.NewReader(tt.body)))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type = %q", ct)
			}
			if got := decodeBody(t, rec.Body)["error"]; got != tt.errMsg {
				t.Errorf("error = %v, want %q", got, tt.errMsg)
			}
		})
	}
}

func TestQuery_AcceptsLooseHints(t *testing.T) {
	tests := []struct {
		name       string
		options    string
		wantSuffix string
	}{
		{"fractional count", `{"numResults":7.5}`, "Find approximately 7.5 relevant sources"},
		{"string count", `{"numResults":"10"}`, "Find approximately 10 relevant sources"},
		{"string date range", `{"dateRange":"2023"}`, "q"},
		{"mixed", `{"searchType":"keyword","numResults":"many","dateRange":{"start":2023,"end":"2024-01-01"}}`,
			"Prefer keyword search; Focus on papers published before 2024-01-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &scriptedRuntime{lines: script}
			router, _ := newRouterWith(t, fullCreds(), rt)
			body := `{"query":"q","options":` + tt.options + `}`
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agent/query", strings.NewReader(body)))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
			}
			if !strings.HasSuffix(rec.Body.String(), "data: {\"type\":\"done\"}\n\n") {
				t.Errorf("stream did not end with done: %q", rec.Body)
			}
			if !strings.HasSuffix(rt.prompt, tt.wantSuffix) {
				t.Errorf("prompt = %q, want suffix %q", rt.prompt, tt.wantSuffix)
			}
		})
	}
}

func TestQuery_StreamsEventsThenDone(t *testing.T) {
	router, store := newTestRouter(t, fullCreds())
	srv := httptest.NewServer(router)
	defer srv.Close()

	var got []models.Event
	err := streamclient.New(srv.URL).Query(context.Background(), models.Query{Text: "quantum error correction"}, func(ev models.Event) bool {
		got = append(got, ev)
		return true
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	want := []models.EventType{models.EventSystem, models.EventAssistant, models.EventResult, models.EventDone}
	if len(got) != len(want) {
		t.Fatalf("got %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Type != want[i] {
			t.Errorf("frame %d = %s, want %s", i, got[i].Type, want[i])
		}
	}

	sess, err := store.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("session not recorded: %v", err)
	}
	if sess.Status != models.SessionCompleted || sess.NumTurns != 3 {
		t.Errorf("session = %+v", sess)
	}
}

func TestQuery_SSEHeaders(t *testing.T) {
	router, _ := newTestRouter(t, fullCreds())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agent/query", strings.NewReader(`{"query":"x"}`)))

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.HasSuffix(body, "data: {\"type\":\"done\"}\n\n") {
		t.Errorf("stream does not end with done sentinel:\n%s", body)
	}
}

func TestQueryWebSocket(t *testing.T) {
	router, _ := newTestRouter(t, fullCreds())
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/agent/query/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"query":"graph neural networks"}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var types []models.EventType
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			t.Fatalf("Read: %v", err)
		}
		ev, err := models.ParseEvent(data)
		if err != nil {
			t.Fatalf("ParseEvent: %v", err)
		}
		types = append(types, ev.Type)
	}

	if len(types) != 4 || types[3] != models.EventDone {
		t.Errorf("frames = %v", types)
	}
}

func TestQueryWebSocket_InvalidQuery(t *testing.T) {
	router, _ := newTestRouter(t, fullCreds())
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/agent/query/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"query":7}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.Contains(string(data), "Query is required and must be a string") {
		t.Errorf("message = %s", data)
	}
	if _, _, err := conn.Read(ctx); websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Errorf("close status = %v", websocket.CloseStatus(err))
	}
}

func TestSessions(t *testing.T) {
	router, store := newTestRouter(t, fullCreds())
	ctx := context.Background()
	if err := store.CreateSession(ctx, &models.Session{ID: "abc", Query: "q", Status: models.SessionCompleted}); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agent/session", nil))
	body := decodeBody(t, rec.Body)
	if list, _ := body["sessions"].([]interface{}); len(list) != 1 {
		t.Errorf("sessions = %v", body["sessions"])
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agent/session", nil))
	if got := decodeBody(t, rec.Body)["status"]; got != "created" {
		t.Errorf("create status = %v", got)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agent/session/abc", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/agent/session/abc", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("delete status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agent/session/abc", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec.Code)
	}
}

func TestMCPEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, fullCreds())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)))
	var resp struct {
		Result struct {
			Tools []models.MCPToolInfo `json:"tools"`
		} `json:"result"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Result.Tools) != 3 {
		t.Errorf("tools = %d, want 3", len(resp.Result.Tools))
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{not json`)))
	body := decodeBody(t, rec.Body)
	errObj, _ := body["error"].(map[string]interface{})
	if errObj["code"] != float64(mcpgw.CodeParseError) {
		t.Errorf("error = %v", body["error"])
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))
	if rec.Code != http.StatusNoContent {
		t.Errorf("notification status = %d", rec.Code)
	}
}
