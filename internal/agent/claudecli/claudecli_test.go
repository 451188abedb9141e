package claudecli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/deepresearch/research-agent/internal/agent"
	"github.com/deepresearch/research-agent/internal/agentcfg"
	"github.com/deepresearch/research-agent/internal/config"
	"github.com/deepresearch/research-agent/pkg/models"
)

func flagValue(args []string, flag string) (string, bool) {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return "", false
	}
	return args[i+1], true
}

func TestBuildArgs(t *testing.T) {
	cfg := agentcfg.NewBuilder(config.AgentConfig{
		DefaultModel: "claude-sonnet-4-5",
		MaxBudgetUSD: 2.5,
		MaxTurns:     12,
		MCPURL:       "http://localhost:8080/mcp",
	}).Build(nil)

	args, err := buildArgs(cfg)
	if err != nil {
		t.Fatalf("buildArgs() error = %v", err)
	}

	for _, want := range []string{"--print", "--verbose"} {
		if !slices.Contains(args, want) {
			t.Errorf("args missing %s: %v", want, args)
		}
	}
	checks := map[string]string{
		"--output-format":   "stream-json",
		"--input-format":    "stream-json",
		"--model":           "claude-sonnet-4-5",
		"--max-turns":       "12",
		"--max-budget-usd":  "2.5",
		"--permission-mode": "default",
		"--setting-sources": "project",
	}
	for flag, want := range checks {
		if got, _ := flagValue(args, flag); got != want {
			t.Errorf("%s = %q, want %q", flag, got, want)
		}
	}

	allowed, _ := flagValue(args, "--allowedTools")
	if !strings.Contains(allowed, "mcp__exa-search__search") {
		t.Errorf("--allowedTools = %q", allowed)
	}
	if got, ok := flagValue(args, "--append-system-prompt"); !ok || got != agentcfg.ResearchPrompt {
		t.Error("--append-system-prompt should carry the research prompt")
	}

	mcp, _ := flagValue(args, "--mcp-config")
	var parsed struct {
		MCPServers map[string]agentcfg.MCPServer `json:"mcpServers"`
	}
	if err := json.Unmarshal([]byte(mcp), &parsed); err != nil {
		t.Fatalf("--mcp-config is not JSON: %v", err)
	}
	if parsed.MCPServers["exa-search"].URL != "http://localhost:8080/mcp" {
		t.Errorf("mcp servers = %+v", parsed.MCPServers)
	}

	for _, absent := range []string{"--resume", "--continue", "--system-prompt", "--disallowedTools", "--agents"} {
		if slices.Contains(args, absent) {
			t.Errorf("unexpected flag %s", absent)
		}
	}
}

func TestBuildArgs_SessionAndPrompt(t *testing.T) {
	cfg := agentcfg.Config{
		SystemPrompt: agentcfg.SystemPrompt{Text: "You are terse.", Append: "ignored"},
		Resume:       "sess-1",
		ForkSession:  true,
		Continue:     true,
		Agents: map[string]agentcfg.AgentDefinition{
			"reviewer": {Description: "Reviews drafts", Prompt: "Review."},
		},
	}
	args, err := buildArgs(cfg)
	if err != nil {
		t.Fatalf("buildArgs() error = %v", err)
	}

	if got, _ := flagValue(args, "--system-prompt"); got != "You are terse." {
		t.Errorf("--system-prompt = %q", got)
	}
	if slices.Contains(args, "--append-system-prompt") {
		t.Error("full prompt replaces appended text")
	}
	if got, _ := flagValue(args, "--resume"); got != "sess-1" {
		t.Errorf("--resume = %q", got)
	}
	if !slices.Contains(args, "--fork-session") || slices.Contains(args, "--continue") {
		t.Errorf("session flags = %v", args)
	}
	if got, _ := flagValue(args, "--agents"); !strings.Contains(got, "reviewer") {
		t.Errorf("--agents = %q", got)
	}
}

func TestDecodeEvents(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"system","subtype":"init","session_id":"s1"}`,
		``,
		`warning: something odd`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"hi"}]}}`,
		`{"type":"result","subtype":"success","result":"report","num_turns":2}`,
	}, "\n")

	events := make(chan models.Event, 10)
	if err := decodeEvents(context.Background(), strings.NewReader(input), DefaultMaxLineBytes, events); err != nil {
		t.Fatalf("decodeEvents() error = %v", err)
	}
	close(events)

	var types []string
	for ev := range events {
		types = append(types, string(ev.Type))
	}
	want := []string{"system", "assistant", "result"}
	if !slices.Equal(types, want) {
		t.Errorf("types = %v, want %v", types, want)
	}
}

func TestDecodeEvents_LineTooLong(t *testing.T) {
	input := `{"type":"system","subtype":"init"}` + "\n" + strings.Repeat("x", 200) + "\n"

	events := make(chan models.Event, 10)
	err := decodeEvents(context.Background(), strings.NewReader(input), 64, events)
	if !errors.Is(err, errLineTooLong) {
		t.Fatalf("decodeEvents() error = %v, want errLineTooLong", err)
	}
	if len(events) != 1 {
		t.Errorf("len(events) = %d, want the line before the long one", len(events))
	}
}

func TestReadStderr_LongLineIsCut(t *testing.T) {
	tail := newTailBuffer(5)
	input := strings.Repeat("e", 3*maxStderrLineBytes) + "\nlast words\n"
	<-readStderr(strings.NewReader(input), tail)

	lines := strings.Split(tail.String(), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if len(lines[0]) != maxStderrLineBytes {
		t.Errorf("first line = %d bytes, want %d", len(lines[0]), maxStderrLineBytes)
	}
	if lines[1] != "last words" {
		t.Errorf("last line = %q", lines[1])
	}
}

func TestStream_NextAndClose(t *testing.T) {
	s := newStream(func() {})
	go func() {
		s.events <- models.Event{Type: models.EventSystem}
		s.err = &agent.RunError{Message: "boom"}
		s.finish()
	}()

	ctx := context.Background()
	ev, err := s.Next(ctx)
	if err != nil || ev.Type != models.EventSystem {
		t.Fatalf("Next() = %+v, %v", ev, err)
	}
	_, err = s.Next(ctx)
	var runErr *agent.RunError
	if !errors.As(err, &runErr) || runErr.Message != "boom" {
		t.Errorf("Next() error = %v, want RunError", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	s.Close()
}

func TestStream_ContextCancelled(t *testing.T) {
	s := newStream(func() {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next() error = %v, want context.Canceled", err)
	}
}

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(2)
	b.Write("one")
	b.Write("two")
	b.Write("three")
	if got := b.String(); got != "two\nthree" {
		t.Errorf("String() = %q", got)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "fake-claude")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func drain(t *testing.T, s agent.Stream) ([]models.Event, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var out []models.Event
	for {
		ev, err := s.Next(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}

func TestQuery_FakeBinary(t *testing.T) {
	bin := writeScript(t, `cat > /dev/null
echo "key=$ANTHROPIC_API_KEY" >&2
echo '{"type":"system","subtype":"init","session_id":"s1"}'
echo '{"type":"result","subtype":"success","result":"done","session_id":"s1"}'
`)
	rt := New(Options{Binary: bin, APIKey: "sk-test"})

	s, err := rt.Query(context.Background(), "what is RLHF?", agentcfg.Config{WorkingDirectory: t.TempDir()})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	defer s.Close()

	events, err := drain(t, s)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("final error = %v, want io.EOF", err)
	}
	if len(events) != 2 || events[1].Type != models.EventResult {
		t.Errorf("events = %+v", events)
	}
}

func TestQuery_ProcessFailure(t *testing.T) {
	bin := writeScript(t, `cat > /dev/null
echo '{"type":"system","subtype":"init"}'
echo "fatal: invalid api key" >&2
exit 3
`)
	s, err := New(Options{Binary: bin}).Query(context.Background(), "q", agentcfg.Config{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	defer s.Close()

	events, err := drain(t, s)
	if len(events) != 1 {
		t.Errorf("len(events) = %d, want 1", len(events))
	}
	var runErr *agent.RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("error = %v, want RunError", err)
	}
	if !strings.Contains(runErr.Message, "invalid api key") {
		t.Errorf("Message = %q", runErr.Message)
	}
	details := runErr.Details.(map[string]any)
	if details["exitCode"] != 3 {
		t.Errorf("exitCode = %v", details["exitCode"])
	}
}

func TestQuery_MissingBinary(t *testing.T) {
	_, err := New(Options{Binary: filepath.Join(t.TempDir(), "nope")}).Query(context.Background(), "q", agentcfg.Config{})
	if err == nil {
		t.Error("expected start error for missing binary")
	}
}

// bigLine writes an assistant event whose text is n bytes, and an n byte
// stderr line.
func bigLine(n int) string {
	return fmt.Sprintf(`cat > /dev/null
head -c %[1]d /dev/zero | tr '\0' e >&2
echo >&2
printf '{"type":"assistant","message":{"content":[{"type":"text","text":"'
head -c %[1]d /dev/zero | tr '\0' a
printf '"}]}}\n'
echo '{"type":"result","subtype":"success","result":"done"}'
`, n)
}

func TestQuery_LargeLine(t *testing.T) {
	bin := writeScript(t, bigLine(2<<20))
	s, err := New(Options{Binary: bin}).Query(context.Background(), "q", agentcfg.Config{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	defer s.Close()

	events, err := drain(t, s)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("final error = %v, want io.EOF", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	blocks := events[0].Message.Content
	if len(blocks) != 1 || len(blocks[0].Text) != 2<<20 {
		t.Errorf("text block was not delivered whole")
	}
	if events[1].Type != models.EventResult {
		t.Errorf("last event = %s, want result", events[1].Type)
	}
}

func TestQuery_LineOverLimitFails(t *testing.T) {
	bin := writeScript(t, bigLine(2<<20))
	s, err := New(Options{Binary: bin, MaxLineBytes: 64 << 10}).Query(context.Background(), "q", agentcfg.Config{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	defer s.Close()

	events, err := drain(t, s)
	if len(events) != 0 {
		t.Errorf("len(events) = %d, want 0", len(events))
	}
	var runErr *agent.RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("error = %v, want RunError", err)
	}
	if !strings.Contains(runErr.Message, "could not be read") {
		t.Errorf("Message = %q", runErr.Message)
	}
}
