// Package claudecli runs research queries through the Claude CLI in
// stream-json mode. Each query is one short-lived process: the prompt is
// written to stdin as a single user message, stdin is closed, and every
// stdout line is decoded as one agent event.
package claudecli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/deepresearch/research-agent/internal/agent"
	"github.com/deepresearch/research-agent/internal/agentcfg"
	"github.com/deepresearch/research-agent/pkg/models"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBinary is the Claude CLI executable name.
	DefaultBinary = "claude"

	defaultStderrLines = 50
	stderrReadTimeout  = 5 * time.Second

	// DefaultMaxLineBytes bounds one stdout event line.
	DefaultMaxLineBytes = 16 << 20
	maxStderrLineBytes  = 4 << 10
)

var errLineTooLong = errors.New("line exceeds the size limit")

// Options configure the runtime driver.
type Options struct {
	Binary string
	// APIKey is exported to the child as ANTHROPIC_API_KEY.
	APIKey string
	// Env is appended to the parent environment.
	Env         []string
	StderrLines int
	// MaxLineBytes bounds one stdout line; 0 means DefaultMaxLineBytes.
	MaxLineBytes int
}

// Runtime starts one CLI process per query.
type Runtime struct {
	opts Options
}

// New creates a Runtime.
func New(opts Options) *Runtime {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.StderrLines <= 0 {
		opts.StderrLines = defaultStderrLines
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = DefaultMaxLineBytes
	}
	return &Runtime{opts: opts}
}

// Query starts the CLI for prompt under cfg.
func (r *Runtime) Query(ctx context.Context, prompt string, cfg agentcfg.Config) (agent.Stream, error) {
	args, err := buildArgs(cfg)
	if err != nil {
		return nil, err
	}
	input, err := userMessage(prompt)
	if err != nil {
		return nil, err
	}

	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, r.opts.Binary, args...)
	cmd.Dir = cfg.WorkingDirectory
	cmd.Env = r.environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start %s: %w", r.opts.Binary, err)
	}
	log.Debug().Int("pid", cmd.Process.Pid).Str("model", cfg.Model).Msg("Agent process started")

	if _, err := stdin.Write(append(input, '\n')); err != nil {
		cancel()
		_ = cmd.Wait()
		return nil, fmt.Errorf("failed to write prompt: %w", err)
	}
	stdin.Close()

	s := newStream(cancel)
	tail := newTailBuffer(r.opts.StderrLines)

	go func() {
		defer s.finish()
		defer cancel()

		stderrDone := readStderr(stderr, tail)
		if err := decodeEvents(procCtx, stdout, r.opts.MaxLineBytes, s.events); err != nil && procCtx.Err() == nil {
			s.err = &agent.RunError{
				Message: "agent output could not be read: " + err.Error(),
				Details: map[string]any{"stderr": tail.String()},
			}
			cancel()
		}
		// the child must never block on a full pipe
		_, _ = io.Copy(io.Discard, stdout)

		select {
		case <-stderrDone:
		case <-time.After(stderrReadTimeout):
		}

		err := cmd.Wait()
		if err != nil && s.err == nil && procCtx.Err() == nil {
			s.err = exitError(err, tail.String())
		}
		log.Debug().Err(err).Msg("Agent process exited")
	}()

	return s, nil
}

func (r *Runtime) environ() []string {
	env := append(os.Environ(), r.opts.Env...)
	if r.opts.APIKey != "" {
		env = append(env, "ANTHROPIC_API_KEY="+r.opts.APIKey)
	}
	return env
}

func exitError(err error, stderr string) *agent.RunError {
	details := map[string]any{"stderr": stderr}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		details["exitCode"] = exitErr.ExitCode()
	}
	msg := "agent process failed: " + err.Error()
	if last := lastLine(stderr); last != "" {
		msg = "agent process failed: " + last
	}
	return &agent.RunError{Message: msg, Details: details}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// buildArgs maps the capability config onto CLI flags.
func buildArgs(cfg agentcfg.Config) ([]string, error) {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
	}

	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if cfg.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(cfg.MaxTurns))
	}
	if cfg.MaxBudgetUSD > 0 {
		args = append(args, "--max-budget-usd", strconv.FormatFloat(cfg.MaxBudgetUSD, 'f', -1, 64))
	}
	if cfg.PermissionMode != "" {
		args = append(args, "--permission-mode", string(cfg.PermissionMode))
	}
	if len(cfg.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(cfg.AllowedTools, ","))
	}
	if len(cfg.DisallowedTools) > 0 {
		args = append(args, "--disallowedTools", strings.Join(cfg.DisallowedTools, ","))
	}

	switch {
	case cfg.SystemPrompt.Text != "":
		args = append(args, "--system-prompt", cfg.SystemPrompt.Text)
	case cfg.SystemPrompt.Append != "":
		args = append(args, "--append-system-prompt", cfg.SystemPrompt.Append)
	}

	if len(cfg.SettingSources) > 0 {
		args = append(args, "--setting-sources", strings.Join(cfg.SettingSources, ","))
	}
	if len(cfg.MCPServers) > 0 {
		data, err := json.Marshal(map[string]any{"mcpServers": cfg.MCPServers})
		if err != nil {
			return nil, fmt.Errorf("encode mcp config: %w", err)
		}
		args = append(args, "--mcp-config", string(data))
	}
	if len(cfg.Agents) > 0 {
		data, err := json.Marshal(cfg.Agents)
		if err != nil {
			return nil, fmt.Errorf("encode agents: %w", err)
		}
		args = append(args, "--agents", string(data))
	}

	if cfg.Resume != "" {
		args = append(args, "--resume", cfg.Resume)
		if cfg.ForkSession {
			args = append(args, "--fork-session")
		}
	} else if cfg.Continue {
		args = append(args, "--continue")
	}
	return args, nil
}

func userMessage(prompt string) ([]byte, error) {
	msg := map[string]any{
		"type": "user",
		"message": map[string]any{
			"role": "user",
			"content": []map[string]string{
				{"type": "text", "text": prompt},
			},
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}

// decodeEvents sends one event per JSON line of r. Lines that are not JSON
// are logged and skipped. It returns nil at end of input or when ctx ends,
// and an error when a line cannot be read whole.
func decodeEvents(ctx context.Context, r io.Reader, maxLine int, events chan<- models.Event) error {
	br := bufio.NewReaderSize(r, 64<<10)

	for {
		line, readErr := readLine(br, maxLine)
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return readErr
		}

		if len(bytes.TrimSpace(line)) > 0 {
			ev, err := models.ParseEvent(line)
			if err != nil {
				log.Warn().Err(err).Str("line", truncate(string(line), 200)).Msg("Skipping non-JSON agent output")
			} else {
				select {
				case events <- ev:
				case <-ctx.Done():
					return nil
				}
			}
		}

		if readErr != nil {
			return nil
		}
	}
}

// readLine returns the next line of br without its terminator. A line
// longer than max is an error and is not consumed past the limit.
func readLine(br *bufio.Reader, max int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := br.ReadSlice('\n')
		if len(line)+len(chunk) > max {
			return nil, fmt.Errorf("%w (%d bytes)", errLineTooLong, max)
		}
		line = append(line, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimRight(line, "\r\n"), err
	}
}

// readStderr keeps the tail of r. Over-long lines are cut short and the
// rest of the line is discarded.
func readStderr(r io.Reader, tail *tailBuffer) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		br := bufio.NewReader(r)
		var line []byte
		for {
			chunk, err := br.ReadSlice('\n')
			if room := maxStderrLineBytes - len(line); room > 0 {
				line = append(line, chunk[:min(len(chunk), room)]...)
			}
			if errors.Is(err, bufio.ErrBufferFull) {
				continue
			}
			if text := strings.TrimRight(string(line), "\r\n"); text != "" {
				tail.Write(text)
			}
			line = line[:0]
			if err != nil {
				return
			}
		}
	}()
	return done
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// stream implements agent.Stream over the decoder goroutine.
type stream struct {
	events    chan models.Event
	err       error // set before events is closed
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newStream(cancel context.CancelFunc) *stream {
	return &stream{events: make(chan models.Event), cancel: cancel}
}

func (s *stream) finish() {
	close(s.events)
}

func (s *stream) Next(ctx context.Context) (models.Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			// the process is killed when ctx ends; that is not a clean exit
			if err := ctx.Err(); err != nil {
				return models.Event{}, err
			}
			if s.err != nil {
				return models.Event{}, s.err
			}
			return models.Event{}, io.EOF
		}
		return ev, nil
	case <-ctx.Done():
		return models.Event{}, ctx.Err()
	}
}

// Close kills the process if it is still running.
func (s *stream) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}
