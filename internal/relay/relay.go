// Package relay streams one research query through the agent runtime.
//
// A request moves Received → Streaming → Completed | Failed. Validation
// happens before any frame is written. Once streaming, every runtime event
// is forwarded to the sink in emission order, one frame per event. The
// final frame is always {"type":"done"}; a runtime failure is reported as a
// single error frame just before it.
package relay

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/deepresearch/research-agent/internal/agent"
	"github.com/deepresearch/research-agent/internal/agentcfg"
	"github.com/deepresearch/research-agent/internal/config"
	"github.com/deepresearch/research-agent/pkg/contracts"
	"github.com/deepresearch/research-agent/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("research-agent/relay")

const defaultErrorMessage = "An error occurred during research"

// Outcome is how a relayed stream ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeAborted means the caller went away mid-stream.
	OutcomeAborted Outcome = "aborted"
)

// Run describes one relayed query.
type Run struct {
	ID        string
	Query     models.Query
	Model     string
	SessionID string // latest runtime session id seen on the stream
	StartedAt time.Time
}

// Result summarizes a finished stream.
type Result struct {
	RunID   string
	Frames  int
	Outcome Outcome
	Err     error
}

// Observer sees every event relayed for a run, including the synthesized
// error event. It must not block.
type Observer interface {
	Observe(ctx context.Context, run Run, ev models.Event)
}

// Service relays queries to the agent runtime.
type Service struct {
	runtime     contracts.AgentRuntime
	builder     *agentcfg.Builder
	creds       config.Credentials
	maxDuration time.Duration
	observer    Observer
}

// NewService creates a relay. obs may be nil.
func NewService(rt contracts.AgentRuntime, b *agentcfg.Builder, cfg *config.Config, obs Observer) *Service {
	return &Service{
		runtime:     rt,
		builder:     b,
		creds:       cfg.Credentials,
		maxDuration: cfg.Relay.MaxDuration,
		observer:    obs,
	}
}

// Validate checks q and the configured credentials. Callers must validate
// before opening a sink.
func (s *Service) Validate(q models.Query) error {
	return Validate(q, s.creds)
}

// Stream relays q to sink until the runtime is exhausted, fails, or the
// caller goes away.
func (s *Service) Stream(ctx context.Context, q models.Query, sink Sink) Result {
	run := Run{
		ID:        uuid.NewString(),
		Query:     q,
		SessionID: q.SessionID,
		StartedAt: time.Now().UTC(),
	}

	var overrides *agentcfg.Overrides
	if q.SessionID != "" {
		overrides = &agentcfg.Overrides{Resume: &q.SessionID}
	}
	cfg := s.builder.Build(overrides)
	run.Model = cfg.Model

	ctx, span := tracer.Start(ctx, "relay.stream")
	defer span.End()
	span.SetAttributes(
		attribute.String("relay.run_id", run.ID),
		attribute.String("relay.model", cfg.Model),
		attribute.Bool("relay.resume", q.SessionID != ""),
	)

	logger := log.With().Str("run_id", run.ID).Logger()
	logger.Info().
		Str("session_id", q.SessionID).
		Str("model", cfg.Model).
		Msg("Relay stream started")

	res := s.relay(ctx, &run, EnhanceQuery(q.Text, q.Options), cfg, sink, logger)

	span.SetAttributes(
		attribute.Int("relay.frames", res.Frames),
		attribute.String("relay.outcome", string(res.Outcome)),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}

	evt := logger.Info()
	if res.Outcome != OutcomeCompleted {
		evt = logger.Warn().Err(res.Err)
	}
	evt.Int("frames", res.Frames).
		Str("outcome", string(res.Outcome)).
		Str("session_id", run.SessionID).
		Dur("duration", time.Since(run.StartedAt)).
		Msg("Relay stream ended")
	return res
}

func (s *Service) relay(ctx context.Context, run *Run, prompt string, cfg agentcfg.Config, sink Sink, logger zerolog.Logger) Result {
	res := Result{RunID: run.ID}

	// Frames go out on the caller's context; the runtime gets the ceiling.
	sinkCtx := ctx
	runCtx := ctx
	if s.maxDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.maxDuration)
		defer cancel()
	}

	send := func(ev models.Event) bool {
		if err := sink.Send(sinkCtx, ev); err != nil {
			res.Outcome = OutcomeAborted
			res.Err = err
			return false
		}
		res.Frames++
		return true
	}

	fail := func(err error) Result {
		if sinkCtx.Err() != nil {
			res.Outcome = OutcomeAborted
			res.Err = sinkCtx.Err()
			return res
		}
		ev := errorEvent(err, s.maxDuration)
		s.observe(sinkCtx, *run, ev)
		if send(ev) && send(models.DoneEvent()) {
			res.Outcome = OutcomeFailed
			res.Err = err
		}
		return res
	}

	stream, err := s.runtime.Query(runCtx, prompt, cfg)
	if err != nil {
		return fail(err)
	}
	defer stream.Close()

	for {
		ev, err := stream.Next(runCtx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(err)
		}

		if ev.SessionID != "" {
			run.SessionID = ev.SessionID
		}
		s.observe(sinkCtx, *run, ev)

		logger.Debug().Str("type", string(ev.Type)).Str("subtype", ev.Subtype).Msg("Relaying event")
		if !send(ev) {
			return res
		}
	}

	if send(models.DoneEvent()) {
		res.Outcome = OutcomeCompleted
	}
	return res
}

func (s *Service) observe(ctx context.Context, run Run, ev models.Event) {
	if s.observer != nil {
		s.observer.Observe(ctx, run, ev)
	}
}

func errorEvent(err error, maxDuration time.Duration) models.Event {
	var runErr *agent.RunError
	switch {
	case errors.As(err, &runErr):
		msg := runErr.Message
		if msg == "" {
			msg = defaultErrorMessage
		}
		return models.NewErrorEvent(models.ErrorKindAgent, msg, runErr.Details)
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewErrorEvent(models.ErrorKindAgent,
			"Research exceeded the maximum duration of "+maxDuration.String(), nil)
	default:
		msg := err.Error()
		if msg == "" {
			msg = defaultErrorMessage
		}
		return models.NewErrorEvent(models.ErrorKindAgent, msg, nil)
	}
}
