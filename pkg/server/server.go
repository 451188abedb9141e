// Package server provides the public entry point for initializing the
// research agent server.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
//	defer srv.ShutdownFunc(ctx)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/deepresearch/research-agent/internal/agent/claudecli"
	"github.com/deepresearch/research-agent/internal/agentcfg"
	"github.com/deepresearch/research-agent/internal/api"
	"github.com/deepresearch/research-agent/internal/api/handlers"
	"github.com/deepresearch/research-agent/internal/config"
	"github.com/deepresearch/research-agent/internal/exa"
	"github.com/deepresearch/research-agent/internal/mcpgw"
	"github.com/deepresearch/research-agent/internal/relay"
	"github.com/deepresearch/research-agent/internal/searchtools"
	"github.com/deepresearch/research-agent/internal/sessions"
	"github.com/deepresearch/research-agent/internal/telemetry"
	"github.com/deepresearch/research-agent/pkg/contracts"

	"github.com/rs/zerolog/log"
)

// Server holds the initialized research agent server.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Sessions is the session registry fed by relayed events.
	Sessions contracts.SessionStore

	// Janitor expires idle sessions; run it with Start for the server's lifetime.
	Janitor *sessions.Janitor

	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New loads configuration from the environment and returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig initializes the server with an explicit configuration.
// A runtime may be supplied in place of the claude CLI driver.
func NewWithConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	if name := cfg.MissingCredential(); name != "" {
		// Queries are refused until it is set; the status endpoint reports it.
		log.Warn().Str("variable", name).Msg("Credential not configured")
	}

	// Search tools, exposed to the agent runtime through the MCP gateway
	exaClient := exa.NewClient(cfg.Credentials.ExaAPIKey, cfg.Exa.BaseURL, cfg.Exa.Timeout)
	gw := mcpgw.NewGateway(searchtools.New(exaClient))
	log.Info().Str("mcp_url", cfg.Agent.MCPURL).Msg("MCP Gateway initialized")

	runtime := o.runtime
	if runtime == nil {
		runtime = claudecli.New(claudecli.Options{
			Binary: cfg.Agent.CLIPath,
			APIKey: cfg.Credentials.AnthropicAPIKey,
		})
	}

	store := sessions.NewMemorySessionStore()
	rs := relay.NewService(runtime, agentcfg.NewBuilder(cfg.Agent), cfg, sessions.NewRecorder(store))
	log.Info().
		Str("model", cfg.Agent.DefaultModel).
		Dur("max_duration", cfg.Relay.MaxDuration).
		Msg("Query relay initialized")

	h := handlers.New(cfg, rs, store, gw)
	router := api.NewRouter(cfg, h)

	return &Server{
		Handler:      router,
		Sessions:     store,
		Janitor:      sessions.NewJanitor(store, cfg.Sessions.Retention, cfg.Sessions.SweepInterval),
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

// Option customizes NewWithConfig.
type Option func(*options)

type options struct {
	runtime contracts.AgentRuntime
}

// WithRuntime replaces the claude CLI driver.
func WithRuntime(rt contracts.AgentRuntime) Option {
	return func(o *options) { o.runtime = rt }
}
