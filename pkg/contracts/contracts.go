// Package contracts defines the service interfaces shared between the
// relay, the HTTP handlers and their implementations.
//
// Implementations:
//   - AgentRuntime: internal/agent/claudecli (Claude CLI subprocess)
//   - SessionStore: internal/sessions (in-memory)
package contracts

import (
	"context"

	"github.com/deepresearch/research-agent/internal/agent"
	"github.com/deepresearch/research-agent/internal/agentcfg"
	"github.com/deepresearch/research-agent/pkg/models"
)

// ── AgentRuntime ────────────────────────────────────────────

// AgentRuntime starts one agent invocation per research query. The
// returned stream yields the runtime's events in emission order.
type AgentRuntime interface {
	Query(ctx context.Context, prompt string, cfg agentcfg.Config) (agent.Stream, error)
}

// ── SessionStore ────────────────────────────────────────────

// SessionStore keeps the sessions observed on relayed event streams.
// Sessions live in memory only and do not survive a restart.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	UpdateSession(ctx context.Context, session *models.Session) error
	// UpdateSessionFunc mutates a stored session atomically.
	UpdateSessionFunc(ctx context.Context, id string, fn func(*models.Session)) error
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context) ([]models.Session, error)
}
