// Package agentcfg builds the capability descriptor handed to the agent
// runtime for each research query: model, prompt, tool allow-list,
// permission mode, and budget/turn ceilings.
package agentcfg

import (
	"maps"
	"slices"

	"github.com/deepresearch/research-agent/internal/config"
	"github.com/deepresearch/research-agent/internal/searchtools"
)

// PermissionMode controls how the runtime handles sensitive tool calls.
type PermissionMode string

const (
	PermissionDefault     PermissionMode = "default"
	PermissionAcceptEdits PermissionMode = "acceptEdits"
	PermissionBypass      PermissionMode = "bypassPermissions"
	PermissionPlan        PermissionMode = "plan"
)

// PresetClaudeCode is the runtime's built-in system prompt preset.
const PresetClaudeCode = "claude_code"

// SystemPrompt is either a preset with appended text, or a full
// replacement prompt when Text is set.
type SystemPrompt struct {
	Preset string `json:"preset,omitempty"`
	Append string `json:"append,omitempty"`
	Text   string `json:"text,omitempty"`
}

// MCPServer is one entry of the runtime's MCP server map.
type MCPServer struct {
	Type    string            `json:"type"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// AgentDefinition describes a subagent the runtime may delegate to.
type AgentDefinition struct {
	Description string   `json:"description"`
	Prompt      string   `json:"prompt"`
	Tools       []string `json:"tools,omitempty"`
	Model       string   `json:"model,omitempty"`
}

// Config is the capability descriptor consumed by the agent runtime.
// Treat it as immutable; Build returns fresh copies.
type Config struct {
	Model            string                     `json:"model"`
	WorkingDirectory string                     `json:"workingDirectory"`
	SystemPrompt     SystemPrompt               `json:"systemPrompt"`
	SettingSources   []string                   `json:"settingSources,omitempty"`
	MCPServers       map[string]MCPServer       `json:"mcpServers,omitempty"`
	Agents           map[string]AgentDefinition `json:"agents,omitempty"`
	AllowedTools     []string                   `json:"allowedTools,omitempty"`
	DisallowedTools  []string                   `json:"disallowedTools,omitempty"`
	PermissionMode   PermissionMode             `json:"permissionMode"`
	MaxBudgetUSD     float64                    `json:"maxBudgetUsd"`
	MaxTurns         int                        `json:"maxTurns"`
	Resume           string                     `json:"resume,omitempty"`
	ForkSession      bool                       `json:"forkSession,omitempty"`
	Continue         bool                       `json:"continue,omitempty"`
}

// Overrides replaces individual top-level fields of the base config.
// A nil field leaves the base value in place. Maps and slices replace the
// base value wholesale; nothing is merged key by key.
type Overrides struct {
	Model            *string
	WorkingDirectory *string
	SystemPrompt     *SystemPrompt
	SettingSources   []string
	MCPServers       map[string]MCPServer
	Agents           map[string]AgentDefinition
	AllowedTools     []string
	DisallowedTools  []string
	PermissionMode   *PermissionMode
	MaxBudgetUSD     *float64
	MaxTurns         *int
	Resume           *string
	ForkSession      *bool
	Continue         *bool
}

// DefaultAllowedTools is the orchestrator's tool allow-list.
var DefaultAllowedTools = []string{
	// search provider tools
	searchtools.QualifiedName(searchtools.ToolSearch),
	searchtools.QualifiedName(searchtools.ToolGetContents),
	searchtools.QualifiedName(searchtools.ToolFindSimilar),

	// file system, read-only preferred
	"Read",
	"Grep",
	"Glob",

	// report writing
	"Write",
	"Edit",

	"Bash",
}

// Builder produces capability configs from a fixed base.
type Builder struct {
	base Config
}

// NewBuilder snapshots the agent settings into a base config.
func NewBuilder(cfg config.AgentConfig) *Builder {
	b := &Builder{
		base: Config{
			Model:            cfg.DefaultModel,
			WorkingDirectory: cfg.WorkDir,
			SystemPrompt: SystemPrompt{
				Preset: PresetClaudeCode,
				Append: ResearchPrompt,
			},
			SettingSources: []string{"project"},
			MCPServers: map[string]MCPServer{
				searchtools.ServerName: {Type: "http", URL: cfg.MCPURL},
			},
			AllowedTools:   slices.Clone(DefaultAllowedTools),
			PermissionMode: PermissionDefault,
			MaxBudgetUSD:   cfg.MaxBudgetUSD,
			MaxTurns:       cfg.MaxTurns,
		},
	}
	if cfg.Subagents {
		b.base.Agents = Subagents()
	}
	return b
}

// Build returns the base config with o applied on top. o may be nil.
func (b *Builder) Build(o *Overrides) Config {
	c := b.base.clone()
	if o == nil {
		return c
	}

	if o.Model != nil {
		c.Model = *o.Model
	}
	if o.WorkingDirectory != nil {
		c.WorkingDirectory = *o.WorkingDirectory
	}
	if o.SystemPrompt != nil {
		c.SystemPrompt = *o.SystemPrompt
	}
	if o.SettingSources != nil {
		c.SettingSources = slices.Clone(o.SettingSources)
	}
	if o.MCPServers != nil {
		c.MCPServers = maps.Clone(o.MCPServers)
	}
	if o.Agents != nil {
		c.Agents = cloneAgents(o.Agents)
	}
	if o.AllowedTools != nil {
		c.AllowedTools = slices.Clone(o.AllowedTools)
	}
	if o.DisallowedTools != nil {
		c.DisallowedTools = slices.Clone(o.DisallowedTools)
	}
	if o.PermissionMode != nil {
		c.PermissionMode = *o.PermissionMode
	}
	if o.MaxBudgetUSD != nil {
		c.MaxBudgetUSD = *o.MaxBudgetUSD
	}
	if o.MaxTurns != nil {
		c.MaxTurns = *o.MaxTurns
	}
	if o.Resume != nil {
		c.Resume = *o.Resume
	}
	if o.ForkSession != nil {
		c.ForkSession = *o.ForkSession
	}
	if o.Continue != nil {
		c.Continue = *o.Continue
	}
	return c
}

func (c Config) clone() Config {
	c.SettingSources = slices.Clone(c.SettingSources)
	c.MCPServers = maps.Clone(c.MCPServers)
	c.Agents = cloneAgents(c.Agents)
	c.AllowedTools = slices.Clone(c.AllowedTools)
	c.DisallowedTools = slices.Clone(c.DisallowedTools)
	return c
}
