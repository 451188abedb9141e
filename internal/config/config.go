package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the research agent server.
type Config struct {
	Port      int    `yaml:"port"`
	Version   string `yaml:"version"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// AllowedOrigins applies to CORS and WebSocket origin checks.
	AllowedOrigins []string `yaml:"allowed_origins"`

	Credentials Credentials     `yaml:"-"`
	Agent       AgentConfig     `yaml:"agent"`
	Exa         ExaConfig       `yaml:"exa"`
	Relay       RelayConfig     `yaml:"relay"`
	Sessions    SessionsConfig  `yaml:"sessions"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// Credentials are never read from the YAML file.
type Credentials struct {
	AnthropicAPIKey string
	ExaAPIKey       string
}

type AgentConfig struct {
	DefaultModel string  `yaml:"default_model"`
	MaxBudgetUSD float64 `yaml:"max_budget_usd"`
	MaxTurns     int     `yaml:"max_turns"`
	CLIPath      string  `yaml:"cli_path"`
	WorkDir      string  `yaml:"work_dir"`
	// MCPURL is where the agent runtime reaches this server's MCP gateway.
	MCPURL string `yaml:"mcp_url"`
	// Subagents registers the specialist subagents with every query.
	Subagents bool `yaml:"subagents"`
}

type ExaConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type RelayConfig struct {
	// MaxDuration is the coarse ceiling on one relayed query.
	MaxDuration time.Duration `yaml:"max_duration"`
}

type SessionsConfig struct {
	// Retention is how long an idle session stays in the registry.
	// Zero keeps sessions until the process exits.
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// TelemetryConfig controls trace export. ServiceName and ServiceVersion
// become the OTel resource; SampleRatio applies to root spans only.
type TelemetryConfig struct {
	Enabled        bool    `yaml:"enabled"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	Insecure       bool    `yaml:"insecure"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
	SampleRatio    float64 `yaml:"sample_ratio"`
}

const (
	DefaultModel        = "claude-sonnet-4-5"
	DefaultMaxBudgetUSD = 10.0
	DefaultMaxTurns     = 50
)

// Defaults returns the built-in configuration.
func Defaults() *Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return &Config{
		Port:           8080,
		Version:        "0.1.0",
		LogLevel:       "info",
		LogFormat:      "console",
		AllowedOrigins: []string{"*"},
		Agent: AgentConfig{
			DefaultModel: DefaultModel,
			MaxBudgetUSD: DefaultMaxBudgetUSD,
			MaxTurns:     DefaultMaxTurns,
			CLIPath:      "claude",
			WorkDir:      wd,
		},
		Exa: ExaConfig{
			BaseURL: "https://api.exa.ai",
			Timeout: 30 * time.Second,
		},
		Relay: RelayConfig{
			MaxDuration: 5 * time.Minute,
		},
		Sessions: SessionsConfig{
			Retention:     24 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Insecure:    true,
			ServiceName: "research-agent",
			SampleRatio: 1,
		},
	}
}

// Load reads configuration: defaults, then the YAML file named by
// RESEARCH_CONFIG (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("RESEARCH_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = envInt("PORT", c.Port)
	c.Version = envStr("APP_VERSION", c.Version)
	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envStr("LOG_FORMAT", c.LogFormat)
	c.AllowedOrigins = envList("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)

	c.Credentials = Credentials{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		ExaAPIKey:       os.Getenv("EXA_API_KEY"),
	}

	c.Agent.DefaultModel = envStr("DEFAULT_MODEL", c.Agent.DefaultModel)
	c.Agent.MaxBudgetUSD = envFloat("MAX_BUDGET_USD", c.Agent.MaxBudgetUSD)
	c.Agent.MaxTurns = envInt("MAX_TURNS", c.Agent.MaxTurns)
	c.Agent.CLIPath = envStr("CLAUDE_CLI_PATH", c.Agent.CLIPath)
	c.Agent.WorkDir = envStr("WORK_DIR", c.Agent.WorkDir)
	c.Agent.MCPURL = envStr("MCP_PUBLIC_URL", c.Agent.MCPURL)
	c.Agent.Subagents = envBool("ENABLE_SUBAGENTS", c.Agent.Subagents)
	if c.Agent.MCPURL == "" {
		c.Agent.MCPURL = fmt.Sprintf("http://localhost:%d/mcp", c.Port)
	}

	c.Exa.BaseURL = envStr("EXA_BASE_URL", c.Exa.BaseURL)
	c.Relay.MaxDuration = envDuration("RELAY_MAX_DURATION", c.Relay.MaxDuration)
	c.Sessions.Retention = envDuration("SESSION_RETENTION", c.Sessions.Retention)

	c.Telemetry.Enabled = envBool("OTEL_ENABLED", c.Telemetry.Enabled)
	c.Telemetry.OTLPEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.OTLPEndpoint)
	c.Telemetry.Insecure = envBool("OTEL_EXPORTER_OTLP_INSECURE", c.Telemetry.Insecure)
	c.Telemetry.ServiceName = envStr("OTEL_SERVICE_NAME", c.Telemetry.ServiceName)
	c.Telemetry.ServiceVersion = envStr("OTEL_SERVICE_VERSION", c.Telemetry.ServiceVersion)
	if c.Telemetry.ServiceVersion == "" {
		c.Telemetry.ServiceVersion = c.Version
	}
	c.Telemetry.SampleRatio = envFloat("OTEL_SAMPLE_RATIO", c.Telemetry.SampleRatio)
}

// MissingCredential returns the name of the first required credential
// that is not configured, or "" when both are present.
func (c *Config) MissingCredential() string {
	return c.Credentials.Missing()
}

// Missing returns the name of the first unset credential, or "".
func (c Credentials) Missing() string {
	if c.AnthropicAPIKey == "" {
		return "ANTHROPIC_API_KEY"
	}
	if c.ExaAPIKey == "" {
		return "EXA_API_KEY"
	}
	return ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
