package config

import (
	"fmt"
	"strings"
	"time"
)

// Oracle providers understood by the provider factory.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderHeuristic = "heuristic"
	ProviderScripted  = "scripted"
)

// Delegation policies for the coordinator.
const (
	// DelegationSoft leaves "one specialist per query" to the routing prompt.
	DelegationSoft = "soft"
	// DelegationHard refuses every capability call after the first in a turn.
	DelegationHard = "hard"
)

// Config holds all configuration for the assistant
type Config struct {
	Log         LogConfig         `koanf:"log"`
	LLM         LLMConfig         `koanf:"llm"`
	Coordinator CoordinatorConfig `koanf:"coordinator"`
	FinOps      FinOpsConfig      `koanf:"finops"`
	Kubernetes  KubernetesConfig  `koanf:"kubernetes"`
	EKS         EKSConfig         `koanf:"eks"`
	Sessions    SessionsConfig    `koanf:"sessions"`
	Audit       AuditConfig       `koanf:"audit"`
	Tracing     TracingConfig     `koanf:"tracing"`
	Metrics     MetricsConfig     `koanf:"metrics"`
}

// LogConfig controls the default level and per-package overrides. Packages
// holds "name=level" entries; names may contain dots, which koanf would
// otherwise split into nested keys.
type LogConfig struct {
	Level    string   `koanf:"level"`
	Packages []string `koanf:"packages"`
}

// PackageLevels parses Packages into the map logging.Initialize expects.
func (c LogConfig) PackageLevels() (map[string]string, error) {
	levels := make(map[string]string, len(c.Packages))
	for _, entry := range c.Packages {
		name, level, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, NewConfigError(fmt.Sprintf("log.packages entry %q must look like name=level", entry))
		}
		levels[strings.TrimSpace(name)] = strings.TrimSpace(level)
	}
	return levels, nil
}

// LLMConfig selects the reasoning oracle shared by the coordinator and the
// specialists.
type LLMConfig struct {
	Provider    string  `koanf:"provider"`
	Model       string  `koanf:"model"`
	MaxTokens   int     `koanf:"max_tokens"`
	Temperature float64 `koanf:"temperature"`
	APIKey      string  `koanf:"api_key"`

	// ScenarioFile is the YAML script replayed by the scripted provider.
	ScenarioFile string `koanf:"scenario_file"`
}

// CoordinatorConfig configures routing turns.
type CoordinatorConfig struct {
	DelegationPolicy string `koanf:"delegation_policy"`
	MaxSteps         int    `koanf:"max_steps"`

	// TurnTimeout bounds one turn. Zero means no deadline.
	TurnTimeout time.Duration `koanf:"turn_timeout"`

	// EventBuffer is the capacity of the per-turn event channel.
	EventBuffer int `koanf:"event_buffer"`
}

// FinOpsConfig configures the cost-analysis specialist and its billing MCP
// server.
type FinOpsConfig struct {
	Command     string        `koanf:"command"`
	Args        []string      `koanf:"args"`
	Region      string        `koanf:"region"`
	Profile     string        `koanf:"profile"`
	MCPLogLevel string        `koanf:"mcp_log_level"`
	InitTimeout time.Duration `koanf:"init_timeout"`

	// MaxToolCalls caps metered billing calls per invocation.
	MaxToolCalls int `koanf:"max_tool_calls"`
	MaxSteps     int `koanf:"max_steps"`
}

// KubernetesConfig configures the cluster-management specialist.
type KubernetesConfig struct {
	Kubeconfig     string `koanf:"kubeconfig"`
	DefaultCluster string `koanf:"default_cluster"`
	AllowWrite     bool   `koanf:"allow_write"`
	MaxSteps       int    `koanf:"max_steps"`
}

// EKSConfig configures the optional MCP-backed EKS specialist.
type EKSConfig struct {
	Enabled            bool     `koanf:"enabled"`
	Command            string   `koanf:"command"`
	Args               []string `koanf:"args"`
	AllowWrite         bool     `koanf:"allow_write"`
	AllowSensitiveData bool     `koanf:"allow_sensitive_data"`
	MaxToolCalls       int      `koanf:"max_tool_calls"`
	MaxSteps           int      `koanf:"max_steps"`
}

// SessionsConfig configures per-user history storage used by the CLI.
type SessionsConfig struct {
	Dir       string `koanf:"dir"`
	CacheSize int    `koanf:"cache_size"`
}

// AuditConfig enables the JSONL audit log when Path is set.
type AuditConfig struct {
	Path string `koanf:"path"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
	Insecure bool   `koanf:"insecure"`
	CAPath   string `koanf:"ca_path"`
}

// MetricsConfig exposes prometheus metrics on Addr when set.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderGemini:
		if c.LLM.APIKey == "" {
			return NewConfigError(fmt.Sprintf("llm.api_key must be set for provider %q", c.LLM.Provider))
		}
	case ProviderHeuristic:
	case ProviderScripted:
		if c.LLM.ScenarioFile == "" {
			return NewConfigError("llm.scenario_file must be set for the scripted provider")
		}
	default:
		return NewConfigError(fmt.Sprintf("unknown llm.provider %q", c.LLM.Provider))
	}

	if _, err := c.Log.PackageLevels(); err != nil {
		return err
	}

	if c.LLM.MaxTokens < 1 {
		return NewConfigError("llm.max_tokens must be at least 1")
	}

	if c.Coordinator.DelegationPolicy != DelegationSoft && c.Coordinator.DelegationPolicy != DelegationHard {
		return NewConfigError(fmt.Sprintf("coordinator.delegation_policy must be %q or %q", DelegationSoft, DelegationHard))
	}

	if c.Coordinator.MaxSteps < 1 || c.FinOps.MaxSteps < 1 || c.Kubernetes.MaxSteps < 1 || c.EKS.MaxSteps < 1 {
		return NewConfigError("max_steps must be at least 1 for the coordinator and every specialist")
	}

	if c.Coordinator.TurnTimeout < 0 {
		return NewConfigError("coordinator.turn_timeout must not be negative")
	}

	if c.Coordinator.EventBuffer < 1 {
		return NewConfigError("coordinator.event_buffer must be at least 1")
	}

	if c.FinOps.Command == "" {
		return NewConfigError("finops.command must not be empty")
	}

	if c.FinOps.MaxToolCalls < 1 {
		return NewConfigError("finops.max_tool_calls must be at least 1")
	}

	if c.EKS.Enabled && c.EKS.Command == "" {
		return NewConfigError("eks.command must be set when eks is enabled")
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return NewConfigError("tracing.endpoint must be set when tracing is enabled")
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return e.message
}
