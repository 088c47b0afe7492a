package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// sections: SRE_FINOPS__MAX_TOOL_CALLS sets finops.max_tool_calls.
const EnvPrefix = "SRE_"

func setDefaults(k *koanf.Koanf) {
	_ = k.Set("log.level", "info")

	_ = k.Set("llm.provider", ProviderAnthropic)
	_ = k.Set("llm.max_tokens", 4096)
	_ = k.Set("llm.temperature", 0.0)

	_ = k.Set("coordinator.delegation_policy", DelegationSoft)
	_ = k.Set("coordinator.max_steps", 6)
	_ = k.Set("coordinator.event_buffer", 64)

	_ = k.Set("finops.command", "uvx")
	_ = k.Set("finops.args", []string{"awslabs.cost-explorer-mcp-server@latest"})
	_ = k.Set("finops.region", "us-east-1")
	_ = k.Set("finops.mcp_log_level", "ERROR")
	_ = k.Set("finops.init_timeout", "60s")
	_ = k.Set("finops.max_tool_calls", 10)
	_ = k.Set("finops.max_steps", 8)

	_ = k.Set("kubernetes.default_cluster", "default")
	_ = k.Set("kubernetes.max_steps", 8)

	_ = k.Set("eks.command", "uv")
	_ = k.Set("eks.args", []string{"tool", "run", "--from", "awslabs.eks-mcp-server@latest", "awslabs.eks-mcp-server"})
	_ = k.Set("eks.max_tool_calls", 10)
	_ = k.Set("eks.max_steps", 8)

	_ = k.Set("sessions.dir", "./sessions")
	_ = k.Set("sessions.cache_size", 128)
}

// conventionalEnv maps the variables the assistant's deployments already
// export onto config keys.
var conventionalEnv = map[string]string{
	"LOG_LEVEL":                    "log.level",
	"AWS_REGION":                   "finops.region",
	"AWS_PROFILE":                  "finops.profile",
	"FASTMCP_LOG_LEVEL":            "finops.mcp_log_level",
	"KUBECONFIG":                   "kubernetes.kubeconfig",
	"EKS_MCP_ALLOW_WRITE":          "eks.allow_write",
	"EKS_MCP_ALLOW_SENSITIVE_DATA": "eks.allow_sensitive_data",
}

// Load builds the configuration from defaults, the optional YAML file at
// path, conventional environment variables and SRE_ prefixed overrides, in
// that order. The result is not validated.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	setDefaults(k)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	for name, key := range conventionalEnv {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			if err := k.Set(key, conventionalValue(key, v)); err != nil {
				return nil, fmt.Errorf("failed to apply %s: %w", name, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = apiKeyFromEnv(cfg.LLM.Provider)
	}

	return &cfg, nil
}

// Boolean switches arrive as strings; parse them so the typed field decodes.
func conventionalValue(key, v string) interface{} {
	switch key {
	case "eks.allow_write", "eks.allow_sensitive_data":
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return v
}

func apiKeyFromEnv(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case ProviderGemini:
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	}
	return ""
}
