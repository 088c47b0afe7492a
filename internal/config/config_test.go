package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for name := range conventionalEnv {
		t.Setenv(name, "")
	}
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens)
	assert.Equal(t, DelegationSoft, cfg.Coordinator.DelegationPolicy)
	assert.Zero(t, cfg.Coordinator.TurnTimeout)
	assert.Equal(t, "uvx", cfg.FinOps.Command)
	assert.Equal(t, []string{"awslabs.cost-explorer-mcp-server@latest"}, cfg.FinOps.Args)
	assert.Equal(t, "us-east-1", cfg.FinOps.Region)
	assert.Equal(t, "ERROR", cfg.FinOps.MCPLogLevel)
	assert.Equal(t, 60*time.Second, cfg.FinOps.InitTimeout)
	assert.Equal(t, 10, cfg.FinOps.MaxToolCalls)
	assert.Equal(t, "default", cfg.Kubernetes.DefaultCluster)
	assert.False(t, cfg.Kubernetes.AllowWrite)
	assert.False(t, cfg.EKS.Enabled)
	assert.Equal(t, "uv", cfg.EKS.Command)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
log:
  level: debug
  packages:
    - agent.*=warn
    - coordinator=debug
llm:
  provider: heuristic
coordinator:
  delegation_policy: hard
  turn_timeout: 90s
finops:
  args: ["cost-explorer", "--stdio"]
  max_tool_calls: 3
kubernetes:
  kubeconfig: /etc/k3s/kubeconfig.yaml
  allow_write: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	levels, err := cfg.Log.PackageLevels()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"agent.*": "warn", "coordinator": "debug"}, levels)
	assert.Equal(t, ProviderHeuristic, cfg.LLM.Provider)
	assert.Equal(t, DelegationHard, cfg.Coordinator.DelegationPolicy)
	assert.Equal(t, 90*time.Second, cfg.Coordinator.TurnTimeout)
	assert.Equal(t, []string{"cost-explorer", "--stdio"}, cfg.FinOps.Args)
	assert.Equal(t, 3, cfg.FinOps.MaxToolCalls)
	assert.Equal(t, "/etc/k3s/kubeconfig.yaml", cfg.Kubernetes.Kubeconfig)
	assert.True(t, cfg.Kubernetes.AllowWrite)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvironmentPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AWS_PROFILE", "billing")
	t.Setenv("KUBECONFIG", "/tmp/kubeconfig")
	t.Setenv("EKS_MCP_ALLOW_WRITE", "true")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("SRE_FINOPS__REGION", "ap-south-1")
	t.Setenv("SRE_COORDINATOR__MAX_STEPS", "3")

	path := writeConfig(t, "finops:\n  region: us-west-2\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ap-south-1", cfg.FinOps.Region, "SRE_ override wins over AWS_REGION and file")
	assert.Equal(t, "billing", cfg.FinOps.Profile)
	assert.Equal(t, "/tmp/kubeconfig", cfg.Kubernetes.Kubeconfig)
	assert.True(t, cfg.EKS.AllowWrite)
	assert.Equal(t, 3, cfg.Coordinator.MaxSteps)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		cfg.LLM.Provider = ProviderHeuristic
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bedrock" }, "unknown llm.provider"},
		{"remote provider without key", func(c *Config) { c.LLM.Provider = ProviderAnthropic }, "llm.api_key"},
		{"remote provider with key", func(c *Config) { c.LLM.Provider = ProviderGemini; c.LLM.APIKey = "k" }, ""},
		{"scripted without scenario", func(c *Config) { c.LLM.Provider = ProviderScripted }, "scenario_file"},
		{"bad policy", func(c *Config) { c.Coordinator.DelegationPolicy = "strict" }, "delegation_policy"},
		{"zero steps", func(c *Config) { c.Kubernetes.MaxSteps = 0 }, "max_steps"},
		{"negative timeout", func(c *Config) { c.Coordinator.TurnTimeout = -time.Second }, "turn_timeout"},
		{"zero billing budget", func(c *Config) { c.FinOps.MaxToolCalls = 0 }, "max_tool_calls"},
		{"eks without command", func(c *Config) { c.EKS.Enabled = true; c.EKS.Command = "" }, "eks.command"},
		{"bad package level entry", func(c *Config) { c.Log.Packages = []string{"agent"} }, "log.packages"},
		{"tracing without endpoint", func(c *Config) { c.Tracing.Enabled = true }, "tracing.endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
