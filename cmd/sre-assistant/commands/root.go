package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moolen/sre-assistant/internal/config"
	"github.com/moolen/sre-assistant/internal/logging"
)

const Version = "0.1.0"

var (
	configPath    string
	logLevelFlags []string // Supports multiple --log-level flags
)

var rootCmd = &cobra.Command{
	Use:   "sre-assistant",
	Short: "SRE assistant - routes infrastructure questions to specialist agents",
	Long: `sre-assistant answers infrastructure questions. Each query is routed by a
reasoning model to at most one specialist: cost analysis backed by AWS Cost
Explorer, Kubernetes cluster inspection, or (when enabled) EKS operations.
General SRE questions are answered directly.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a YAML configuration file")
	// Supports per-package log levels: --log-level debug --log-level cluster=debug
	rootCmd.PersistentFlags().StringSliceVar(&logLevelFlags, "log-level", nil,
		"Log level for packages. Use 'default=level' for default, or 'package.name=level' for per-package.\n"+
			"Examples: --log-level debug (all), --log-level coordinator=debug --log-level mcp.client=warn")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(capabilitiesCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(mcpCmd)
}

// loadConfig loads and validates the configuration and initializes logging
// from it. --log-level flags override the configured levels.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := setupLog(cfg.Log, logLevelFlags); err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return cfg, nil
}

// setupLog initializes the logging system from the config and the parsed log
// level flags. Priority: CLI flags > LOG_LEVEL_* environment > config file.
func setupLog(logCfg config.LogConfig, flags []string) error {
	configured, err := logCfg.PackageLevels()
	if err != nil {
		return err
	}
	defaultLevel, packageLevels, err := parseLogLevelFlags(logCfg.Level, flags)
	if err != nil {
		return err
	}
	for pkg, level := range packageLevels {
		configured[pkg] = level
	}
	return logging.Initialize(defaultLevel, configured)
}

// parseLogLevelFlags merges LOG_LEVEL_* environment variables and CLI flags
// over fallback.
//
// CLI format: ["debug"], ["default=info", "mcp.client=debug"]
// Env vars: LOG_LEVEL_MCP_CLIENT=debug (package name uppercased, dots to underscores)
func parseLogLevelFlags(fallback string, flags []string) (string, map[string]string, error) {
	result := make(map[string]string)

	for _, envPair := range os.Environ() {
		if strings.HasPrefix(envPair, "LOG_LEVEL_") {
			parts := strings.SplitN(envPair, "=", 2)
			if len(parts) != 2 {
				continue
			}
			result[convertEnvKeyToPackageName(parts[0])] = parts[1]
		}
	}

	for _, flag := range flags {
		if !strings.Contains(flag, "=") {
			result["default"] = flag
			continue
		}
		parts := strings.SplitN(flag, "=", 2)
		result[parts[0]] = parts[1]
	}

	defaultLevel := fallback
	if defaultLevel == "" {
		defaultLevel = "info"
	}
	if level, exists := result["default"]; exists {
		defaultLevel = level
		delete(result, "default")
	}

	if err := validateLogLevel(defaultLevel); err != nil {
		return "", nil, err
	}
	for pkg, level := range result {
		if err := validateLogLevel(level); err != nil {
			return "", nil, fmt.Errorf("invalid log level for package %q: %v", pkg, err)
		}
	}
	return defaultLevel, result, nil
}

// convertEnvKeyToPackageName converts LOG_LEVEL_MCP_CLIENT -> mcp.client
func convertEnvKeyToPackageName(envKey string) string {
	name := strings.TrimPrefix(envKey, "LOG_LEVEL_")
	return strings.ToLower(strings.ReplaceAll(name, "_", "."))
}

func validateLogLevel(level string) error {
	if _, err := logging.ParseLevel(level); err != nil {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error, fatal)", level)
	}
	return nil
}
