// Package eks is the optional EKS specialist. Like the cost specialist it
// runs each query inside its own session with the EKS MCP server.
package eks

import (
	"github.com/moolen/sre-assistant/internal/agent/capability"
	"github.com/moolen/sre-assistant/internal/config"
	"github.com/moolen/sre-assistant/internal/logging"
	mcpclient "github.com/moolen/sre-assistant/internal/mcp/client"
)

const (
	Name    = "eks_assistant"
	Display = "EKS assistant"
)

// Description is read by the routing decision.
const Description = `Manage AWS EKS clusters and their Kubernetes resources through the EKS MCP server, including CloudWatch metrics and logs and manifest generation.
Example queries: "What pods are running in my EKS cluster?", "Deploy application [name] to cluster", "What's the status of deployment [name]?"
More examples: "List all services in namespace [name]", "Show me Kubernetes events for EKS", "Check EKS cluster health"
Do not use for AWS billing or cost questions.`

const SystemPrompt = `You are a Kubernetes and AWS EKS (Elastic Kubernetes Service) specialist.

Your expertise includes:
- Managing EKS clusters and worker nodes
- Deploying and managing Kubernetes workloads (pods, deployments, services)
- Troubleshooting cluster and application issues
- Analyzing pod logs and Kubernetes events
- CloudWatch metrics and logs analysis

When analyzing clusters:
1. Use the available EKS tools to query actual cluster data
2. Provide clear, actionable insights
3. Include specific resource names and states
4. Suggest troubleshooting steps when relevant

Always cite the cluster/namespace/resource names used in your analysis.`

// AWS carries the shared AWS settings handed to the server.
type AWS struct {
	Region      string
	Profile     string
	MCPLogLevel string
	Kubeconfig  string
}

// Opener starts the EKS MCP server. Write and sensitive-data access are
// only requested when enabled.
func Opener(cfg config.EKSConfig, aws AWS) *mcpclient.StdioOpener {
	logger := logging.GetLogger("eks")
	args := append([]string(nil), cfg.Args...)
	if cfg.AllowWrite {
		args = append(args, "--allow-write")
		logger.Warn("EKS MCP server running with --allow-write enabled")
	}
	if cfg.AllowSensitiveData {
		args = append(args, "--allow-sensitive-data-access")
		logger.Warn("EKS MCP server running with --allow-sensitive-data-access enabled")
	}

	env := map[string]string{
		"AWS_REGION":        aws.Region,
		"FASTMCP_LOG_LEVEL": aws.MCPLogLevel,
	}
	if aws.Profile != "" {
		env["AWS_PROFILE"] = aws.Profile
	}
	if aws.Kubeconfig != "" {
		env["KUBECONFIG"] = aws.Kubeconfig
		logger.Info("using KUBECONFIG %s", aws.Kubeconfig)
	}
	return &mcpclient.StdioOpener{
		Name:    "eks",
		Command: cfg.Command,
		Args:    args,
		Env:     env,
	}
}

// New creates the specialist. A nil opener starts the server of cfg.
func New(cfg config.EKSConfig, aws AWS, settings capability.LoopSettings, opener mcpclient.Opener) *capability.Specialist {
	if opener == nil {
		opener = Opener(cfg, aws)
	}
	settings.SystemPrompt = SystemPrompt
	settings.MaxSteps = cfg.MaxSteps
	settings.MaxToolCalls = cfg.MaxToolCalls
	return capability.New(Name, Display, Description, capability.SessionRun(settings, opener))
}
