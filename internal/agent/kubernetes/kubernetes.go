// Package kubernetes is the cluster-management specialist. It reasons over
// a fixed toolbox of cluster reads; credentials are resolved per operation,
// so no session spans a query.
package kubernetes

import (
	"github.com/moolen/sre-assistant/internal/agent/capability"
	"github.com/moolen/sre-assistant/internal/cluster"
	"github.com/moolen/sre-assistant/internal/config"
	"github.com/moolen/sre-assistant/internal/logging"
)

const (
	// Name is the routing identifier of the specialist.
	Name = "kubernetes_assistant"
	// Display names the specialist in failure text.
	Display = "Kubernetes assistant"
)

// Description is read by the routing decision.
const Description = `Inspect Kubernetes cluster state: namespaces, pods, pod details, pod logs, deployments and events.
Example queries: "What pods are running in my cluster?", "Show me logs from pod [name]", "List all deployments in namespace [name]"
More examples: "What events occurred in the cluster?", "Check the status of pod [name]", "List all namespaces"
Do not use for AWS costs, billing or spend forecasts.`

// SystemPrompt instructs the inner loop.
const SystemPrompt = `You are a Kubernetes specialist with expertise in cluster management and troubleshooting.

Your expertise includes:
- Inspecting namespaces, pods and deployments
- Reading pod logs and cluster events
- Diagnosing failing, pending and restarting workloads
- Explaining resource states in plain terms

When answering:
1. Use the available tools to query the actual cluster state
2. Include specific resource names, namespaces and states
3. When a tool returns an error field, report the error instead of guessing
4. Suggest concrete next troubleshooting steps when relevant

Always specify which cluster you're querying.`

// writePrompt is appended when the toolbox can change the cluster.
const writePrompt = `

You can scale deployments. Only do so when the user explicitly asks for it, and state the previous and new replica counts.`

// New creates the specialist over ops.
func New(cfg config.KubernetesConfig, settings capability.LoopSettings, ops *cluster.Operations) (*capability.Specialist, error) {
	defaultCluster := cfg.DefaultCluster
	if defaultCluster == "" {
		defaultCluster = cluster.DefaultCluster
	}
	toolbox, err := Toolbox(ops, defaultCluster, cfg.AllowWrite)
	if err != nil {
		return nil, err
	}

	settings.SystemPrompt = SystemPrompt
	if cfg.AllowWrite {
		logging.GetLogger("kubernetes").Warn("kubernetes specialist running with scale_deployment enabled")
		settings.SystemPrompt += writePrompt
	}
	settings.MaxSteps = cfg.MaxSteps
	return capability.New(Name, Display, Description, capability.LocalRun(settings, toolbox)), nil
}
