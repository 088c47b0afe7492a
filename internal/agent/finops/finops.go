// Package finops is the cost-analysis specialist. Each query runs a fresh
// reasoning loop over the tools of a billing MCP server started for that
// query only.
package finops

import (
	"github.com/moolen/sre-assistant/internal/agent/capability"
	"github.com/moolen/sre-assistant/internal/config"
	mcpclient "github.com/moolen/sre-assistant/internal/mcp/client"
)

const (
	// Name is the routing identifier of the specialist.
	Name = "finops_assistant"
	// Display names the specialist in failure text.
	Display = "FinOps assistant"
)

// Description is read by the routing decision.
const Description = `Analyze AWS costs, spending, forecasts and cost optimization using AWS Cost Explorer data.
Queries historical spend, cost breakdowns by service, region, account or tag, period comparisons and forecasts. Every billing call is metered.
Example queries: "What are my AWS costs for [time period]?", "Show me cost breakdown by [service/region/etc]", "Compare my costs between [period1] and [period2]"
More examples: "Forecast my AWS costs for [future period]", "Which services cost the most?", "How can I optimize my AWS costs?", "Show EC2 spending"
Do not use for Kubernetes pods, deployments, logs or cluster events.`

// SystemPrompt instructs the inner loop.
const SystemPrompt = `You are a FinOps (Financial Operations) specialist with expertise in AWS cost analysis and optimization.

Your expertise includes:
- Analyzing AWS costs and usage patterns
- Identifying cost optimization opportunities
- Forecasting future spend
- Comparing costs across time periods
- Breaking down costs by service, region, account or tag

When analyzing costs:
1. Use the available Cost Explorer tools to query actual billing data
2. Provide clear, actionable insights with concrete figures
3. Call out trends and anomalies
4. Suggest optimization opportunities when relevant
5. Keep the number of billing queries small, each one is charged

Always cite the time period and filters used in your analysis.`

// Opener starts the billing MCP server described by cfg.
func Opener(cfg config.FinOpsConfig) *mcpclient.StdioOpener {
	env := map[string]string{
		"AWS_REGION":        cfg.Region,
		"FASTMCP_LOG_LEVEL": cfg.MCPLogLevel,
	}
	if cfg.Profile != "" {
		env["AWS_PROFILE"] = cfg.Profile
	}
	return &mcpclient.StdioOpener{
		Name:        "cost-explorer",
		Command:     cfg.Command,
		Args:        cfg.Args,
		Env:         env,
		InitTimeout: cfg.InitTimeout,
	}
}

// New creates the specialist. settings provides the oracle and hook; the
// prompt and limits come from cfg. A nil opener starts the server of cfg.
func New(cfg config.FinOpsConfig, settings capability.LoopSettings, opener mcpclient.Opener) *capability.Specialist {
	if opener == nil {
		opener = Opener(cfg)
	}
	settings.SystemPrompt = SystemPrompt
	settings.MaxSteps = cfg.MaxSteps
	settings.MaxToolCalls = cfg.MaxToolCalls
	return capability.New(Name, Display, Description, capability.SessionRun(settings, opener))
}
