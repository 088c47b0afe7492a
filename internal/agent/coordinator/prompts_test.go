package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moolen/sre-assistant/internal/agent/capability"
	"github.com/moolen/sre-assistant/internal/agent/eks"
	"github.com/moolen/sre-assistant/internal/agent/finops"
	"github.com/moolen/sre-assistant/internal/agent/kubernetes"
)

func describedOnly(name, description string) capability.Capability {
	return capability.New(name, name, description, func(context.Context, string) (string, error) { return "", nil })
}

func TestSystemPromptListsRegisteredCapabilities(t *testing.T) {
	caps := []capability.Capability{
		describedOnly(finops.Name, finops.Description),
		describedOnly(kubernetes.Name, kubernetes.Description),
	}
	prompt := SystemPrompt(caps, false)

	assert.Contains(t, prompt, "### finops_assistant")
	assert.Contains(t, prompt, "### kubernetes_assistant")
	assert.Contains(t, prompt, `- "What are my AWS costs for [time period]?"`)
	assert.Contains(t, prompt, `- "List all namespaces"`)
	assert.Contains(t, prompt, "Do not use for AWS costs, billing or spend forecasts.")
	assert.Contains(t, prompt, "Use at most one specialist per query.")
	assert.Contains(t, prompt, "ask a clarifying question")
	assert.Contains(t, prompt, "Pass the complete user query")
	assert.NotContains(t, prompt, "eks_assistant")
	assert.NotContains(t, prompt, "further calls are refused")
	assert.Less(t, indexOf(prompt, "### finops_assistant"), indexOf(prompt, "### kubernetes_assistant"))

	withEKS := SystemPrompt(append(caps, describedOnly(eks.Name, eks.Description)), true)
	assert.Contains(t, withEKS, "### eks_assistant")
	assert.Contains(t, withEKS, "further calls are refused")
}

func TestDescribe(t *testing.T) {
	summary, examples, exclusions := describe("Summary line.\nExample queries: \"a\", \"b\"\nDo not use for c.")
	assert.Equal(t, "Summary line.", summary)
	assert.Equal(t, []string{"a", "b"}, examples)
	assert.Equal(t, []string{"Do not use for c."}, exclusions)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
