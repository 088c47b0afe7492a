// Package coordinator routes each user query to at most one specialist
// capability, or answers it directly, and streams the progress of the turn
// as normalized events.
package coordinator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/moolen/sre-assistant/internal/agent/capability"
)

const promptHeader = `You are an SRE (Site Reliability Engineering) coordinator assistant.

Your role is to help users with infrastructure troubleshooting and operations by routing
queries to specialized agents or answering directly.

## Available Specialist Agents
`

const promptGeneral = `
## General SRE Questions

Answer directly, without calling a specialist, when the question is about concepts,
practices or troubleshooting approaches rather than the user's own systems.

Examples:
- "How do I troubleshoot X?"
- "What's the best practice for Y?"
- "Explain how Z works"

## Routing Rules

1. Match the query against the specialists above and use the one that fits.
2. Use at most one specialist per query.
3. Pass the complete user query to the specialist, unchanged.
4. If you are unsure which specialist applies, ask a clarifying question instead of guessing.
5. If a specialist reports an error, tell the user what failed. Do not retry with another specialist.
6. Present the specialist's response to the user.

Always be helpful, clear, and concise in your responses.`

const promptHardLimit = `

Only the first specialist call of a query is executed; further calls are refused.`

// SystemPrompt renders the routing policy for capabilities in registry
// order. Each entry carries the summary line and the example queries of the
// capability's description, so the prompt names exactly the registered
// specialists.
func SystemPrompt(capabilities []capability.Capability, hardLimit bool) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	for _, c := range capabilities {
		summary, examples, exclusions := describe(c.Description())
		fmt.Fprintf(&b, "\n### %s\n%s\n", c.Name(), summary)
		if len(examples) > 0 {
			b.WriteString("\nExamples:\n")
			for _, e := range examples {
				fmt.Fprintf(&b, "- %q\n", e)
			}
		}
		for _, e := range exclusions {
			fmt.Fprintf(&b, "\n%s\n", e)
		}
	}
	b.WriteString(promptGeneral)
	if hardLimit {
		b.WriteString(promptHardLimit)
	}
	return b.String()
}

var quotedExample = regexp.MustCompile(`"([^"]+)"`)

// describe splits a capability description into its summary line, the
// quoted example queries and the exclusion lines.
func describe(description string) (summary string, examples, exclusions []string) {
	lines := strings.Split(strings.TrimSpace(description), "\n")
	summary = strings.TrimSpace(lines[0])
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "do not use") || strings.Contains(lower, "not for"):
			exclusions = append(exclusions, line)
		case strings.Contains(line, `"`):
			for _, m := range quotedExample.FindAllStringSubmatch(line, -1) {
				examples = append(examples, m[1])
			}
		}
	}
	return summary, examples, exclusions
}
