package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
)

// HeuristicProvider is a deterministic oracle. It routes by comparing the
// query with the example queries quoted in each tool description and answers
// from tool results verbatim. It never calls more than one tool per request
// and never calls a tool once results are present, so a toolbox either gets
// exactly one call or none.
type HeuristicProvider struct {
	chunkWords int
	calls      atomic.Int64
}

// NewHeuristicProvider creates the heuristic oracle. Streamed text is split
// into chunks of chunkWords words; zero means 8.
func NewHeuristicProvider(chunkWords int) *HeuristicProvider {
	if chunkWords <= 0 {
		chunkWords = 8
	}
	return &HeuristicProvider{chunkWords: chunkWords}
}

// Name implements Provider.Name.
func (p *HeuristicProvider) Name() string {
	return "heuristic"
}

// Model implements Provider.Model.
func (p *HeuristicProvider) Model() string {
	return "example-matcher"
}

// Chat implements Provider.Chat.
func (p *HeuristicProvider) Chat(ctx context.Context, _ string, messages []Message, tools []ToolDefinition) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("heuristic provider: no messages")
	}

	last := messages[len(messages)-1]
	if len(last.ToolResult) > 0 {
		return &Response{Content: answerFromResults(messages, last.ToolResult), StopReason: StopReasonEndTurn}, nil
	}

	query := last.Content
	ranked := rankTools(query, tools)
	switch {
	case len(ranked) == 0:
		return &Response{Content: directAnswer(query), StopReason: StopReasonEndTurn}, nil
	case len(ranked) > 1 && ranked[0].score == ranked[1].score && ranked[0].coverage == ranked[1].coverage:
		return &Response{Content: clarifyingQuestion(ranked[0].tool, ranked[1].tool), StopReason: StopReasonEndTurn}, nil
	}

	chosen := ranked[0].tool
	input, err := json.Marshal(buildArguments(query, chosen.InputSchema))
	if err != nil {
		return nil, fmt.Errorf("heuristic provider: encode arguments: %w", err)
	}
	id := fmt.Sprintf("heuristic-%d", p.calls.Add(1))
	return &Response{
		ToolCalls:  []ToolUseBlock{{ID: id, Name: chosen.Name, Input: input}},
		StopReason: StopReasonToolUse,
	}, nil
}

// ChatStream implements StreamingProvider.ChatStream by chunking the
// complete answer.
func (p *HeuristicProvider) ChatStream(ctx context.Context, systemPrompt string, messages []Message, tools []ToolDefinition, onText TextHandler) (*Response, error) {
	resp, err := p.Chat(ctx, systemPrompt, messages, tools)
	if err != nil {
		return nil, err
	}
	if onText != nil {
		for _, chunk := range chunkText(resp.Content, p.chunkWords) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			onText(chunk)
		}
	}
	return resp, nil
}

// chunkText splits s into pieces of n words that concatenate back to s.
func chunkText(s string, n int) []string {
	if s == "" {
		return nil
	}
	var chunks []string
	words, start := 0, 0
	inWord := false
	for i, r := range s {
		space := r == ' ' || r == '\n' || r == '\t'
		if !space && !inWord {
			if words == n {
				chunks = append(chunks, s[start:i])
				start, words = i, 0
			}
			words++
		}
		inWord = !space
	}
	return append(chunks, s[start:])
}

type scoredTool struct {
	tool     ToolDefinition
	score    int
	coverage float64
}

// rankTools returns the tools sharing at least one significant word with the
// query, best first. Ties on score are broken by how much of the matching
// example the query covers; a tie on both is ambiguous.
func rankTools(query string, tools []ToolDefinition) []scoredTool {
	q := tokenSet(query)
	var ranked []scoredTool
	for _, tool := range tools {
		best := scoredTool{tool: tool}
		for _, phrase := range examplePhrases(tool) {
			words := tokenSet(phrase)
			overlap := 0
			for w := range words {
				if q[w] {
					overlap++
				}
			}
			if overlap == 0 {
				continue
			}
			coverage := float64(overlap) / float64(len(words))
			if overlap > best.score || (overlap == best.score && coverage > best.coverage) {
				best.score, best.coverage = overlap, coverage
			}
		}
		if best.score > 0 {
			ranked = append(ranked, best)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].coverage > ranked[j].coverage
	})
	return ranked
}

var quoted = regexp.MustCompile(`"([^"]+)"`)

// examplePhrases returns the quoted example queries of a description, skipping
// lines that list exclusions. Tools without examples fall back to their name
// and first description line.
func examplePhrases(tool ToolDefinition) []string {
	var phrases []string
	for _, line := range strings.Split(tool.Description, "\n") {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "do not use") || strings.Contains(lower, "not for") {
			continue
		}
		for _, m := range quoted.FindAllStringSubmatch(line, -1) {
			phrases = append(phrases, m[1])
		}
	}
	if len(phrases) == 0 {
		first, _, _ := strings.Cut(tool.Description, "\n")
		phrases = append(phrases, strings.ReplaceAll(tool.Name, "_", " ")+" "+first)
	}
	return phrases
}

var (
	placeholder = regexp.MustCompile(`\[[^\]]*\]`)
	wordSplit   = regexp.MustCompile(`[^a-z0-9-]+`)
)

var stopwords = map[string]bool{
	"a": true, "about": true, "all": true, "an": true, "and": true, "any": true,
	"are": true, "be": true, "between": true, "by": true, "can": true, "check": true,
	"do": true, "does": true, "for": true, "from": true, "get": true, "give": true,
	"how": true, "i": true, "in": true, "is": true, "it": true, "list": true,
	"me": true, "my": true, "of": true, "on": true, "or": true, "our": true,
	"please": true, "show": true, "tell": true, "that": true, "the": true,
	"there": true, "this": true, "to": true, "we": true, "what": true,
	"whats": true, "which": true, "with": true, "you": true, "your": true,
}

func tokenSet(s string) map[string]bool {
	s = placeholder.ReplaceAllString(strings.ToLower(s), " ")
	set := make(map[string]bool)
	for _, w := range wordSplit.Split(s, -1) {
		w = strings.Trim(w, "-")
		if w == "" || stopwords[w] {
			continue
		}
		set[stem(w)] = true
	}
	return set
}

// stem folds the plural and progressive forms that appear in queries.
func stem(w string) string {
	switch {
	case len(w) > 5 && strings.HasSuffix(w, "ing"):
		return w[:len(w)-3]
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	}
	return w
}

// buildArguments fills the schema from the query: "query" properties get the
// whole text; other properties take the word next to their keyword
// ("namespace kube-system", "pod web-1", "tail 20").
func buildArguments(query string, schema map[string]interface{}) map[string]interface{} {
	args := make(map[string]interface{})
	props, _ := schema["properties"].(map[string]interface{})
	words := strings.Fields(query)

	for name, raw := range props {
		if name == "query" || name == "prompt" || name == "question" {
			args[name] = query
			continue
		}
		propType := "string"
		if prop, ok := raw.(map[string]interface{}); ok {
			if t, ok := prop["type"].(string); ok {
				propType = t
			}
		}
		keyword, _, _ := strings.Cut(name, "_")
		if value, ok := valueNear(words, keyword, propType); ok {
			args[name] = value
		}
	}
	return args
}

func valueNear(words []string, keyword, propType string) (interface{}, bool) {
	for i, w := range words {
		if stem(cleanWord(w)) != stem(keyword) {
			continue
		}
		for _, j := range []int{i + 1, i - 1} {
			if j < 0 || j >= len(words) {
				continue
			}
			candidate := cleanWord(words[j])
			if candidate == "" || stopwords[candidate] {
				continue
			}
			if propType == "integer" || propType == "number" {
				if n, err := strconv.Atoi(candidate); err == nil {
					return n, true
				}
				continue
			}
			return candidate, true
		}
	}
	return nil, false
}

func cleanWord(w string) string {
	return strings.ToLower(strings.Trim(w, " \t\"'`?!.,;:()"))
}

// answerFromResults relays the results of the previous tool calls. Plain text
// results (specialist answers) pass through unchanged; structured results are
// shown as indented JSON.
func answerFromResults(messages []Message, results []ToolResultBlock) string {
	names := make(map[string]string)
	for _, msg := range messages {
		for _, call := range msg.ToolUse {
			names[call.ID] = call.Name
		}
	}

	parts := make([]string, 0, len(results))
	for _, result := range results {
		name := result.ToolName
		if name == "" {
			name = names[result.ToolUseID]
		}
		if result.IsError {
			parts = append(parts, fmt.Sprintf("The %s call failed: %s", name, result.Content))
			continue
		}
		var structured interface{}
		if json.Unmarshal([]byte(result.Content), &structured) == nil {
			if _, isString := structured.(string); !isString {
				pretty, _ := json.MarshalIndent(structured, "", "  ")
				parts = append(parts, fmt.Sprintf("Results from %s:\n\n```json\n%s\n```", name, pretty))
				continue
			}
		}
		parts = append(parts, result.Content)
	}
	return strings.Join(parts, "\n\n")
}

type topic struct {
	keywords []string
	answer   string
}

var sreTopics = []topic{
	{
		keywords: []string{"crash", "crashloop", "crashloopbackoff", "restart"},
		answer: "To troubleshoot a crashing container:\n\n" +
			"1. Check the pod status and restart count with `kubectl get pod <name>`.\n" +
			"2. Read the logs of the previous container run with `kubectl logs <pod> --previous`.\n" +
			"3. Inspect events and the last termination reason with `kubectl describe pod <name>` " +
			"(look for OOMKilled, failed probes or a non-zero exit code).\n" +
			"4. Verify the image, command, environment and mounted config the container expects.\n" +
			"5. Compare resource requests and limits with actual usage.",
	},
	{
		keywords: []string{"oom", "oomkilled", "memory"},
		answer: "Out-of-memory kills happen when a container exceeds its memory limit. " +
			"Check the termination reason in the pod status, compare the limit with the working set " +
			"over time, and either raise the limit or reduce the footprint (heap sizes, caches, concurrency).",
	},
	{
		keywords: []string{"latency", "slow", "slo", "sli"},
		answer: "Start from the user-facing SLI: confirm the latency regression in the percentiles, " +
			"correlate it with recent deploys and traffic, then narrow it down with traces to the " +
			"slowest dependency before changing capacity.",
	},
}

func directAnswer(query string) string {
	words := tokenSet(query)
	for _, t := range sreTopics {
		for _, k := range t.keywords {
			if words[stem(k)] {
				return t.answer
			}
		}
	}
	return "I can help with general SRE questions, cloud cost analysis and Kubernetes cluster state. " +
		"Could you share a bit more detail about what you are trying to achieve?"
}

func clarifyingQuestion(a, b ToolDefinition) string {
	return fmt.Sprintf("Your question could be handled by %s or by %s. "+
		"Could you clarify which one you mean, for example by naming the service, cluster or time period?",
		a.Name, b.Name)
}
