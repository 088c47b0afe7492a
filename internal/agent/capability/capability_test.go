package capability

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/sre-assistant/internal/agent/provider"
	"github.com/moolen/sre-assistant/internal/agent/tools"
	mcpclient "github.com/moolen/sre-assistant/internal/mcp/client"
)

func TestSpecialistInvoke(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		run     RunFunc
		want    string
		wantRun bool
	}{
		{
			name:    "answer",
			query:   "  costs?  ",
			run:     func(_ context.Context, q string) (string, error) { return "answer to " + q, nil },
			want:    "answer to costs?",
			wantRun: true,
		},
		{
			name:    "error",
			query:   "costs?",
			run:     func(context.Context, string) (string, error) { return "", errors.New("connection refused") },
			want:    "Error in FinOps assistant: connection refused",
			wantRun: true,
		},
		{
			name:    "panic",
			query:   "costs?",
			run:     func(context.Context, string) (string, error) { panic("nil map") },
			want:    "Error in FinOps assistant: internal error: nil map",
			wantRun: true,
		},
		{
			name:  "empty query",
			query: " \n ",
			want:  "Error in FinOps assistant: query is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ran := false
			s := New("finops_assistant", "FinOps assistant", "costs", func(ctx context.Context, q string) (string, error) {
				ran = true
				if tt.run == nil {
					return "", nil
				}
				return tt.run(ctx, q)
			})
			assert.Equal(t, tt.want, s.Invoke(context.Background(), tt.query))
			assert.Equal(t, tt.wantRun, ran)
		})
	}
}

func TestAnswerMarksOnlyRealFailures(t *testing.T) {
	broken := New("kubernetes_assistant", "Kubernetes assistant", "pods", func(context.Context, string) (string, error) {
		return "", errors.New("boom")
	})
	out := broken.Answer(context.Background(), "list pods")
	assert.True(t, out.Failed)
	assert.Equal(t, FailurePrefix("Kubernetes assistant")+"boom", out.Text)

	quoting := New("kubernetes_assistant", "Kubernetes assistant", "pods", func(context.Context, string) (string, error) {
		return "Error in pod api-0: CrashLoopBackOff after OOMKilled.", nil
	})
	out = quoting.Answer(context.Background(), "why is api-0 failing?")
	assert.False(t, out.Failed)

	result := AsTool(quoting).Execute
	res, err := result(context.Background(), json.RawMessage(`{"query":"why is api-0 failing?"}`))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Error in pod api-0: CrashLoopBackOff after OOMKilled.", res.Content())
}

func TestAsTool(t *testing.T) {
	ok := New("kubernetes_assistant", "Kubernetes assistant", "pods", func(_ context.Context, q string) (string, error) {
		return "pods for " + q, nil
	})
	broken := New("finops_assistant", "FinOps assistant", "costs", func(context.Context, string) (string, error) {
		return "", errors.New("no credentials")
	})

	registry, err := Registry(ok, broken)
	require.NoError(t, err)
	assert.Equal(t, []string{"kubernetes_assistant", "finops_assistant"}, registry.Names())

	result := registry.Execute(context.Background(), "kubernetes_assistant", json.RawMessage(`{"query":"list pods"}`))
	assert.True(t, result.Success)
	assert.Equal(t, "pods for list pods", result.Content())

	result = registry.Execute(context.Background(), "finops_assistant", json.RawMessage(`{"query":"costs"}`))
	assert.False(t, result.Success)
	assert.Equal(t, "Error in FinOps assistant: no credentials", result.Content())

	result = registry.Execute(context.Background(), "kubernetes_assistant", json.RawMessage(`{}`))
	assert.False(t, result.Success)
	assert.Equal(t, "Error in Kubernetes assistant: query is required", result.Content())

	schema := AsTool(ok).InputSchema()
	assert.Equal(t, []string{"query"}, schema["required"])
}

const specialistScenario = `
name: specialist
steps:
  - trigger: user_message
    tool_calls:
      - name: echo
        args:
          value: "{{query}}"
  - trigger: tool_result:echo
    text: "done"
`

func scripted(t *testing.T, yaml string) *provider.ScriptedProvider {
	t.Helper()
	scenario, err := provider.ParseScenario([]byte(yaml))
	require.NoError(t, err)
	return provider.NewScriptedProvider(scenario)
}

func TestLocalRun(t *testing.T) {
	var seen []string
	echo := tools.NewFunc("echo", "echoes", tools.ObjectSchema(map[string]interface{}{
		"value": tools.Property("string", "value"),
	}), func(_ context.Context, input json.RawMessage) (*tools.Result, error) {
		seen = append(seen, string(input))
		return tools.Text("echoed"), nil
	})
	toolbox, err := tools.NewRegistry(echo)
	require.NoError(t, err)

	run := LocalRun(LoopSettings{Oracle: scripted(t, specialistScenario), SystemPrompt: "be brief"}, toolbox)
	answer, err := run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "done", answer)
	assert.Equal(t, []string{`{"value":"hello"}`}, seen)
}

func TestLoopSettingsWithoutOracle(t *testing.T) {
	_, err := LoopSettings{}.Run(context.Background(), "q", nil)
	assert.ErrorContains(t, err, "no reasoning oracle")
}

type recordingSession struct {
	calls  []string
	closed int
}

func (s *recordingSession) ListTools(context.Context) ([]mcp.Tool, error) {
	return []mcp.Tool{mcp.NewTool("echo", mcp.WithString("value"))}, nil
}

func (s *recordingSession) CallTool(_ context.Context, name string, _ map[string]interface{}) (*mcp.CallToolResult, error) {
	if s.closed > 0 {
		return nil, errors.New("session already closed")
	}
	s.calls = append(s.calls, name)
	return mcp.NewToolResultText("echoed"), nil
}

func (s *recordingSession) Close() error {
	s.closed++
	return nil
}

func TestSessionRunScopesTheLoopToTheSession(t *testing.T) {
	session := &recordingSession{}
	opener := mcpclient.OpenerFunc(func(context.Context) (mcpclient.Session, error) { return session, nil })

	run := SessionRun(LoopSettings{Oracle: scripted(t, specialistScenario)}, opener)
	answer, err := run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "done", answer)
	assert.Equal(t, []string{"echo"}, session.calls)
	assert.Equal(t, 1, session.closed)
}

func TestSessionRunToolCallBudget(t *testing.T) {
	session := &recordingSession{}
	opener := mcpclient.OpenerFunc(func(context.Context) (mcpclient.Session, error) { return session, nil })
	oracle := scripted(t, `
name: greedy
steps:
  - trigger: user_message
    tool_calls:
      - name: echo
        args: {value: a}
      - name: echo
        args: {value: b}
  - trigger: contains:limit of 1 reached
    text: "stopped"
`)

	run := SessionRun(LoopSettings{Oracle: oracle, MaxToolCalls: 1}, opener)
	answer, err := run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "stopped", answer)
	assert.Len(t, session.calls, 1)
}

func TestSessionRunOpenFailure(t *testing.T) {
	opener := mcpclient.OpenerFunc(func(context.Context) (mcpclient.Session, error) {
		return nil, errors.New("executable file not found")
	})
	s := New("finops_assistant", "FinOps assistant", "costs", SessionRun(LoopSettings{Oracle: scripted(t, specialistScenario)}, opener))

	out := s.Answer(context.Background(), "What are my AWS costs?")
	assert.True(t, out.Failed)
	assert.Contains(t, out.Text, "executable file not found")
}
