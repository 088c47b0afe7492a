package loop

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/sre-assistant/internal/agent/provider"
	"github.com/moolen/sre-assistant/internal/agent/tools"
)

// stubOracle replays responses in order and records what it was sent.
type stubOracle struct {
	responses []*provider.Response
	err       error
	calls     int
	seen      [][]provider.Message
}

func (s *stubOracle) Name() string  { return "stub" }
func (s *stubOracle) Model() string { return "stub" }

func (s *stubOracle) Chat(ctx context.Context, _ string, messages []provider.Message, _ []provider.ToolDefinition) (*provider.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.seen = append(s.seen, append([]provider.Message(nil), messages...))
	if s.err != nil {
		return nil, s.err
	}
	if s.calls >= len(s.responses) {
		return nil, errors.New("stub exhausted")
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func call(id, name, input string) provider.ToolUseBlock {
	return provider.ToolUseBlock{ID: id, Name: name, Input: json.RawMessage(input)}
}

func toolCalls(calls ...provider.ToolUseBlock) *provider.Response {
	return &provider.Response{ToolCalls: calls, StopReason: provider.StopReasonToolUse}
}

func answer(text string) *provider.Response {
	return &provider.Response{Content: text, StopReason: provider.StopReasonEndTurn}
}

func countingTool(name string, executed *atomic.Int32) tools.Tool {
	return tools.NewFunc(name, "test tool "+name, tools.ObjectSchema(map[string]interface{}{}),
		func(context.Context, json.RawMessage) (*tools.Result, error) {
			executed.Add(1)
			return tools.Text(name + " result"), nil
		})
}

func collect(t *testing.T, seq func(func(Notification, error) bool)) ([]Notification, error) {
	t.Helper()
	var out []Notification
	for n, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, n)
	}
	return out, nil
}

func kinds(ns []Notification) []Kind {
	out := make([]Kind, len(ns))
	for i, n := range ns {
		out[i] = n.Kind
	}
	return out
}

func TestInvokeDirectAnswer(t *testing.T) {
	oracle := &stubOracle{responses: []*provider.Response{answer("hello")}}

	ns, err := collect(t, Invoke(context.Background(), oracle, "hi", nil, "system"))
	require.NoError(t, err)
	assert.Equal(t, []Kind{StepStart, TextDelta, Complete}, kinds(ns))
	assert.Equal(t, "hello", ns[1].Text)
}

func TestInvokeToolRoundTrip(t *testing.T) {
	var executed atomic.Int32
	toolbox, err := tools.NewRegistry(countingTool("list_pods", &executed))
	require.NoError(t, err)

	oracle := &stubOracle{responses: []*provider.Response{
		toolCalls(call("c1", "list_pods", `{}`)),
		answer("there are pods"),
	}}

	ns, err := collect(t, Invoke(context.Background(), oracle, "pods?", toolbox, ""))
	require.NoError(t, err)
	assert.Equal(t, []Kind{StepStart, ToolInvocationStarted, StepStart, TextDelta, Complete}, kinds(ns))
	assert.Equal(t, "list_pods", ns[1].Name)
	assert.EqualValues(t, 1, executed.Load())

	require.Len(t, oracle.seen, 2)
	last := oracle.seen[1][len(oracle.seen[1])-1]
	require.Len(t, last.ToolResult, 1)
	assert.Equal(t, "c1", last.ToolResult[0].ToolUseID)
	assert.Equal(t, "list_pods", last.ToolResult[0].ToolName)
	assert.Equal(t, "list_pods result", last.ToolResult[0].Content)
	assert.False(t, last.ToolResult[0].IsError)
}

func TestInvokeToolCallLimit(t *testing.T) {
	var executed atomic.Int32
	toolbox, err := tools.NewRegistry(countingTool("a", &executed), countingTool("b", &executed))
	require.NoError(t, err)

	oracle := &stubOracle{responses: []*provider.Response{
		toolCalls(call("c1", "a", `{}`), call("c2", "b", `{}`)),
		answer("done"),
	}}

	ns, err := collect(t, Invoke(context.Background(), oracle, "q", toolbox, "", WithMaxToolCalls(1)))
	require.NoError(t, err)

	var started []string
	for _, n := range ns {
		if n.Kind == ToolInvocationStarted {
			started = append(started, n.Name)
		}
	}
	assert.Equal(t, []string{"a"}, started)
	assert.EqualValues(t, 1, executed.Load())

	results := oracle.seen[1][len(oracle.seen[1])-1].ToolResult
	require.Len(t, results, 2)
	assert.False(t, results[0].IsError)
	assert.True(t, results[1].IsError)
	assert.Contains(t, results[1].Content, "limit of 1 reached")
}

func TestInvokeUnknownToolIsNotAnnounced(t *testing.T) {
	toolbox, err := tools.NewRegistry()
	require.NoError(t, err)
	oracle := &stubOracle{responses: []*provider.Response{
		toolCalls(call("c1", "ghost", `{}`)),
		answer("sorry"),
	}}

	ns, err := collect(t, Invoke(context.Background(), oracle, "q", toolbox, ""))
	require.NoError(t, err)
	assert.NotContains(t, kinds(ns), ToolInvocationStarted)
	result := oracle.seen[1][len(oracle.seen[1])-1].ToolResult[0]
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, `"ghost" not found`)
}

func TestInvokeOracleFailure(t *testing.T) {
	oracle := &stubOracle{err: errors.New("rate limited")}

	ns, err := collect(t, Invoke(context.Background(), oracle, "q", nil, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Equal(t, []Kind{StepStart}, kinds(ns))
}

func TestInvokeStepLimit(t *testing.T) {
	var executed atomic.Int32
	toolbox, err := tools.NewRegistry(countingTool("a", &executed))
	require.NoError(t, err)
	oracle := &stubOracle{responses: []*provider.Response{
		toolCalls(call("c1", "a", `{}`)),
		toolCalls(call("c2", "a", `{}`)),
		toolCalls(call("c3", "a", `{}`)),
	}}

	_, err = collect(t, Invoke(context.Background(), oracle, "q", toolbox, "", WithMaxSteps(2)))
	assert.ErrorIs(t, err, ErrStepLimit)
	assert.Equal(t, 2, oracle.calls)
}

func TestInvokeCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	oracle := &stubOracle{responses: []*provider.Response{answer("never")}}

	ns, err := collect(t, Invoke(ctx, oracle, "q", nil, ""))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ns)
	assert.Zero(t, oracle.calls)
}

func TestInvokeCancelledByTool(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var second atomic.Int32
	cancelling := tools.NewFunc("cancel", "cancels the turn", nil, func(context.Context, json.RawMessage) (*tools.Result, error) {
		cancel()
		return tools.Text("ok"), nil
	})
	toolbox, err := tools.NewRegistry(cancelling, countingTool("after", &second))
	require.NoError(t, err)
	oracle := &stubOracle{responses: []*provider.Response{
		toolCalls(call("c1", "cancel", `{}`), call("c2", "after", `{}`)),
		answer("unreachable"),
	}}

	_, err = collect(t, Invoke(ctx, oracle, "q", toolbox, ""))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, second.Load())
	assert.Equal(t, 1, oracle.calls)
}

func TestInvokeStreamsTextDeltas(t *testing.T) {
	oracle := provider.NewHeuristicProvider(2)

	ns, err := collect(t, Invoke(context.Background(), oracle, "How do I troubleshoot a crashing container?", nil, ""))
	require.NoError(t, err)

	var text strings.Builder
	deltas := 0
	for _, n := range ns {
		if n.Kind == TextDelta {
			deltas++
			text.WriteString(n.Text)
		}
	}
	assert.Greater(t, deltas, 1)
	assert.Contains(t, text.String(), "kubectl logs")
	assert.Equal(t, Complete, ns[len(ns)-1].Kind)
}

func TestInvokeStopsWhenConsumerBreaks(t *testing.T) {
	oracle := provider.NewHeuristicProvider(1)
	seen := 0
	for n, err := range Invoke(context.Background(), oracle, "How do I troubleshoot a crashing container?", nil, "") {
		require.NoError(t, err)
		seen++
		if n.Kind == TextDelta {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestInvokeToolHook(t *testing.T) {
	var executed atomic.Int32
	toolbox, err := tools.NewRegistry(countingTool("a", &executed))
	require.NoError(t, err)
	oracle := &stubOracle{responses: []*provider.Response{toolCalls(call("c1", "a", `{"x":1}`)), answer("ok")}}

	var hooked []string
	hook := func(_ context.Context, name string, input json.RawMessage, result *tools.Result) {
		hooked = append(hooked, name+":"+string(input)+":"+result.Content())
	}
	_, err = collect(t, Invoke(context.Background(), oracle, "q", toolbox, "", WithToolHook(hook)))
	require.NoError(t, err)
	assert.Equal(t, []string{`a:{"x":1}:a result`}, hooked)
}

func TestRunReturnsFinalStepText(t *testing.T) {
	var executed atomic.Int32
	toolbox, err := tools.NewRegistry(countingTool("a", &executed))
	require.NoError(t, err)
	first := toolCalls(call("c1", "a", `{}`))
	first.Content = "let me check"
	oracle := &stubOracle{responses: []*provider.Response{first, answer("final answer")}}

	text, err := Run(context.Background(), oracle, "q", toolbox, "")
	require.NoError(t, err)
	assert.Equal(t, "final answer", text)
}

func TestRunPropagatesErrors(t *testing.T) {
	_, err := Run(context.Background(), &stubOracle{err: errors.New("boom")}, "q", nil, "")
	assert.ErrorContains(t, err, "boom")
}
