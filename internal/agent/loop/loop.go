// Package loop runs the tool-using reasoning loop shared by the coordinator
// and every specialist. A loop alternates oracle calls and tool executions
// until the oracle answers without calling a tool.
package loop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/moolen/sre-assistant/internal/agent/provider"
	"github.com/moolen/sre-assistant/internal/agent/tools"
	"github.com/moolen/sre-assistant/internal/logging"
	"github.com/moolen/sre-assistant/internal/tracing"
)

// Kind identifies a notification.
type Kind int

const (
	// StepStart is emitted before every oracle call.
	StepStart Kind = iota
	// ToolInvocationStarted is emitted before a tool is executed.
	ToolInvocationStarted
	// TextDelta carries a piece of oracle output.
	TextDelta
	// Complete is emitted once, after the final answer.
	Complete
)

func (k Kind) String() string {
	switch k {
	case StepStart:
		return "step_start"
	case ToolInvocationStarted:
		return "tool_invocation_started"
	case TextDelta:
		return "text_delta"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Notification is one observable moment of a loop run.
type Notification struct {
	Kind Kind
	// Name is the tool name for ToolInvocationStarted.
	Name string
	// Text is the output fragment for TextDelta.
	Text string
}

// ErrStepLimit is returned when the oracle keeps calling tools past the
// configured number of steps.
var ErrStepLimit = errors.New("reasoning step limit reached")

// ToolHook observes every executed tool call.
type ToolHook func(ctx context.Context, name string, input json.RawMessage, result *tools.Result)

const defaultMaxSteps = 10

type options struct {
	maxSteps     int
	maxToolCalls int
	hook         ToolHook
}

// Option configures a loop run.
type Option func(*options)

// WithMaxSteps bounds the number of oracle calls. Values below 1 are ignored.
func WithMaxSteps(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// WithMaxToolCalls bounds the number of executed tool calls. Calls past the
// limit are answered with an error result, are not executed and produce no
// ToolInvocationStarted notification. Zero means unlimited.
func WithMaxToolCalls(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxToolCalls = n
		}
	}
}

// WithToolHook registers a hook called after every executed tool.
func WithToolHook(hook ToolHook) Option {
	return func(o *options) {
		o.hook = hook
	}
}

// Invoke runs prompt against the oracle with toolbox available and yields
// notifications as they happen. A nil toolbox means no tools. The sequence
// ends with Complete, or with a single non-nil error. Breaking out of the
// range cancels any in-flight oracle call.
func Invoke(ctx context.Context, oracle provider.Provider, prompt string, toolbox *tools.Registry, systemPrompt string, opts ...Option) iter.Seq2[Notification, error] {
	cfg := options{maxSteps: defaultMaxSteps}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(yield func(Notification, error) bool) {
		r := &run{
			oracle:       oracle,
			toolbox:      toolbox,
			systemPrompt: systemPrompt,
			cfg:          cfg,
			yield:        yield,
			logger:       logging.GetLogger("loop").WithContext(ctx),
		}
		if toolbox != nil {
			r.defs = toolbox.ToProviderTools()
		}
		r.messages = []provider.Message{{Role: provider.RoleUser, Content: prompt}}
		r.run(ctx)
	}
}

// Run drives Invoke to completion and returns the text of the final step.
func Run(ctx context.Context, oracle provider.Provider, prompt string, toolbox *tools.Registry, systemPrompt string, opts ...Option) (string, error) {
	var answer strings.Builder
	for n, err := range Invoke(ctx, oracle, prompt, toolbox, systemPrompt, opts...) {
		if err != nil {
			return "", err
		}
		switch n.Kind {
		case StepStart:
			answer.Reset()
		case TextDelta:
			answer.WriteString(n.Text)
		case Complete:
			return answer.String(), nil
		}
	}
	return answer.String(), ctx.Err()
}

type run struct {
	oracle       provider.Provider
	toolbox      *tools.Registry
	defs         []provider.ToolDefinition
	systemPrompt string
	cfg          options
	yield        func(Notification, error) bool
	logger       *logging.Logger

	messages  []provider.Message
	toolCalls int
	stopped   bool
}

func (r *run) emit(n Notification) bool {
	if r.stopped {
		return false
	}
	if !r.yield(n, nil) {
		r.stopped = true
	}
	return !r.stopped
}

func (r *run) fail(err error) {
	if !r.stopped {
		r.stopped = true
		r.yield(Notification{}, err)
	}
}

func (r *run) run(ctx context.Context) {
	tracer := tracing.Tracer("loop")

	for step := 1; step <= r.cfg.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			r.fail(err)
			return
		}
		if !r.emit(Notification{Kind: StepStart}) {
			return
		}

		stepCtx, span := tracer.Start(ctx, "loop.step")
		span.SetAttributes(
			attribute.Int("loop.step", step),
			attribute.String("llm.provider", r.oracle.Name()),
			attribute.Int("loop.tools", len(r.defs)),
		)
		resp, streamed, err := r.think(stepCtx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("loop.tool_calls", len(resp.ToolCalls)))
		}
		span.End()

		if r.stopped {
			return
		}
		if err != nil {
			r.fail(fmt.Errorf("reasoning step %d failed: %w", step, err))
			return
		}

		if !streamed && resp.Content != "" {
			if !r.emit(Notification{Kind: TextDelta, Text: resp.Content}) {
				return
			}
		}

		if len(resp.ToolCalls) == 0 {
			r.logger.Debug("loop finished after %d steps", step)
			r.emit(Notification{Kind: Complete})
			return
		}

		r.messages = append(r.messages, provider.Message{
			Role:    provider.RoleAssistant,
			Content: resp.Content,
			ToolUse: resp.ToolCalls,
		})

		results := make([]provider.ToolResultBlock, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			if err := ctx.Err(); err != nil {
				r.fail(err)
				return
			}
			block, ok := r.execute(ctx, call)
			if !ok {
				return
			}
			results = append(results, block)
		}
		r.messages = append(r.messages, provider.Message{Role: provider.RoleUser, ToolResult: results})
	}

	r.fail(fmt.Errorf("%w: %d steps", ErrStepLimit, r.cfg.maxSteps))
}

// think makes one oracle call, streaming text when the oracle supports it.
func (r *run) think(ctx context.Context) (*provider.Response, bool, error) {
	streaming, ok := r.oracle.(provider.StreamingProvider)
	if !ok {
		resp, err := r.oracle.Chat(ctx, r.systemPrompt, r.messages, r.defs)
		return resp, false, err
	}

	// Breaking out of the range mid-stream cancels the oracle call.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	resp, err := streaming.ChatStream(ctx, r.systemPrompt, r.messages, r.defs, func(text string) {
		if text == "" || r.stopped {
			return
		}
		if !r.emit(Notification{Kind: TextDelta, Text: text}) {
			cancel()
		}
	})
	return resp, true, err
}

// execute runs one tool call. It returns false when the consumer stopped.
func (r *run) execute(ctx context.Context, call provider.ToolUseBlock) (provider.ToolResultBlock, bool) {
	block := provider.ToolResultBlock{ToolUseID: call.ID, ToolName: call.Name}

	if r.toolbox == nil {
		block.Content, block.IsError = fmt.Sprintf("tool %q not found", call.Name), true
		return block, true
	}
	if _, known := r.toolbox.Get(call.Name); !known {
		r.logger.Warn("oracle requested unknown tool %s", call.Name)
		block.Content, block.IsError = fmt.Sprintf("tool %q not found", call.Name), true
		return block, true
	}
	if r.cfg.maxToolCalls > 0 && r.toolCalls >= r.cfg.maxToolCalls {
		r.logger.Info("refusing %s: tool call limit of %d reached", call.Name, r.cfg.maxToolCalls)
		block.Content = fmt.Sprintf("tool call limit of %d reached; %s was not executed", r.cfg.maxToolCalls, call.Name)
		block.IsError = true
		return block, true
	}
	r.toolCalls++

	if !r.emit(Notification{Kind: ToolInvocationStarted, Name: call.Name}) {
		return block, false
	}

	toolCtx, span := tracing.Tracer("loop").Start(ctx, "tool.execute")
	span.SetAttributes(attribute.String("tool.name", call.Name))
	start := time.Now()
	result := r.toolbox.Execute(toolCtx, call.Name, call.Input)
	if !result.Success {
		span.SetStatus(codes.Error, result.Error)
	}
	span.End()

	r.logger.DebugWithFields("tool executed",
		logging.Field("tool", call.Name),
		logging.Field("success", result.Success),
		logging.Field("duration_ms", time.Since(start).Milliseconds()))

	if r.cfg.hook != nil {
		r.cfg.hook(ctx, call.Name, call.Input, result)
	}

	block.Content = result.Content()
	block.IsError = !result.Success
	return block, true
}
