package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/moolen/sre-assistant/internal/agent/capability"
	"github.com/moolen/sre-assistant/internal/agent/loop"
	"github.com/moolen/sre-assistant/internal/agent/provider"
	"github.com/moolen/sre-assistant/internal/agent/tools"
	"github.com/moolen/sre-assistant/internal/config"
	"github.com/moolen/sre-assistant/internal/logging"
	"github.com/moolen/sre-assistant/internal/tracing"
)

// ErrEmptyQuery ends a turn whose query is blank.
var ErrEmptyQuery = errors.New("query must not be empty")

const defaultEventBuffer = 64

// Coordinator runs turns. It holds no per-turn state and is safe for
// concurrent use.
type Coordinator struct {
	oracle       provider.Provider
	capabilities []capability.Capability
	registry     *tools.Registry
	systemPrompt string
	hardLimit    bool
	maxSteps     int
	turnTimeout  time.Duration
	eventBuffer  int
	observer     *Observer
	logger       *logging.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithObserver records turns in the audit trail and the metrics.
func WithObserver(o *Observer) Option {
	return func(c *Coordinator) {
		c.observer = o
	}
}

// New builds the routing registry from capabilities, in order, and renders
// the routing policy for it.
func New(cfg config.CoordinatorConfig, oracle provider.Provider, capabilities []capability.Capability, opts ...Option) (*Coordinator, error) {
	if oracle == nil {
		return nil, errors.New("coordinator requires a reasoning oracle")
	}
	registry, err := capability.Registry(capabilities...)
	if err != nil {
		return nil, fmt.Errorf("failed to build capability registry: %w", err)
	}

	hard := cfg.DelegationPolicy == config.DelegationHard
	c := &Coordinator{
		oracle:       oracle,
		capabilities: append([]capability.Capability(nil), capabilities...),
		registry:     registry,
		systemPrompt: SystemPrompt(capabilities, hard),
		hardLimit:    hard,
		maxSteps:     cfg.MaxSteps,
		turnTimeout:  cfg.TurnTimeout,
		eventBuffer:  cfg.EventBuffer,
		logger:       logging.GetLogger("coordinator"),
	}
	if c.eventBuffer <= 0 {
		c.eventBuffer = defaultEventBuffer
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger.Info("coordinator ready with %d capabilities (%s), delegation policy %s",
		registry.Len(), strings.Join(registry.Names(), ", "), policyName(hard))
	return c, nil
}

func policyName(hard bool) string {
	if hard {
		return config.DelegationHard
	}
	return config.DelegationSoft
}

// Capabilities returns the registered capabilities in routing order.
func (c *Coordinator) Capabilities() []capability.Capability {
	return append([]capability.Capability(nil), c.capabilities...)
}

// SystemPrompt returns the routing policy.
func (c *Coordinator) SystemPrompt() string {
	return c.systemPrompt
}

// RunTurn answers query and streams the events of the turn. The channel
// yields events in emission order, ends with exactly one complete or error
// event and is then closed. Callers should drain it; cancelling ctx stops
// the turn and releases a producer whose consumer went away. The turn
// deadline ends the turn but still waits for a slow reader to take the
// terminal event.
func (c *Coordinator) RunTurn(ctx context.Context, query, userID string) <-chan Event {
	events := make(chan Event, c.eventBuffer)
	go c.runTurn(ctx, query, userID, events)
	return events
}

// Ask runs a turn to completion and returns the response text.
func (c *Coordinator) Ask(ctx context.Context, query, userID string) (string, error) {
	transcript := Collect(c.RunTurn(ctx, query, userID))
	if err := transcript.Err(); err != nil {
		return transcript.Response(), err
	}
	return transcript.Response(), nil
}

func (c *Coordinator) runTurn(ctx context.Context, query, userID string, events chan<- Event) {
	defer close(events)

	query = strings.TrimSpace(query)
	if query == "" {
		c.logger.WithContext(ctx).Warn("rejected empty query from user %s", userID)
		send(ctx, events, errorEvent(ErrEmptyQuery.Error()))
		return
	}

	turnID := uuid.NewString()
	ctx = logging.ContextWithTurn(ctx, turnID, userID)
	// The terminal event is delivered against the caller's context so a turn
	// deadline never swallows it.
	parent := ctx
	if c.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.turnTimeout)
		defer cancel()
	}
	ctx, span := tracing.Tracer("coordinator").Start(ctx, "coordinator.turn")
	span.SetAttributes(
		attribute.String("turn.id", turnID),
		attribute.String("user.id", userID),
	)
	defer span.End()

	logger := c.logger.WithContext(ctx)
	logger.Info("processing turn for user %s", userID)
	start := time.Now()
	c.observer.turnStart(ctx, turnID, userID, query, c.oracle.Name()+"/"+c.oracle.Model())

	opts := []loop.Option{loop.WithToolHook(c.observer.capabilityHook())}
	if c.maxSteps > 0 {
		opts = append(opts, loop.WithMaxSteps(c.maxSteps))
	}
	if c.hardLimit {
		opts = append(opts, loop.WithMaxToolCalls(1))
	}

	var (
		terminal       Event
		responseLength int
	)
	for n, err := range loop.Invoke(ctx, c.oracle, query, c.registry, c.systemPrompt, opts...) {
		if err != nil {
			terminal = errorEvent(err.Error())
			break
		}
		event := Normalize(n)
		if event.Terminal() {
			terminal = event
			break
		}
		switch n.Kind {
		case loop.ToolInvocationStarted:
			logger.Info("routing to %s", n.Name)
			c.observer.toolStart(ctx, n.Name)
		case loop.TextDelta:
			responseLength += len(n.Text)
		}
		if !send(ctx, events, event) {
			terminal = errorEvent(context.Cause(ctx).Error())
			break
		}
	}
	if terminal.Type == "" {
		terminal = errorEvent("reasoning loop ended without an answer")
	}

	duration := time.Since(start)
	if terminal.Type == EventError {
		logger.Error("turn failed after %s: %s", duration, terminal.Message)
		span.SetStatus(codes.Error, terminal.Message)
	} else {
		logger.Info("turn completed in %s", duration)
	}
	c.observer.turnEnd(ctx, terminal, duration, responseLength)
	send(parent, events, terminal)
}

// send delivers e unless ctx is done and the consumer is not keeping up.
func send(ctx context.Context, events chan<- Event, e Event) bool {
	select {
	case events <- e:
		return true
	default:
	}
	select {
	case events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}
