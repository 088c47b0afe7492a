// Package capability defines the specialist contract the coordinator routes
// to. A capability turns one natural-language query into a text answer and
// never lets a fault escape: errors and panics become "Error in <name>: ..."
// text.
package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/moolen/sre-assistant/internal/agent/loop"
	"github.com/moolen/sre-assistant/internal/agent/provider"
	"github.com/moolen/sre-assistant/internal/agent/tools"
	"github.com/moolen/sre-assistant/internal/logging"
	"github.com/moolen/sre-assistant/internal/tracing"
)

// ErrEmptyQuery is reported for a blank query.
var ErrEmptyQuery = errors.New("query is required")

// Capability is a routable specialist.
type Capability interface {
	// Name is the identifier the oracle calls it by.
	Name() string
	// Description is what the routing decision reads. It must list example
	// queries and say what the capability is not for.
	Description() string
	// Invoke answers query. It never panics and never returns an error;
	// failures are reported in the returned text.
	Invoke(ctx context.Context, query string) string
}

// RunFunc produces the answer of a specialist.
type RunFunc func(ctx context.Context, query string) (string, error)

// Specialist implements Capability around a RunFunc.
type Specialist struct {
	name        string
	display     string
	description string
	run         RunFunc
	logger      *logging.Logger
}

// New creates a specialist. display is the human name used in error text,
// e.g. "FinOps assistant".
func New(name, display, description string, run RunFunc) *Specialist {
	return &Specialist{
		name:        name,
		display:     display,
		description: description,
		run:         run,
		logger:      logging.GetLogger("capability").WithField("capability", name),
	}
}

func (s *Specialist) Name() string        { return s.name }
func (s *Specialist) Description() string { return s.description }

// Display returns the human name of the specialist.
func (s *Specialist) Display() string { return s.display }

// Outcome is the answer of a specialist together with whether it reports a
// failure. Text always holds what the user should read.
type Outcome struct {
	Text   string
	Failed bool
}

// Answerer is implemented by capabilities that report failures explicitly.
// AsTool prefers it over Invoke.
type Answerer interface {
	Answer(ctx context.Context, query string) Outcome
}

// Invoke implements Capability.
func (s *Specialist) Invoke(ctx context.Context, query string) string {
	return s.Answer(ctx, query).Text
}

// Answer implements Answerer.
func (s *Specialist) Answer(ctx context.Context, query string) (out Outcome) {
	ctx, span := tracing.Tracer("capability").Start(ctx, "capability.invoke")
	span.SetAttributes(attribute.String("capability.name", s.name))
	defer span.End()

	logger := s.logger.WithContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("recovered panic: %v", r)
			span.SetStatus(codes.Error, "panic")
			out = s.failure(fmt.Errorf("internal error: %v", r))
		}
	}()

	query = strings.TrimSpace(query)
	if query == "" {
		return s.failure(ErrEmptyQuery)
	}

	logger.Debug("invoking with query %q", query)
	text, err := s.run(ctx, query)
	if err != nil {
		logger.WarnWithFields("invocation failed",
			logging.Field("display", s.display),
			logging.Field("error", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return s.failure(err)
	}
	return Outcome{Text: text}
}

func (s *Specialist) failure(err error) Outcome {
	return Outcome{Text: FailurePrefix(s.display) + err.Error(), Failed: true}
}

// FailurePrefix is the start of every failure text of a specialist.
func FailurePrefix(display string) string {
	return "Error in " + display + ": "
}

// LoopSettings bounds the inner reasoning loop of a specialist.
type LoopSettings struct {
	Oracle       provider.Provider
	SystemPrompt string
	MaxSteps     int
	// MaxToolCalls caps tool invocations per query. Zero means unlimited.
	MaxToolCalls int
	Hook         loop.ToolHook
}

func (s LoopSettings) options() []loop.Option {
	var opts []loop.Option
	if s.MaxSteps > 0 {
		opts = append(opts, loop.WithMaxSteps(s.MaxSteps))
	}
	if s.MaxToolCalls > 0 {
		opts = append(opts, loop.WithMaxToolCalls(s.MaxToolCalls))
	}
	if s.Hook != nil {
		opts = append(opts, loop.WithToolHook(s.Hook))
	}
	return opts
}

// Run answers query with a fresh loop over toolbox.
func (s LoopSettings) Run(ctx context.Context, query string, toolbox *tools.Registry) (string, error) {
	if s.Oracle == nil {
		return "", errors.New("no reasoning oracle configured")
	}
	return loop.Run(ctx, s.Oracle, query, toolbox, s.SystemPrompt, s.options()...)
}

// LocalRun returns a RunFunc over a fixed toolbox.
func LocalRun(settings LoopSettings, toolbox *tools.Registry) RunFunc {
	return func(ctx context.Context, query string) (string, error) {
		return settings.Run(ctx, query, toolbox)
	}
}
