package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/moolen/sre-assistant/internal/agent/audit"
	"github.com/moolen/sre-assistant/internal/agent/loop"
	"github.com/moolen/sre-assistant/internal/agent/tools"
	"github.com/moolen/sre-assistant/internal/logging"
)

// Observer records tool calls of the coordinator and of the specialists in
// the audit trail and the metrics. Both fields may be nil. The turn id is
// read from the context, so specialist calls land under their turn.
type Observer struct {
	Audit   *audit.Logger
	Metrics *Metrics
}

// ToolHook is the hook for specialist loops.
func (o *Observer) ToolHook() loop.ToolHook {
	if o == nil {
		return nil
	}
	return func(ctx context.Context, name string, input json.RawMessage, result *tools.Result) {
		o.Metrics.ObserveTool(name)
		o.record(ctx, name, input, result)
	}
}

// capabilityHook is the hook for the routing loop, whose tools are the
// capabilities.
func (o *Observer) capabilityHook() loop.ToolHook {
	return func(ctx context.Context, name string, input json.RawMessage, result *tools.Result) {
		if o == nil {
			return
		}
		o.Metrics.ObserveTool(name)
		o.Metrics.observeCapability(name, result.Success)
		o.record(ctx, name, input, result)
	}
}

func (o *Observer) record(ctx context.Context, name string, input json.RawMessage, result *tools.Result) {
	duration := time.Duration(result.ExecutionTimeMs) * time.Millisecond
	if err := o.Audit.LogToolComplete(logging.TurnID(ctx), name, input, result.Success, duration, result.Content()); err != nil {
		logging.GetLogger("audit").WithContext(ctx).Warn("failed to write audit event: %v", err)
	}
}

func (o *Observer) turnStart(ctx context.Context, turnID, userID, query, oracle string) {
	if o == nil {
		return
	}
	if err := o.Audit.LogTurnStart(turnID, userID, query, oracle); err != nil {
		logging.GetLogger("audit").WithContext(ctx).Warn("failed to write audit event: %v", err)
	}
}

func (o *Observer) toolStart(ctx context.Context, name string) {
	if o == nil {
		return
	}
	if err := o.Audit.LogToolStart(logging.TurnID(ctx), name); err != nil {
		logging.GetLogger("audit").WithContext(ctx).Warn("failed to write audit event: %v", err)
	}
}

func (o *Observer) turnEnd(ctx context.Context, terminal Event, duration time.Duration, responseLength int) {
	if o == nil {
		return
	}
	o.Metrics.observeTurn(terminal.Type, duration)

	turnID := logging.TurnID(ctx)
	var err error
	if terminal.Type == EventError {
		err = o.Audit.LogTurnError(turnID, duration, errors.New(terminal.Message))
	} else {
		err = o.Audit.LogTurnComplete(turnID, duration, responseLength)
	}
	if err != nil {
		logging.GetLogger("audit").WithContext(ctx).Warn("failed to write audit event: %v", err)
	}
}
