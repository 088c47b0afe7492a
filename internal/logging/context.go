package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	turnIDKey contextKey = "turn_id"
	userIDKey contextKey = "user_id"
)

// ContextWithTurn returns a context carrying the correlation ids of one turn.
// Loggers bound to it with WithContext add turn_id and user_id to every line.
func ContextWithTurn(ctx context.Context, turnID, userID string) context.Context {
	ctx = context.WithValue(ctx, turnIDKey, turnID)
	return context.WithValue(ctx, userIDKey, userID)
}

// TurnID returns the turn id stored by ContextWithTurn, or "".
func TurnID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(turnIDKey).(string)
	return id
}

// extractContextFields pulls correlation ids and the active span out of ctx.
// Returns nil when there are none.
func extractContextFields(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}

	fields := make(map[string]interface{})
	if v, ok := ctx.Value(turnIDKey).(string); ok && v != "" {
		fields["turn_id"] = v
	}
	if v, ok := ctx.Value(userIDKey).(string); ok && v != "" {
		fields["user_id"] = v
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields["trace_id"] = sc.TraceID().String()
		fields["span_id"] = sc.SpanID().String()
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}
