// Package audit writes an append-only JSONL trail of coordinator turns: turn
// start, every tool and capability call, and the turn outcome. One Logger is
// shared by all concurrent turns; events carry the turn id to tell them apart.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	// EventTypeTurnStart marks a new turn and its query.
	EventTypeTurnStart EventType = "turn_start"
	// EventTypeToolStart marks the start of a tool or capability call.
	EventTypeToolStart EventType = "tool_start"
	// EventTypeToolComplete marks the completion of a tool or capability call.
	EventTypeToolComplete EventType = "tool_complete"
	// EventTypeTurnComplete marks a turn that reached complete.
	EventTypeTurnComplete EventType = "turn_complete"
	// EventTypeTurnError marks a turn that ended with an error.
	EventTypeTurnError EventType = "turn_error"
)

// maxRecordedResult bounds the tool output copied into the trail.
const maxRecordedResult = 2000

// Event represents a single audit log event.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
	// Type is the event type.
	Type EventType `json:"type"`
	// TurnID identifies the turn.
	TurnID string `json:"turn_id"`
	// UserID is the correlation token of the caller, if known.
	UserID string `json:"user_id,omitempty"`
	// Tool is the tool or capability name (if applicable).
	Tool string `json:"tool,omitempty"`
	// Data contains event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Logger writes audit events to a JSONL file. A nil *Logger discards
// everything, so callers need no enabled check.
type Logger struct {
	file   *os.File
	writer *bufio.Writer
	mutex  sync.Mutex
}

// NewLogger creates a new audit logger that writes to the specified file path.
// If the file exists, new events are appended.
func NewLogger(filePath string) (*Logger, error) {
	// #nosec G304 -- Audit log path is intentionally configurable by user
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &Logger{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// write writes an event to the audit log.
func (l *Logger) write(event Event) error {
	if l == nil {
		return nil
	}
	event.Timestamp = time.Now()

	l.mutex.Lock()
	defer l.mutex.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}

	if _, err := l.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	// Flush immediately for crash safety
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush audit log: %w", err)
	}

	return nil
}

// LogTurnStart logs the start of a turn.
func (l *Logger) LogTurnStart(turnID, userID, query, oracle string) error {
	return l.write(Event{
		Type:   EventTypeTurnStart,
		TurnID: turnID,
		UserID: userID,
		Data: map[string]interface{}{
			"query":  query,
			"oracle": oracle,
		},
	})
}

// LogToolStart logs the start of a tool call.
func (l *Logger) LogToolStart(turnID, toolName string) error {
	return l.write(Event{
		Type:   EventTypeToolStart,
		TurnID: turnID,
		Tool:   toolName,
	})
}

// LogToolComplete logs the completion of a tool call.
func (l *Logger) LogToolComplete(turnID, toolName string, args json.RawMessage, success bool, duration time.Duration, result string) error {
	data := map[string]interface{}{
		"success":     success,
		"duration_ms": duration.Milliseconds(),
		"result":      truncateString(result, maxRecordedResult),
	}
	if len(args) > 0 && json.Valid(args) {
		data["args"] = args
	}
	return l.write(Event{
		Type:   EventTypeToolComplete,
		TurnID: turnID,
		Tool:   toolName,
		Data:   data,
	})
}

// LogTurnComplete logs a turn that completed.
func (l *Logger) LogTurnComplete(turnID string, duration time.Duration, responseLength int) error {
	return l.write(Event{
		Type:   EventTypeTurnComplete,
		TurnID: turnID,
		Data: map[string]interface{}{
			"duration_ms":     duration.Milliseconds(),
			"response_length": responseLength,
		},
	})
}

// LogTurnError logs a turn that ended with an error.
func (l *Logger) LogTurnError(turnID string, duration time.Duration, err error) error {
	return l.write(Event{
		Type:   EventTypeTurnError,
		TurnID: turnID,
		Data: map[string]interface{}{
			"duration_ms": duration.Milliseconds(),
			"error":       err.Error(),
		},
	})
}

// Close closes the audit logger and flushes any pending writes.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()

	var errs []error

	if err := l.writer.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush audit log: %w", err))
	}

	if err := l.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close audit log file: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing audit log: %v", errs)
	}

	return nil
}

// truncateString truncates a string to maxLen characters.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "...[truncated]"
}
