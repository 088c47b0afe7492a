package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open log file: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var events []Event
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Errorf("failed to unmarshal event: %v", err)
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("error scanning log file: %v", err)
	}
	return events
}

func TestLogger_WriteEvents(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")

	logger, err := NewLogger(logPath)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	if err := logger.LogTurnStart("turn-1", "alice", "What are my AWS costs?", "heuristic/example-matcher"); err != nil {
		t.Errorf("LogTurnStart failed: %v", err)
	}
	if err := logger.LogToolStart("turn-1", "finops_assistant"); err != nil {
		t.Errorf("LogToolStart failed: %v", err)
	}
	if err := logger.LogToolComplete("turn-1", "finops_assistant", json.RawMessage(`{"query":"What are my AWS costs?"}`), true, 150*time.Millisecond, "EC2 cost $12"); err != nil {
		t.Errorf("LogToolComplete failed: %v", err)
	}
	if err := logger.LogTurnComplete("turn-1", 2*time.Second, 12); err != nil {
		t.Errorf("LogTurnComplete failed: %v", err)
	}
	if err := logger.LogTurnError("turn-2", time.Second, errors.New("model unavailable")); err != nil {
		t.Errorf("LogTurnError failed: %v", err)
	}

	if err := logger.Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}

	events := readEvents(t, logPath)
	expectedTypes := []EventType{
		EventTypeTurnStart,
		EventTypeToolStart,
		EventTypeToolComplete,
		EventTypeTurnComplete,
		EventTypeTurnError,
	}
	if len(events) != len(expectedTypes) {
		t.Fatalf("expected %d events, got %d", len(expectedTypes), len(events))
	}
	for i, expected := range expectedTypes {
		if events[i].Type != expected {
			t.Errorf("event %d: expected type %s, got %s", i, expected, events[i].Type)
		}
		if events[i].Timestamp.IsZero() {
			t.Errorf("event %d: timestamp not set", i)
		}
	}

	if events[0].UserID != "alice" || events[0].Data["query"] != "What are my AWS costs?" {
		t.Errorf("turn start: unexpected event %+v", events[0])
	}
	if events[1].Tool != "finops_assistant" {
		t.Errorf("tool start: expected tool finops_assistant, got %s", events[1].Tool)
	}
	if events[2].Data["success"] != true {
		t.Errorf("tool complete: expected success true, got %v", events[2].Data["success"])
	}
	args, ok := events[2].Data["args"].(map[string]interface{})
	if !ok || args["query"] != "What are my AWS costs?" {
		t.Errorf("tool complete: expected args to be recorded as JSON, got %v", events[2].Data["args"])
	}
	if events[4].TurnID != "turn-2" || events[4].Data["error"] != "model unavailable" {
		t.Errorf("turn error: unexpected event %+v", events[4])
	}
}

func TestLogger_TruncatesResults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewLogger(logPath)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	if err := logger.LogToolComplete("turn-1", "get_pod_logs", nil, true, time.Millisecond, strings.Repeat("x", 5000)); err != nil {
		t.Errorf("LogToolComplete failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}

	events := readEvents(t, logPath)
	result, _ := events[0].Data["result"].(string)
	if !strings.HasSuffix(result, "...[truncated]") || len(result) != maxRecordedResult+len("...[truncated]") {
		t.Errorf("expected truncated result, got %d bytes", len(result))
	}
	if _, ok := events[0].Data["args"]; ok {
		t.Errorf("expected no args for empty input")
	}
}

func TestLogger_NilIsDisabled(t *testing.T) {
	var logger *Logger
	if err := logger.LogTurnStart("turn-1", "bob", "hi", "x"); err != nil {
		t.Errorf("nil logger returned error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("nil logger close returned error: %v", err)
	}
}

func TestLogger_Append(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")

	for _, turn := range []string{"turn-1", "turn-2"} {
		logger, err := NewLogger(logPath)
		if err != nil {
			t.Fatalf("failed to create logger: %v", err)
		}
		if err := logger.LogTurnStart(turn, "", "q", "x"); err != nil {
			t.Errorf("LogTurnStart failed: %v", err)
		}
		if err := logger.Close(); err != nil {
			t.Fatalf("failed to close logger: %v", err)
		}
	}

	events := readEvents(t, logPath)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].TurnID != "turn-1" || events[1].TurnID != "turn-2" {
		t.Errorf("unexpected turn ids %s, %s", events[0].TurnID, events[1].TurnID)
	}
}

func TestLogger_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")

	logger, err := NewLogger(logPath)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 10; j++ {
				_ = logger.LogToolStart("turn", "list_pods")
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	if err := logger.Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}

	if count := len(readEvents(t, logPath)); count != 100 {
		t.Errorf("expected 100 events, got %d", count)
	}
}
