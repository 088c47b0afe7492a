package logging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func captureOutput(t *testing.T, level string, packageLevels map[string]string) *bytes.Buffer {
	t.Helper()
	t.Setenv("LOG_TIMESTAMP", "2026-01-01T00:00:00Z")

	var buf bytes.Buffer
	prev := SetOutput(&buf)
	if err := Initialize(level, packageLevels); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() {
		SetOutput(prev)
		_ = Initialize("info", map[string]string{})
	})
	return &buf
}

func TestLogger_Format(t *testing.T) {
	buf := captureOutput(t, "info", nil)

	GetLogger("coordinator").InfoWithFields("routing query",
		Field("capability", "finops_assistant"),
		Field("attempt", 1),
	)

	want := "[2026-01-01T00:00:00Z] [INFO] coordinator: routing query | attempt=1 capability=finops_assistant\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	buf := captureOutput(t, "warn", nil)
	logger := GetLogger("cluster")

	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Warn("shown %d", 1)
	logger.Error("shown %d", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "[WARN] cluster: shown 1") {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "[ERROR] cluster: shown 2") {
		t.Errorf("unexpected second line %q", lines[1])
	}
}

func TestLogger_PackageOverrides(t *testing.T) {
	tests := []struct {
		name    string
		levels  map[string]string
		logger  string
		debugOK bool
	}{
		{"exact", map[string]string{"agent.finops": "debug"}, "agent.finops", true},
		{"wildcard", map[string]string{"agent.*": "debug"}, "agent.kubernetes", true},
		{"wildcard does not match parent", map[string]string{"agent.*": "debug"}, "agent", false},
		{"longest pattern wins", map[string]string{"agent.*": "debug", "agent.finops.*": "error"}, "agent.finops.mcp", false},
		{"unrelated", map[string]string{"agent.*": "debug"}, "coordinator", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureOutput(t, "info", tt.levels)
			GetLogger(tt.logger).Debug("probe")
			if got := buf.Len() > 0; got != tt.debugOK {
				t.Errorf("debug written = %v, want %v", got, tt.debugOK)
			}
		})
	}
}

func TestSetPackageLogLevels_Invalid(t *testing.T) {
	if err := SetPackageLogLevels(map[string]string{"coordinator": "loud"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestSetDefaultLevel_AppliesToExistingLoggers(t *testing.T) {
	buf := captureOutput(t, "info", nil)
	logger := GetLogger("config")

	logger.Debug("before")
	if err := SetDefaultLevel("debug"); err != nil {
		t.Fatalf("SetDefaultLevel: %v", err)
	}
	logger.Debug("after")

	out := buf.String()
	if strings.Contains(out, "before") || !strings.Contains(out, "after") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestLogger_WithContextAddsTurnFields(t *testing.T) {
	buf := captureOutput(t, "info", nil)

	ctx := ContextWithTurn(context.Background(), "turn-1", "alice")
	GetLogger("coordinator").WithContext(ctx).WithField("step", 2).Info("step started")

	out := buf.String()
	for _, want := range []string{"turn_id=turn-1", "user_id=alice", "step=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if TurnID(ctx) != "turn-1" {
		t.Errorf("TurnID() = %q", TurnID(ctx))
	}
}

func TestLogger_DerivedLoggersDoNotShareFields(t *testing.T) {
	base := GetLogger("x")
	a := base.WithField("a", 1)
	b := base.WithField("b", 2)

	if _, ok := a.fields["b"]; ok {
		t.Error("field leaked from sibling logger")
	}
	if _, ok := b.fields["a"]; ok {
		t.Error("field leaked from sibling logger")
	}
	if len(base.fields) != 0 {
		t.Error("base logger was modified")
	}
}

func TestLogger_MessageWithoutArgsKeepsPercent(t *testing.T) {
	buf := captureOutput(t, "info", nil)
	msg := "disk at 90% usage"
	info := GetLogger("x").Info
	info(msg)
	if !strings.Contains(buf.String(), msg) {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestLogger_ErrorWithErr(t *testing.T) {
	buf := captureOutput(t, "info", nil)
	GetLogger("tracing").ErrorWithErr("shutdown of %s failed", errors.New("deadline exceeded"), "exporter")
	if !strings.Contains(buf.String(), "[ERROR] tracing: shutdown of exporter failed - deadline exceeded") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestLogger_WarnWithFields(t *testing.T) {
	buf := captureOutput(t, "error", map[string]string{"capability": "warn"})
	GetLogger("capability").WarnWithFields("invocation failed", Field("error", "boom"))
	if !strings.Contains(buf.String(), "[WARN] capability: invocation failed | error=boom") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestLogger_Fatal(t *testing.T) {
	buf := captureOutput(t, "info", nil)
	code := 0
	prev := exitFunc
	exitFunc = func(c int) { code = c }
	defer func() { exitFunc = prev }()

	GetLogger("x").Fatal("boom")

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(buf.String(), "[FATAL] x: boom") {
		t.Errorf("unexpected output %q", buf.String())
	}
}
