package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// captureLogOutput captures log output for testing by temporarily
// redirecting the logger to write to a buffer
func captureLogOutput(f func()) string {
	var buf bytes.Buffer

	oldLogger := defaultLogger
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	defaultLogger = slog.New(handler)

	f()

	defaultLogger = oldLogger
	return buf.String()
}

func TestInitLoggerTo(t *testing.T) {
	tests := []struct {
		name    string
		level   Level
		format  Format
		logged  bool
		isJSON  bool
		logFunc func()
	}{
		{"debug json", LevelDebug, FormatJSON, true, true, func() { Debug("m") }},
		{"info drops debug", LevelInfo, FormatJSON, false, true, func() { Debug("m") }},
		{"warn text", LevelWarn, FormatText, true, false, func() { Warn("m") }},
		{"error drops warn", LevelError, FormatText, false, false, func() { Warn("m") }},
		{"invalid level is info", Level(999), FormatJSON, true, true, func() { Info("m") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			InitLoggerTo(&buf, tt.level, tt.format)
			defer InitLogger(LevelInfo, FormatText)

			tt.logFunc()
			out := buf.String()
			if (out != "") != tt.logged {
				t.Fatalf("logged = %v, output %q", out != "", out)
			}
			if !tt.logged {
				return
			}
			if tt.isJSON != strings.HasPrefix(out, "{") {
				t.Errorf("unexpected format: %q", out)
			}
		})
	}
}

func TestTimestampFormat(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerTo(&buf, LevelInfo, FormatJSON)
	defer InitLogger(LevelInfo, FormatText)

	Info("hello")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	ts, _ := rec["time"].(string)
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("time %q is not RFC3339", ts)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

func TestGetRunID(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected string
	}{
		{"with run ID", WithRunID(context.Background(), "run-1"), "run-1"},
		{"without run ID", context.Background(), ""},
		{"wrong type", context.WithValue(context.Background(), RunIDKey, 12345), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetRunID(tt.ctx); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestLoggerFromContext(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-42")
	output := captureLogOutput(func() {
		InfoContext(ctx, "hello")
	})
	if !strings.Contains(output, `"run_id":"run-42"`) {
		t.Errorf("run_id missing from %q", output)
	}

	output = captureLogOutput(func() {
		InfoContext(context.Background(), "hello")
	})
	if strings.Contains(output, "run_id") {
		t.Errorf("unexpected run_id in %q", output)
	}
}

func TestLoggingFunctions(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		fn   func()
	}{
		{"Debug", func() { Debug("debug message", "key", "value") }},
		{"Info", func() { Info("info message", "key", "value") }},
		{"Warn", func() { Warn("warning message", "key", "value") }},
		{"Error", func() { Error("error message", "key", "value") }},
		{"DebugContext", func() { DebugContext(ctx, "debug message") }},
		{"InfoContext", func() { InfoContext(ctx, "info message") }},
		{"WarnContext", func() { WarnContext(ctx, "warning message") }},
		{"ErrorContext", func() { ErrorContext(ctx, "error message") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if output := captureLogOutput(tt.fn); output == "" {
				t.Error("Expected log output, got empty string")
			}
		})
	}
}

func TestPhaseHelpers(t *testing.T) {
	ctx := WithRunID(context.Background(), "r")

	output := captureLogOutput(func() {
		PhaseStart(ctx, "dedup")
		PhaseDone(ctx, "dedup", 1500*time.Millisecond, "merged", 3)
	})
	for _, want := range []string{`"msg":"phase_start"`, `"msg":"phase_done"`, `"duration_ms":1500`, `"merged":3`, `"phase":"dedup"`} {
		if !strings.Contains(output, want) {
			t.Errorf("output lacks %s: %s", want, output)
		}
	}
}

func TestProductSkipped(t *testing.T) {
	output := captureLogOutput(func() {
		ProductSkipped(context.Background(), 42, "GeometryUnsupported", errors.New("bad operand"))
	})
	for _, want := range []string{`"level":"WARN"`, `"product":42`, `"kind":"GeometryUnsupported"`, `"error":"bad operand"`} {
		if !strings.Contains(output, want) {
			t.Errorf("output lacks %s: %s", want, output)
		}
	}
}
