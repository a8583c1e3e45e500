package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output %q: %v", buf.String(), err)
	}
	return entry
}

func TestNewWithWriter_DefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "1.2.3")

	logger.Info("detected", "board", 5)

	entry := decode(t, &buf)
	if entry["service"] != ServiceName {
		t.Errorf("service = %v, want %s", entry["service"], ServiceName)
	}
	if entry["version"] != "1.2.3" {
		t.Errorf("version = %v, want 1.2.3", entry["version"])
	}
	if entry["board"] != float64(5) {
		t.Errorf("board = %v, want 5", entry["board"])
	}
}

func TestNewWithWriter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "warn", Format: "json"}, "dev")

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info written at warn level: %s", buf.String())
	}

	logger.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn not written: %s", buf.String())
	}
}

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "debug", Format: "text"}, "dev")

	logger.Debug("voltage", "raw", 71000)
	if !strings.Contains(buf.String(), "raw=71000") {
		t.Errorf("text output = %q, want raw=71000", buf.String())
	}
}

func TestLogger_Success(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "dev")

	logger.Success("RTC test passed", "slot", "B1/S2")

	entry := decode(t, &buf)
	if entry["result"] != "pass" {
		t.Errorf("result = %v, want pass", entry["result"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entry["level"])
	}
	if entry["slot"] != "B1/S2" {
		t.Errorf("slot = %v, want B1/S2", entry["slot"])
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Format: "json"}, "dev")
	child := logger.With("component", "sequencer")

	if child == logger {
		t.Error("expected child logger to be different from parent")
	}

	child.Info("ready")
	if entry := decode(t, &buf); entry["component"] != "sequencer" {
		t.Errorf("component = %v, want sequencer", entry["component"])
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Fatal("expected non-nil default logger")
	}
}
