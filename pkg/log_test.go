package pkg

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSetLogLevel(t *testing.T) {
	original := GetLogLevel()
	defer SetLogLevel(original)

	tests := []struct {
		name  string
		level slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetLogLevel(tt.level)
			if got := GetLogLevel(); got != tt.level {
				t.Errorf("GetLogLevel() = %v, want %v", got, tt.level)
			}
			if got := Level().Level(); got != tt.level {
				t.Errorf("Level() = %v, want %v", got, tt.level)
			}
		})
	}
}

func TestLogComponents(t *testing.T) {
	original := DefaultLogger
	originalLevel := GetLogLevel()
	defer func() {
		SetLogger(original)
		SetLogLevel(originalLevel)
	}()

	tests := []struct {
		name      string
		log       func(Component, string, ...any)
		component Component
		msg       string
	}{
		{"debug", LogDebug, ComponentBus, "debug message"},
		{"info", LogInfo, ComponentHost, "info message"},
		{"warn", LogWarn, ComponentPresence, "warn message"},
		{"error", LogError, ComponentHAL, "error message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			SetLogLevel(slog.LevelDebug)
			SetLogger(NewLogger(&buf, nil))

			tt.log(tt.component, tt.msg, "key", "value")
			output := buf.String()
			if !strings.Contains(output, tt.msg) {
				t.Errorf("log missing message: %s", output)
			}
			if !strings.Contains(output, "component="+string(tt.component)) {
				t.Errorf("log missing component: %s", output)
			}
			if !strings.Contains(output, "key=value") {
				t.Errorf("log missing attribute: %s", output)
			}
		})
	}
}

func TestLogBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	original := DefaultLogger
	originalLevel := GetLogLevel()
	defer func() {
		SetLogger(original)
		SetLogLevel(originalLevel)
	}()

	SetLogLevel(slog.LevelWarn)
	SetLogger(NewLogger(&buf, nil))

	LogDebug(ComponentTransaction, "hidden")
	LogInfo(ComponentTransaction, "hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output below level, got %q", buf.String())
	}
}
