package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, expected %v", tt.in, got, tt.expected)
		}
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "debug", Format: "json"})
	logger.Debug("Stage started", "stage", "fetch.start")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("Expected JSON output, got %q", buf.String())
	}
	if line["stage"] != "fetch.start" {
		t.Errorf("Expected stage attribute, got %v", line)
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, Config{Level: "info", Format: "text"}))
	defer slog.SetDefault(prev)

	ctx := WithCorrelationID(context.Background(), "req-123")
	ctx = WithIdentifier(ctx, "H10011")
	ctx = WithConnection(ctx, "conn-1")

	With(ctx).Info("Ingest received")

	out := buf.String()
	for _, want := range []string{"correlation_id=req-123", "identifier=H10011", "connection=conn-1", "Ingest received"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in %q", want, out)
		}
	}
	if CorrelationID(ctx) != "req-123" {
		t.Errorf("Expected correlation id req-123, got %q", CorrelationID(ctx))
	}
}

func TestWithEmptyContext(t *testing.T) {
	if With(context.Background()) == nil {
		t.Error("Expected non-nil logger")
	}
}
