package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"fwd-proxy-go/internal/config"
)

func TestNew_SplitsByLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cfg := &config.Config{Log: config.LogConfig{Level: "info", Format: "json"}}
	logger := NewWithWriters(cfg, &stdout, &stderr)

	logger.Info("listening", "url", "http://127.0.0.1:3000")
	logger.Error("upstream request failed", "err", "connection refused")
	logger.Debug("hidden")

	if !strings.Contains(stdout.String(), `"msg":"listening"`) {
		t.Errorf("stdout = %q, want listening record", stdout.String())
	}
	if strings.Contains(stdout.String(), "upstream request failed") {
		t.Error("error record written to stdout")
	}
	if !strings.Contains(stderr.String(), "upstream request failed") {
		t.Errorf("stderr = %q, want error record", stderr.String())
	}
	if strings.Contains(stdout.String()+stderr.String(), "hidden") {
		t.Error("debug record written at info level")
	}

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(stderr.Bytes()), &rec); err != nil {
		t.Fatalf("stderr is not JSON: %v", err)
	}
}

func TestNew_WithAttrsAppliesToBoth(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cfg := &config.Config{Log: config.LogConfig{Level: "debug", Format: "text"}}
	logger := NewWithWriters(cfg, &stdout, &stderr).With("component", "server")

	logger.Debug("a")
	logger.Error("b")

	if !strings.Contains(stdout.String(), "component=server") {
		t.Errorf("stdout = %q, want component attr", stdout.String())
	}
	if !strings.Contains(stderr.String(), "component=server") {
		t.Errorf("stderr = %q, want component attr", stderr.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
