package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(Options{Service: "minishop", Level: "loud"}); err == nil {
		t.Error("Expected an unknown level to fail")
	}
}

func TestNewLogger_TeesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "minishop.log")
	logger, err := NewLogger(Options{Service: "minishop", Env: "test", Level: "debug", File: path})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	WithTrace(logger, SystemTraceID, "").Info("started")
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &line); err != nil {
		t.Fatalf("Expected one JSON line, got %q", raw)
	}
	want := map[string]any{"msg": "started", "service": "minishop", "env": "test", "trace_id": "system", "span_id": "unknown", "level": "info"}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("Expected %s=%v, got %v", k, v, line[k])
		}
	}
	if _, ok := line["ts"]; !ok {
		t.Error("Expected a ts field")
	}
}
