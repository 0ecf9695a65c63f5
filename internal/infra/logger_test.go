package infra

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("production", &buf, false)
	logger.Debug().Msg("hidden")
	logger.Info().Str("job_id", "abc").Msg("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one log line at info level, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["job_id"] != "abc" || entry["message"] != "visible" {
		t.Fatalf("unexpected entry: %#v", entry)
	}
}

func TestNewLoggerDevelopmentUsesConsoleAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("development", &buf, false)
	logger.Debug().Msg("debug line")

	out := buf.String()
	if !strings.Contains(out, "debug line") {
		t.Fatalf("debug message missing from output: %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("development logger should use console format, got %q", out)
	}
}
