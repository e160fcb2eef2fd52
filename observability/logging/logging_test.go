package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
)

func TestSetupRenamesKeysAndTagsService(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := Setup("yieldd", "test", Options{Output: &buf})
	logger.Warn("bonus deferred", "farm", "0xabc")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["severity"] != "WARN" {
		t.Fatalf("unexpected severity %v", line["severity"])
	}
	if line["message"] != "bonus deferred" {
		t.Fatalf("unexpected message %v", line["message"])
	}
	if line["service"] != "yieldd" || line["env"] != "test" {
		t.Fatalf("missing service attrs: %v", line)
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("timestamp key missing: %v", line)
	}
}

func TestSetupHonoursLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := Setup("yieldd", "", Options{Output: &buf, Level: ParseLevel("error")})
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info line should be filtered, got %q", buf.String())
	}
}

func TestSetupWritesRotatingFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "yieldd.log")
	var buf bytes.Buffer
	Setup("yieldd", "", Options{Output: &buf, File: path}).Info("hello")
	matches, err := filepath.Glob(path)
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected log file at %s: %v", path, err)
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("authorization", "Bearer x").Value.String(); got != RedactedValue {
		t.Fatalf("expected redaction, got %q", got)
	}
	if got := MaskField("farm", "0xabc").Value.String(); got != "0xabc" {
		t.Fatalf("allowlisted key masked: %q", got)
	}
	if got := MaskField("secret", "").Value.String(); got != "" {
		t.Fatalf("empty value should pass through, got %q", got)
	}
	if len(RedactionAllowlist()) == 0 {
		t.Fatalf("allowlist empty")
	}
}
