package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "info")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Debug("hidden")
	l.Info("tool access allowed", zap.String("tool", "read_file"))
	_ = l.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "tool access allowed" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["tool"] != "read_file" {
		t.Errorf("tool = %v", entry["tool"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v", entry["level"])
	}
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "loud")
	if err == nil {
		t.Fatal("expected error for unknown level")
	}
	if l == nil {
		t.Fatal("expected a usable logger alongside the error")
	}
	l.Info("still logged")
	if !strings.Contains(buf.String(), "still logged") {
		t.Errorf("expected info entry, got %q", buf.String())
	}
}

func TestNamedChildren(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(&buf, "info")

	SIEM(l).Info("siem event")
	Diagnostic(l).Warn("audit write failed")

	out := buf.String()
	if !strings.Contains(out, `"logger":"siem"`) {
		t.Errorf("missing siem logger name in %q", out)
	}
	if !strings.Contains(out, `"logger":"diagnostic"`) {
		t.Errorf("missing diagnostic logger name in %q", out)
	}
}
