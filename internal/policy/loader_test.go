package policy

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool-permissions.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileUsesDefault(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.Roles["guest"]; !ok {
		t.Error("expected default policy roles")
	}
}

func TestLoad_ValidFile(t *testing.T) {
	path := writePolicy(t, `
roles:
  user:
    allowed_tools: [search_web]
    denied_tools: []
    rate_limit: 10
  analyst:
    allowed_tools: ["*"]
    denied_tools: [execute_command]
tool_restrictions:
  file_operations:
    forbidden_paths: [/secrets]
    max_file_size: 5MB
  network_operations:
    forbidden_domains: [internal.example.com]
    allowed_ports: [443]
time_restrictions:
  business_hours_only: true
  allowed_hours: [8, 18]
  timezone: UTC
`)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.Roles["analyst"].DeniedTools; len(got) != 1 || got[0] != "execute_command" {
		t.Errorf("analyst denied tools = %v", got)
	}
	if p.ToolRestrictions.FileOperations.MaxFileSize != "5MB" {
		t.Errorf("max_file_size = %q", p.ToolRestrictions.FileOperations.MaxFileSize)
	}
	if !p.TimeRestrictions.BusinessHoursOnly || p.TimeRestrictions.AllowedHours[1] != 18 {
		t.Errorf("time restrictions = %+v", p.TimeRestrictions)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"malformed yaml", "roles: [unclosed", "parse yaml"},
		{"empty", "", "empty"},
		{"unknown field", "roles:\n  user: {allowed_tools: []}\nsurprise: true\n", "schema"},
		{"wrong type", "roles:\n  user: {allowed_tools: read_file}\n", "schema"},
		{"missing user role", "roles:\n  admin: {allowed_tools: ['*']}\n", "fallback"},
		{"bad hours", "roles:\n  user: {}\ntime_restrictions: {allowed_hours: [17, 9]}\n", "allowed_hours"},
		{"hours out of range", "roles:\n  user: {}\ntime_restrictions: {allowed_hours: [9, 30]}\n", "schema"},
		{"bad timezone", "roles:\n  user: {}\ntime_restrictions: {timezone: Nowhere/Land}\n", "timezone"},
		{"default role not configurable", "default_role: admin\nroles:\n  user: {}\n  admin: {allowed_tools: ['*']}\n", "schema"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writePolicy(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("expected *LoadError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	p, err := LoadOrDefault(writePolicy(t, "roles: [unclosed"))
	if err == nil {
		t.Error("expected the load error to be reported")
	}
	if p == nil || len(p.Roles) != 3 {
		t.Fatalf("expected default policy, got %+v", p)
	}
}

func TestDefaultPolicy_Validates(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Errorf("default policy invalid: %v", err)
	}
}
