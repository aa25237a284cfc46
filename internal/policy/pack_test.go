package policy

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func writePack(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadPacks_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	base := DefaultPolicy()

	result, infos, err := LoadPacks(dir, base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("expected 0 pack infos, got %d", len(infos))
	}
	if len(result.Roles) != len(base.Roles) {
		t.Errorf("expected %d roles, got %d", len(base.Roles), len(result.Roles))
	}
}

func TestLoadPacks_NonExistentDir(t *testing.T) {
	base := DefaultPolicy()
	result, _, err := LoadPacks("/nonexistent/path/packs", base)
	if err != nil {
		t.Fatalf("unexpected error for non-existent dir: %v", err)
	}
	if result != base {
		t.Error("expected base policy unchanged")
	}
}

func TestLoadPacks_AddsRolesAndDenies(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "ops.yaml", `
name: "Ops Pack"
description: "Operator role and extra denies"
version: "1.0.0"
roles:
  operator:
    allowed_tools: ["*"]
    denied_tools: [delete_file]
  user:
    denied_tools: [translate]
tool_restrictions:
  system_operations:
    forbidden_commands: [shutdown, rm]
`)

	result, infos, err := LoadPacks(dir, DefaultPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "Ops Pack" || infos[0].RoleCount != 2 {
		t.Fatalf("infos = %+v", infos)
	}

	if _, ok := result.Roles["operator"]; !ok {
		t.Error("operator role not merged")
	}
	if !slices.Contains(result.Roles["user"].DeniedTools, "translate") {
		t.Error("user deny list not extended")
	}
	if !slices.Contains(result.Roles["user"].AllowedTools, "translate") {
		t.Error("user allow list should be kept")
	}
	cmds := result.ToolRestrictions.SystemOperations.ForbiddenCommands
	if len(cmds) != 5 || !slices.Contains(cmds, "shutdown") {
		t.Errorf("forbidden commands = %v", cmds)
	}

	r := NewEngine(result).Evaluate(Request{Tool: "translate", Role: "user"})
	if r.Allowed {
		t.Error("pack deny should override the base allow")
	}
}

func TestLoadPacks_DisabledPack(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "_disabled-pack.yaml", `
name: "Disabled Pack"
roles:
  intruder:
    allowed_tools: ["*"]
`)

	result, infos, err := LoadPacks(dir, DefaultPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected 1 pack info, got %d", len(infos))
	}
	if infos[0].Enabled {
		t.Error("expected pack to be disabled")
	}
	if _, ok := result.Roles["intruder"]; ok {
		t.Error("disabled pack roles should not merge")
	}
}

func TestLoadPacks_BrokenPackReported(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "broken.yml", "roles: [oops")
	writePack(t, dir, "notes.txt", "ignored")

	_, infos, err := LoadPacks(dir, DefaultPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 1 || infos[0].Err == nil {
		t.Fatalf("expected one pack with an error, got %+v", infos)
	}
}

func TestLoadPacks_TimeWindow(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "hours.yaml", `
time_restrictions:
  business_hours_only: true
  allowed_hours: [7, 19]
  timezone: Europe/Berlin
`)

	result, _, err := LoadPacks(dir, DefaultPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr := result.TimeRestrictions
	if !tr.BusinessHoursOnly || tr.Timezone != "Europe/Berlin" || tr.AllowedHours[0] != 7 {
		t.Errorf("time restrictions = %+v", tr)
	}
}

func TestLoadPacks_DoesNotMutateBase(t *testing.T) {
	dir := t.TempDir()
	base := DefaultPolicy()
	baseDenied := len(base.Roles["user"].DeniedTools)
	basePaths := len(base.ToolRestrictions.FileOperations.ForbiddenPaths)

	writePack(t, dir, "mutation.yaml", `
roles:
  user:
    denied_tools: [calculate]
tool_restrictions:
  file_operations:
    forbidden_paths: [/opt]
`)

	if _, _, err := LoadPacks(dir, base); err != nil {
		t.Fatal(err)
	}

	if len(base.Roles["user"].DeniedTools) != baseDenied {
		t.Errorf("base deny list was mutated")
	}
	if len(base.ToolRestrictions.FileOperations.ForbiddenPaths) != basePaths {
		t.Errorf("base forbidden paths were mutated")
	}
}
