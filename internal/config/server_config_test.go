package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadServersYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.yaml")
	content := `
servers:
  weather:
    command: weather-server
    args: ["--stdio"]
  legacy:
    disabled: true
    command: old-server
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	configs, err := LoadServers(path)
	if err != nil {
		t.Fatalf("LoadServers() error = %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("len(configs) = %d, want 2", len(configs))
	}

	byName := map[string]bool{}
	for _, c := range configs {
		byName[c.Name] = c.Disabled
	}
	if byName["weather"] {
		t.Errorf("weather should not be disabled")
	}
	if !byName["legacy"] {
		t.Errorf("legacy should be disabled")
	}
}

func TestLoadServersRejectsInvalidEnabledEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.yaml")
	content := `
servers:
  bad_name:
    command: x
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadServers(path); err == nil {
		t.Fatal("expected error for underscore-containing server name")
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/test")

	cases := map[string]string{
		"~":          "/home/test",
		"~/workdir":  "/home/test/workdir",
		"/abs/path":  "/abs/path",
		"":           "",
		"relative/p": "relative/p",
	}
	for in, want := range cases {
		if got := expandHome(in); got != want {
			t.Errorf("expandHome(%q) = %q, want %q", in, got, want)
		}
	}
}
