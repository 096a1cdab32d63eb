package agent

import (
	"os"
	"path/filepath"
	"testing"
)

func writeModelsFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestSelectModelFromRosterExactMatch(t *testing.T) {
	path := writeModelsFile(t, `
- title: fast
  model: gpt-4o-mini
  provider: openai
- title: smart
  model: claude-sonnet
  provider: anthropic
  default: true
`)

	rec, err := selectModel(path, "gpt-4o-mini")
	if err != nil {
		t.Fatalf("selectModel: %v", err)
	}
	if rec.Title != "fast" {
		t.Errorf("Title = %q, want fast", rec.Title)
	}
}

func TestSelectModelFromRosterFallsBackToDefault(t *testing.T) {
	path := writeModelsFile(t, `
- title: fast
  model: gpt-4o-mini
  provider: openai
- title: smart
  model: claude-sonnet
  provider: anthropic
  default: true
`)

	rec, err := selectModel(path, "")
	if err != nil {
		t.Fatalf("selectModel: %v", err)
	}
	if rec.Title != "smart" {
		t.Errorf("Title = %q, want smart", rec.Title)
	}
}

func TestSelectModelNoRosterAndNoLegacyPreferencesErrors(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	if _, err := selectModel("", ""); err == nil {
		t.Fatal("expected error when neither --config nor legacy preferences are available")
	}
}

func TestLoadServerConfigsEmptyPathIsValid(t *testing.T) {
	configs, err := loadServerConfigs("")
	if err != nil {
		t.Fatalf("loadServerConfigs(\"\"): %v", err)
	}
	if configs != nil {
		t.Errorf("configs = %+v, want nil", configs)
	}
}

func TestLoadServerConfigsReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.yaml")
	content := `
servers:
  files:
    transport: stdio
    command: mcp-files
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	configs, err := loadServerConfigs(path)
	if err != nil {
		t.Fatalf("loadServerConfigs: %v", err)
	}
	if len(configs) != 1 {
		t.Fatalf("len(configs) = %d, want 1", len(configs))
	}
	if configs[0].Name != "files" {
		t.Errorf("Name = %q, want files", configs[0].Name)
	}
}

func TestPreviewTruncatesLongStrings(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	got := preview(string(long), 200)
	if len(got) <= 200 {
		t.Fatalf("expected truncated preview to still report original length via ellipsis, got len=%d", len(got))
	}
}

func TestPreviewLeavesShortStringsAlone(t *testing.T) {
	if got := preview("short", 200); got != "short" {
		t.Errorf("preview(short) = %q, want unchanged", got)
	}
}
