package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSelectModelExactMatch(t *testing.T) {
	records := []ModelRecord{
		{Title: "fast", Model: "gpt-4o-mini"},
		{Title: "smart", Model: "gpt-4o", Default: true},
	}

	got, err := SelectModel(records, "fast")
	if err != nil {
		t.Fatalf("SelectModel() error = %v", err)
	}
	if got.Title != "fast" {
		t.Errorf("got %q, want fast", got.Title)
	}
}

func TestSelectModelFallsBackToDefault(t *testing.T) {
	records := []ModelRecord{
		{Title: "fast", Model: "gpt-4o-mini"},
		{Title: "smart", Model: "gpt-4o", Default: true},
	}

	got, err := SelectModel(records, "unknown-model")
	if err != nil {
		t.Fatalf("SelectModel() error = %v", err)
	}
	if got.Title != "smart" {
		t.Errorf("got %q, want smart", got.Title)
	}
}

func TestSelectModelFallsBackToFirst(t *testing.T) {
	records := []ModelRecord{
		{Title: "fast", Model: "gpt-4o-mini"},
		{Title: "smart", Model: "gpt-4o"},
	}

	got, err := SelectModel(records, "")
	if err != nil {
		t.Fatalf("SelectModel() error = %v", err)
	}
	if got.Title != "fast" {
		t.Errorf("got %q, want fast", got.Title)
	}
}

func TestSelectModelEmptyRecordsErrors(t *testing.T) {
	if _, err := SelectModel(nil, "anything"); err == nil {
		t.Fatal("expected error for empty record set")
	}
}

func TestResolvedSystemMessagePrefersInline(t *testing.T) {
	r := ModelRecord{SystemMessage: "be terse"}
	got, err := r.ResolvedSystemMessage()
	if err != nil {
		t.Fatalf("ResolvedSystemMessage() error = %v", err)
	}
	if got != "be terse" {
		t.Errorf("got %q, want %q", got, "be terse")
	}
}

func TestResolvedSystemMessageReadsFiles(t *testing.T) {
	dir := t.TempDir()
	f1 := filepath.Join(dir, "a.txt")
	f2 := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(f1, []byte("part one"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f2, []byte("part two"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := ModelRecord{SystemMessageFile: f1, SystemMessageFiles: []string{f2}}
	got, err := r.ResolvedSystemMessage()
	if err != nil {
		t.Fatalf("ResolvedSystemMessage() error = %v", err)
	}
	want := "part one\n\npart two"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLoadModelsRejectsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.json")
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadModels(path); err == nil {
		t.Fatal("expected error for empty model config")
	}
}
