package tracelog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	dir, err := os.MkdirTemp("", "tracelog_index_test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	dbPath := filepath.Join(dir, "trace.db")
	store, err := Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	idx, err := OpenIndex(dbPath, store)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndexTraceAndSearch(t *testing.T) {
	idx := newTestIndex(t)

	if err := idx.IndexTrace(1, "session-1", "the quick brown fox jumps over the lazy dog"); err != nil {
		t.Fatalf("IndexTrace: %v", err)
	}
	if err := idx.IndexTrace(2, "session-1", "completely unrelated content about oceans"); err != nil {
		t.Fatalf("IndexTrace: %v", err)
	}

	results, err := idx.Search("fox", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].DocType != "trace" {
		t.Errorf("DocType = %q", results[0].DocType)
	}
}

func TestIndexSpillFileAndSearch(t *testing.T) {
	idx := newTestIndex(t)

	hash, err := idx.IndexSpillFile("/tmp/spill-x.json", "a payload mentioning narwhals and tide pools")
	if err != nil {
		t.Fatalf("IndexSpillFile: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty hash")
	}

	results, err := idx.Search("narwhals", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].DocType != "spill" {
		t.Fatalf("results = %+v", results)
	}
}

func TestDispatchRequiresQuery(t *testing.T) {
	idx := newTestIndex(t)
	result := idx.Dispatch(context.Background(), "search", []byte(`{}`))

	var parsed map[string]string
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if parsed["error"] == "" {
		t.Fatal("expected error for missing query")
	}
}

func TestDispatchReturnsResults(t *testing.T) {
	idx := newTestIndex(t)
	if err := idx.IndexTrace(1, "session-1", "discussing kubernetes pod scheduling"); err != nil {
		t.Fatalf("IndexTrace: %v", err)
	}

	result := idx.Dispatch(context.Background(), "search", []byte(`{"query":"kubernetes"}`))

	var parsed []SearchResult
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		t.Fatalf("unmarshal result: %v (raw=%s)", err, result)
	}
	if len(parsed) != 1 {
		t.Fatalf("len(parsed) = %d, want 1", len(parsed))
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	idx := newTestIndex(t)
	result := idx.Dispatch(context.Background(), "other", []byte(`{"query":"x"}`))

	var parsed map[string]string
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if parsed["error"] == "" {
		t.Fatal("expected error for unknown tool")
	}
}
