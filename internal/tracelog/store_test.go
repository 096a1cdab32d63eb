package tracelog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ChamsBouzaiene/dodo/internal/engine"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir, err := os.MkdirTemp("", "tracelog_test")
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
	return store, dbPath
}

func TestAppendAndGetTrace(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	messages := []engine.ChatMessage{
		{Role: engine.RoleSystem, Content: "you are a helper"},
		{Role: engine.RoleUser, Content: "what is the weather"},
	}
	functions := []engine.ToolSchema{{Name: "weather_forecast", Description: "gets the forecast"}}

	id, err := store.AppendTrace(ctx, "session-1", messages, functions)
	if err != nil {
		t.Fatalf("AppendTrace: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero trace id")
	}

	got, err := store.GetTrace(ctx, id)
	if err != nil {
		t.Fatalf("GetTrace: %v", err)
	}
	if got.SessionID != "session-1" {
		t.Errorf("SessionID = %q", got.SessionID)
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != "what is the weather" {
		t.Errorf("Messages = %+v", got.Messages)
	}
	if len(got.Functions) != 1 || got.Functions[0].Name != "weather_forecast" {
		t.Errorf("Functions = %+v", got.Functions)
	}
}

func TestListSessionOrdersByTraceID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.AppendTrace(ctx, "session-A", []engine.ChatMessage{{Role: engine.RoleUser, Content: "turn"}}, nil); err != nil {
			t.Fatalf("AppendTrace: %v", err)
		}
	}
	if _, err := store.AppendTrace(ctx, "session-B", []engine.ChatMessage{{Role: engine.RoleUser, Content: "other"}}, nil); err != nil {
		t.Fatalf("AppendTrace: %v", err)
	}

	records, err := store.ListSession(ctx, "session-A")
	if err != nil {
		t.Fatalf("ListSession: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}
	for _, r := range records {
		if r.SessionID != "session-A" {
			t.Errorf("SessionID = %q, want session-A", r.SessionID)
		}
	}
	for i := 1; i < len(records); i++ {
		if records[i-1].TraceID >= records[i].TraceID {
			t.Errorf("records not ordered by trace id: %d before %d", records[i-1].TraceID, records[i].TraceID)
		}
	}
}

func TestUpsertAndGetSpillFile(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertSpillFile(ctx, "hash-1", "/tmp/spill-1.json", "first 200 chars..."); err != nil {
		t.Fatalf("UpsertSpillFile: %v", err)
	}
	if err := store.UpsertSpillFile(ctx, "hash-1", "/tmp/spill-1-moved.json", "updated preview"); err != nil {
		t.Fatalf("UpsertSpillFile (update): %v", err)
	}

	got, err := store.GetSpillFile(ctx, "hash-1")
	if err != nil {
		t.Fatalf("GetSpillFile: %v", err)
	}
	if got.Path != "/tmp/spill-1-moved.json" || got.Preview != "updated preview" {
		t.Errorf("got = %+v", got)
	}
}

func TestGetSpillFileNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.GetSpillFile(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing hash")
	}
}
