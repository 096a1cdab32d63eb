package router

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ChamsBouzaiene/dodo/internal/mcp/pool"
)

func emptyPool(t *testing.T) *pool.Pool {
	t.Helper()
	p, err := pool.StartAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("StartAll(nil): %v", err)
	}
	return p
}

func TestDispatchInvalidFunctionNameFormat(t *testing.T) {
	r := New(emptyPool(t))
	got := r.Dispatch(context.Background(), "noUnderscoreHere", nil)

	var payload map[string]string
	if err := json.Unmarshal([]byte(got), &payload); err != nil {
		t.Fatalf("Dispatch result not JSON: %v", err)
	}
	if payload["error"] != "Invalid function name format" {
		t.Fatalf("got error %q", payload["error"])
	}
}

func TestDispatchUnknownServer(t *testing.T) {
	r := New(emptyPool(t))
	got := r.Dispatch(context.Background(), "srv_echo", json.RawMessage(`{}`))

	var payload map[string]string
	if err := json.Unmarshal([]byte(got), &payload); err != nil {
		t.Fatalf("Dispatch result not JSON: %v", err)
	}
	if payload["error"] != "Unknown server: srv" {
		t.Fatalf("got error %q", payload["error"])
	}
}

func TestParseArgsEmptyStringBecomesEmptyObject(t *testing.T) {
	args := parseArgs(nil)
	if len(args) != 0 {
		t.Fatalf("expected empty object for nil args, got %#v", args)
	}
	args = parseArgs(json.RawMessage(""))
	if len(args) != 0 {
		t.Fatalf("expected empty object for empty args, got %#v", args)
	}
}
