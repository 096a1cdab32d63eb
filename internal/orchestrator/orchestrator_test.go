package orchestrator

import (
	"context"
	"testing"

	"github.com/ChamsBouzaiene/dodo/internal/engine"
	"github.com/ChamsBouzaiene/dodo/internal/mcp/pool"
)

// fakeLLM returns scripted responses in order, one per Chat call.
type fakeLLM struct {
	responses []engine.LLMResponse
	errs      []error
	streamed  [][]engine.StreamEvent // per-call sequence of events for Stream
	calls     int
}

func (f *fakeLLM) Chat(ctx context.Context, model string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (engine.LLMResponse, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.responses[i], err
}

func (f *fakeLLM) Stream(ctx context.Context, model string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	i := f.calls
	f.calls++
	events := make(chan engine.StreamEvent, len(f.streamed[i]))
	errs := make(chan error, 1)
	for _, ev := range f.streamed[i] {
		events <- ev
	}
	close(events)
	if i < len(f.errs) && f.errs[i] != nil {
		errs <- f.errs[i]
	}
	close(errs)
	return events, errs
}

func emptyPool(t *testing.T) *pool.Pool {
	t.Helper()
	p, err := pool.StartAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("StartAll(nil): %v", err)
	}
	return p
}

func TestRunNoToolCallsReturnsDirectly(t *testing.T) {
	llm := &fakeLLM{
		responses: []engine.LLMResponse{
			{Assistant: engine.ChatMessage{Role: engine.RoleAssistant, Content: "hello there"}},
		},
	}
	o := New(llm, "test-model", emptyPool(t))

	history, err := o.Run(context.Background(), "be nice", "hello", engine.ChatOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len(history) = %d, want 3 (system, user, assistant)", len(history))
	}
	if history[2].Content != "hello there" {
		t.Errorf("final message = %q", history[2].Content)
	}
}

func TestRunDispatchesUnknownServerToolCall(t *testing.T) {
	llm := &fakeLLM{
		responses: []engine.LLMResponse{
			{
				Assistant: engine.ChatMessage{Role: engine.RoleAssistant},
				ToolCalls: []engine.ToolCall{{ID: "c1", Name: "srv_echo", Args: map[string]any{"msg": "hi"}}},
			},
			{Assistant: engine.ChatMessage{Role: engine.RoleAssistant, Content: "done"}},
		},
	}
	o := New(llm, "test-model", emptyPool(t))

	history, err := o.Run(context.Background(), "sys", "say hi", engine.ChatOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// system, user, assistant(tool_call), tool(error), assistant(final)
	if len(history) != 5 {
		t.Fatalf("len(history) = %d, want 5", len(history))
	}
	if history[3].Role != engine.RoleTool {
		t.Fatalf("history[3].Role = %v, want tool", history[3].Role)
	}
	if history[4].Content != "done" {
		t.Errorf("final message = %q", history[4].Content)
	}
}

func TestRunProviderErrorTerminatesLoop(t *testing.T) {
	llm := &fakeLLM{
		responses: []engine.LLMResponse{{}},
		errs:      []error{context.DeadlineExceeded},
	}
	o := New(llm, "test-model", emptyPool(t))

	history, err := o.Run(context.Background(), "sys", "hello", engine.ChatOptions{})
	if err != nil {
		t.Fatalf("Run() should not surface provider errors as Go errors, got %v", err)
	}
	last := history[len(history)-1]
	if last.Role != engine.RoleAssistant {
		t.Fatalf("last message role = %v, want assistant", last.Role)
	}
	if last.Content == "" {
		t.Errorf("expected a <Provider> error message, got empty content")
	}
}

func TestRunStreamConcatenatesTextDeltasAndDispatchesTool(t *testing.T) {
	llm := &fakeLLM{
		streamed: [][]engine.StreamEvent{
			{
				{Type: "text_delta", Text: "check"},
				{Type: "text_delta", Text: "ing..."},
				{Type: "tool_call", ToolCall: engine.ToolCall{ID: "c1", Name: "srv_echo", Args: map[string]any{"msg": "hi"}}},
			},
			{
				{Type: "text_delta", Text: "done"},
			},
		},
	}
	o := New(llm, "test-model", emptyPool(t))

	history := []engine.ChatMessage{
		{Role: engine.RoleSystem, Content: "sys"},
		{Role: engine.RoleUser, Content: "say hi"},
	}
	events, done := o.RunStream(context.Background(), history, engine.ChatOptions{})

	var textDeltas string
	sawToolResult := false
	for ev := range events {
		switch ev.Type {
		case "text_delta":
			textDeltas += ev.Text
		case "tool_result":
			sawToolResult = true
		}
	}
	final := <-done

	if textDeltas != "checking..." {
		t.Errorf("concatenated text deltas = %q, want %q", textDeltas, "checking...")
	}
	if !sawToolResult {
		t.Error("expected a tool_result event for the dispatched tool call")
	}
	// system, user, assistant(tool_call, text="checking..."), tool(result), assistant(final, text="done")
	if len(final) != 5 {
		t.Fatalf("len(final) = %d, want 5", len(final))
	}
	if final[2].Content != "checking..." {
		t.Errorf("first assistant message content = %q", final[2].Content)
	}
	if final[3].Role != engine.RoleTool {
		t.Fatalf("final[3].Role = %v, want tool", final[3].Role)
	}
	if final[4].Content != "done" {
		t.Errorf("final assistant content = %q, want %q", final[4].Content, "done")
	}
}
