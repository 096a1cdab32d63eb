package reasoning

import (
	"context"
	"testing"

	"github.com/ChamsBouzaiene/dodo/internal/engine"
	"github.com/ChamsBouzaiene/dodo/internal/mcp/pool"
	"github.com/ChamsBouzaiene/dodo/internal/mcp/router"
)

type scriptedLLM struct {
	replies []string
	calls   int
}

func (s *scriptedLLM) Chat(ctx context.Context, model string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (engine.LLMResponse, error) {
	i := s.calls
	s.calls++
	if i >= len(s.replies) {
		return engine.LLMResponse{Assistant: engine.ChatMessage{Role: engine.RoleAssistant, Content: ""}}, nil
	}
	return engine.LLMResponse{Assistant: engine.ChatMessage{Role: engine.RoleAssistant, Content: s.replies[i]}}, nil
}

func (s *scriptedLLM) Stream(ctx context.Context, model string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	panic("not used in this test")
}

type noopInterpreter struct{}

func (noopInterpreter) Run(ctx context.Context, code string) (string, error) { return "ok", nil }
func (noopInterpreter) Close() error                                        { return nil }

func emptyPool(t *testing.T) *pool.Pool {
	t.Helper()
	p, err := pool.StartAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("StartAll(nil): %v", err)
	}
	return p
}

func TestEngineRunFinalAnswer(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		"no actionable block here",
		"<final_answer>42</final_answer>",
	}}
	p := emptyPool(t)
	e := New(llm, "test-model", p, router.New(p), noopInterpreter{})

	outcome, err := e.Run(context.Background(), "what is the answer?")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !outcome.Success {
		t.Fatal("expected success")
	}
	if outcome.Answer != "42" {
		t.Errorf("answer = %q, want 42", outcome.Answer)
	}
}

func TestEngineRunExhaustsIterations(t *testing.T) {
	llm := &scriptedLLM{replies: []string{"no actionable block here"}}
	p := emptyPool(t)
	e := New(llm, "test-model", p, router.New(p), noopInterpreter{})
	e.MaxIterations = 2

	outcome, err := e.Run(context.Background(), "loop forever")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.Success {
		t.Fatal("expected failure after exhausting iterations")
	}
}

func TestEngineRunWithPlanningEnabledCallsLLMForPlan(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		"1. sub-questions... 2. entities... plan text",
		"<final_answer>planned</final_answer>",
	}}
	p := emptyPool(t)
	e := New(llm, "test-model", p, router.New(p), noopInterpreter{})
	e.PlanningEnabled = true

	outcome, err := e.Run(context.Background(), "what is the plan?")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !outcome.Success || outcome.Answer != "planned" {
		t.Fatalf("outcome = %+v", outcome)
	}
	if llm.calls != 2 {
		t.Fatalf("llm.calls = %d, want 2 (one for planning, one for execute)", llm.calls)
	}
}

func TestEngineRunExecutesPythonBlock(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		"no actionable block here",
		"<python>print(1)</python>",
		"<final_answer>done</final_answer>",
	}}
	p := emptyPool(t)
	e := New(llm, "test-model", p, router.New(p), noopInterpreter{})

	outcome, err := e.Run(context.Background(), "compute something")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !outcome.Success || outcome.Answer != "done" {
		t.Fatalf("outcome = %+v", outcome)
	}
}
