// Package orchestrator implements C8: the orchestration loop that drives
// one interaction end to end — assembling the conversation, calling the
// model, dispatching tool calls to the mcp router in the order the model
// requested them, and feeding results back until the model produces a
// terminal answer.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ChamsBouzaiene/dodo/internal/engine"
	"github.com/ChamsBouzaiene/dodo/internal/mcp"
	"github.com/ChamsBouzaiene/dodo/internal/mcp/pool"
	"github.com/ChamsBouzaiene/dodo/internal/mcp/router"
)

// ToolTrace is called once per dispatched tool call, after the result is
// known. Callers use it to print the "--quiet"-suppressible tool-call
// trace; a nil Tracer is a no-op.
type ToolTrace func(call engine.ToolCall, result string)

// Orchestrator owns one model + pool pairing and drives interactions
// against it. It holds no conversation state itself — Run takes the
// starting messages and returns the full, extended history.
type Orchestrator struct {
	LLM    engine.LLMClient
	Model  string
	Pool   *pool.Pool
	Router *router.Router
	Log    *InteractionLogger
	Tracer ToolTrace

	// ExtraTools are advertised to the model alongside the pool's MCP
	// catalogue, for tools the Router answers via a builtin handler
	// (e.g. tracelog's search tool) rather than by dispatching to a
	// server.
	ExtraTools []mcp.NamespacedTool
}

// New builds an Orchestrator over an already-started pool.
func New(llm engine.LLMClient, model string, p *pool.Pool) *Orchestrator {
	return &Orchestrator{
		LLM:    llm,
		Model:  model,
		Pool:   p,
		Router: router.New(p),
	}
}

// Run assembles [system, user, ...] and drives the loop until the model
// emits no tool calls, or a provider error terminates it. It never
// returns a Go error for model or tool failures — those are encoded as
// messages in the returned history, per the loop's error-propagation
// contract; a non-nil error here means the context was cancelled before
// a model call, and the history so far is returned alongside it.
func (o *Orchestrator) Run(ctx context.Context, systemMessage, userQuery string, opts engine.ChatOptions) ([]engine.ChatMessage, error) {
	history := []engine.ChatMessage{
		{Role: engine.RoleSystem, Content: systemMessage},
		{Role: engine.RoleUser, Content: userQuery},
	}
	return o.Continue(ctx, history, opts)
}

// Continue drives the loop starting from an existing history (the chat
// entry point appends a new user message and calls this directly, so a
// multi-turn conversation keeps its prior tool-call/result pairs intact).
func (o *Orchestrator) Continue(ctx context.Context, history []engine.ChatMessage, opts engine.ChatOptions) ([]engine.ChatMessage, error) {
	schemas := toolSchemas(o.Pool.Catalogue(), o.ExtraTools...)

	// One JSONL record per interaction, written with the final history on
	// every way out of the loop. Logging failures never derail the
	// interaction.
	defer func() { _ = o.Log.Log(history, schemas) }()

	for {
		select {
		case <-ctx.Done():
			return history, fmt.Errorf("interaction cancelled: %w", ctx.Err())
		default:
		}

		resp, err := o.LLM.Chat(ctx, o.Model, history, schemas, opts)
		if err != nil {
			history = append(history, engine.ChatMessage{
				Role:    engine.RoleAssistant,
				Content: fmt.Sprintf("<Provider> error: %v", err),
			})
			return history, nil
		}

		assistant := resp.Assistant
		assistant.ToolCalls = resp.ToolCalls
		history = append(history, assistant)

		if len(resp.ToolCalls) == 0 {
			return history, nil
		}

		// Sequential, in order: the model relies on tool-message order
		// matching the order it emitted the calls in.
		for _, call := range resp.ToolCalls {
			argsJSON, err := json.Marshal(call.Args)
			if err != nil {
				argsJSON = []byte("{}")
			}
			result := o.Router.Dispatch(ctx, call.Name, argsJSON)

			toolCallID := call.ID
			if toolCallID == "" {
				toolCallID = call.Name
			}
			history = append(history, engine.ChatMessage{
				Role:    engine.RoleTool,
				Name:    toolCallID,
				Content: result,
			})

			if o.Tracer != nil {
				o.Tracer(call, result)
			}
		}
	}
}
