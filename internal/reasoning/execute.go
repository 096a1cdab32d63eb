// Package reasoning implements C9: the Explore/Plan/Execute/Conclude
// reasoning engine. A planning pass sketches an approach, then an
// iterative execute loop lets the model emit Python-like code, tool
// invocations, or a final answer until one of those terminates the loop
// or the iteration cap is reached.
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ChamsBouzaiene/dodo/internal/engine"
	"github.com/ChamsBouzaiene/dodo/internal/mcp"
	"github.com/ChamsBouzaiene/dodo/internal/mcp/pool"
	"github.com/ChamsBouzaiene/dodo/internal/mcp/router"
)

const defaultMaxIterations = 10

const reasoningSystemPromptTemplate = `You are a reasoning agent working through a multi-step task using an
Explore, Plan, Execute, Conclude workflow.

Plan:
%s

At each step you may emit exactly one of:
- A final answer: <final_answer>...</final_answer> (or <ask>...</ask> to
  ask the user a clarifying question, or <monitor>...</monitor> to report
  an ongoing observation). Any of these ends the task.
- One or more tool calls: <tool_code>{"name": "server_tool"}</tool_code>.
- One or more Python code blocks: <python>...</python>.

Available tools:
%s`

// Outcome is the terminal result of an Execute run.
type Outcome struct {
	Success bool
	Answer  string
}

// Tracer receives the assistant's raw text each iteration, for callers
// that want to surface reasoning progress as it happens.
type Tracer func(text string)

// Engine drives one reasoning interaction end to end.
type Engine struct {
	LLM             engine.LLMClient
	Model           string
	Pool            *pool.Pool
	Router          *router.Router
	Interpreter     Interpreter
	MaxIterations   int
	PlanningEnabled bool
	Trace           Tracer

	// ExtraTools are listed to the model alongside the pool's MCP
	// catalogue and resolved through the same Router, for builtin
	// tools such as tracelog's search tool.
	ExtraTools []mcp.NamespacedTool
}

// New builds an Engine with the default iteration cap.
func New(llm engine.LLMClient, model string, p *pool.Pool, r *router.Router, interp Interpreter) *Engine {
	return &Engine{
		LLM:           llm,
		Model:         model,
		Pool:          p,
		Router:        r,
		Interpreter:   interp,
		MaxIterations: defaultMaxIterations,
	}
}

// Run executes the plan phase followed by the execute loop for query.
func (e *Engine) Run(ctx context.Context, query string) (Outcome, error) {
	catalogue := append(append([]mcp.NamespacedTool(nil), e.Pool.Catalogue()...), e.ExtraTools...)
	toolNames := make([]string, 0, len(catalogue))
	var toolList strings.Builder
	for _, nt := range catalogue {
		toolNames = append(toolNames, nt.FullName())
		fmt.Fprintf(&toolList, "- %s: %s\n", nt.FullName(), nt.Tool.Description)
	}

	plan, err := Plan(ctx, e.LLM, e.Model, query, toolNames, e.PlanningEnabled)
	if err != nil {
		return Outcome{}, fmt.Errorf("plan phase: %w", err)
	}

	systemPrompt := fmt.Sprintf(reasoningSystemPromptTemplate, plan, toolList.String())
	conversation := []engine.ChatMessage{
		{Role: engine.RoleSystem, Content: systemPrompt},
		{Role: engine.RoleUser, Content: query},
	}

	maxIterations := e.MaxIterations
	if maxIterations < 0 {
		maxIterations = defaultMaxIterations
	}

	for i := 0; i < maxIterations; i++ {
		select {
		case <-ctx.Done():
			return Outcome{}, fmt.Errorf("reasoning cancelled: %w", ctx.Err())
		default:
		}

		resp, err := e.LLM.Chat(ctx, e.Model, conversation, nil, engine.ChatOptions{})
		if err != nil {
			return Outcome{}, fmt.Errorf("execute phase: %w", err)
		}

		text := resp.Assistant.Content
		if e.Trace != nil {
			if resp.Reasoning != "" {
				e.Trace(resp.Reasoning)
			}
			e.Trace(text)
		}
		conversation = append(conversation, engine.ChatMessage{Role: engine.RoleAssistant, Content: text})

		if answer, ok := finalAnswer(text); ok {
			return Outcome{Success: true, Answer: answer}, nil
		}

		toolBlocks := toolCodeBlocks(text)
		pyBlocks := pythonBlocks(text)

		if len(toolBlocks) == 0 && len(pyBlocks) == 0 {
			conversation = append(conversation, engine.ChatMessage{
				Role:    engine.RoleUser,
				Content: "<no_code_output>No tool call, code block, or final answer was found in your last message. Respond with one of the allowed actions.</no_code_output>",
			})
			continue
		}

		for _, block := range toolBlocks {
			output := e.runToolCode(ctx, catalogue, conversation, block)
			conversation = append(conversation, engine.ChatMessage{
				Role:    engine.RoleUser,
				Content: fmt.Sprintf("<tool_output>%s</tool_output>", output),
			})
		}

		for _, code := range pyBlocks {
			output, err := e.Interpreter.Run(ctx, code)
			if err != nil {
				output = fmt.Sprintf("interpreter unavailable: %v", err)
			}
			conversation = append(conversation, engine.ChatMessage{
				Role:    engine.RoleUser,
				Content: fmt.Sprintf("<code_output>%s</code_output>", output),
			})
		}
	}

	return Outcome{
		Success: false,
		Answer:  fmt.Sprintf("Process stopped after reaching maximum iterations (%d).", maxIterations),
	}, nil
}

// runToolCode resolves a <tool_code> block's name, asks a secondary LLM
// call for its JSON arguments, validates required parameters, and
// dispatches through the router.
func (e *Engine) runToolCode(ctx context.Context, catalogue []mcp.NamespacedTool, conversation []engine.ChatMessage, block string) string {
	name, ok := toolCodeName(block)
	if !ok {
		return `{"error":"could not parse tool_code block"}`
	}

	var descriptor *mcp.ToolDescriptor
	for _, nt := range catalogue {
		if nt.FullName() == name {
			d := nt.Tool
			descriptor = &d
			break
		}
	}
	if descriptor == nil {
		return fmt.Sprintf(`{"error":"unknown tool: %s"}`, name)
	}

	args, err := e.generateArgs(ctx, *descriptor, conversation)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to generate arguments: %s"}`, err.Error())
	}

	if missing := firstMissingRequired(*descriptor, args); missing != "" {
		return fmt.Sprintf(`{"error":"Missing required parameter: %s"}`, missing)
	}

	argsJSON, _ := json.Marshal(args)
	return e.Router.Dispatch(ctx, name, argsJSON)
}

var toolCodeNamePattern = regexp.MustCompile(`"name"\s*:\s*"([^"]+)"`)

func toolCodeName(block string) (string, bool) {
	m := toolCodeNamePattern.FindStringSubmatch(block)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func firstMissingRequired(t mcp.ToolDescriptor, args map[string]any) string {
	for _, p := range t.RequiredParams() {
		if _, ok := args[p]; !ok {
			return p
		}
	}
	return ""
}

var jsonFence = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// generateArgs asks the model, in a secondary call, to produce JSON
// arguments for descriptor given the conversation so far. Tolerates a
// fenced code block around the JSON.
func (e *Engine) generateArgs(ctx context.Context, descriptor mcp.ToolDescriptor, conversation []engine.ChatMessage) (map[string]any, error) {
	prompt := fmt.Sprintf(
		"Produce ONLY a JSON object with the arguments for the tool %q, matching this schema:\n%s\n\nRespond with the JSON object and nothing else.",
		descriptor.Name, string(descriptor.InputSchema),
	)
	messages := append(append([]engine.ChatMessage(nil), conversation...), engine.ChatMessage{
		Role:    engine.RoleUser,
		Content: prompt,
	})

	resp, err := e.LLM.Chat(ctx, e.Model, messages, nil, engine.ChatOptions{})
	if err != nil {
		return nil, err
	}

	raw := strings.TrimSpace(resp.Assistant.Content)
	if m := jsonFence.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("model did not return valid JSON arguments: %w", err)
	}
	return args, nil
}
