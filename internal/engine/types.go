package engine

import (
	"context"
	"fmt"
)

// MessageRole represents the role of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleDeveloper MessageRole = "developer"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
	RoleFunction  MessageRole = "function"
)

// ChatMessage is the provider-agnostic message we pass around.
type ChatMessage struct {
	Role    MessageRole // Role of the message sender
	Content string      // Message content
	Name    string      // Optional: tool name for tool messages
	// ToolCalls stores the actual tool calls made by this assistant message
	// This is needed when converting back to provider format (providers require tool_calls in assistant messages)
	ToolCalls []ToolCall // Tool calls made in this assistant message (if any)
}

// Validate checks if the ChatMessage is valid.
func (m ChatMessage) Validate() error {
	switch m.Role {
	case RoleSystem, RoleDeveloper, RoleUser, RoleAssistant, RoleTool, RoleFunction:
		// Valid roles
	default:
		return fmt.Errorf("invalid message role: %s", m.Role)
	}
	if m.Role == RoleTool && m.Name == "" {
		return fmt.Errorf("tool messages must have a Name field")
	}
	return nil
}

// Usage holds token accounting returned by providers.
type Usage struct {
	Prompt     int
	Completion int
	Total      int
}

// ToolCall represents a function/tool the assistant requested.
type ToolCall struct {
	ID    string // Provider-specific tool call ID (e.g., OpenAI's call_xxx)
	Name  string
	Args  map[string]any
	Error string // Set by provider if tool call is incomplete/invalid (e.g., stream ended prematurely)
}

// LLMResponse is a normalized result of one chat call.
type LLMResponse struct {
	Assistant    ChatMessage
	ToolCalls    []ToolCall // zero or more tool calls requested by the model
	Usage        Usage
	FinishReason string // "stop" | "length" | "tool_calls" | "content_filter" | "tool_error"
	Reasoning    string // chain-of-thought text surfaced by reasoning SKUs, empty otherwise
}

// LLMClient abstracts your chosen SDK (OpenAI, Anthropic, etc.)
type LLMClient interface {
	Chat(ctx context.Context, model string, messages []ChatMessage, toolSchemas []ToolSchema, opts ChatOptions) (LLMResponse, error)
	// Optional streaming variant:
	Stream(ctx context.Context, model string, messages []ChatMessage, toolSchemas []ToolSchema, opts ChatOptions) (<-chan StreamEvent, <-chan error)
}

// ChatOptions keeps knobs you'll forward to the SDK.
type ChatOptions struct {
	Temperature     float32
	MaxOutputTokens int
	RetryConfig     *RetryConfig // Optional retry configuration (nil = use defaults)
	Stream          bool         // Enable streaming mode (default: false, opt-in)

	// IsReasoning marks a reasoning SKU (o1*, o3*, o4*, or an explicit flag).
	// When set, Temperature is withheld from the request, and so is
	// MaxOutputTokens except on Anthropic, whose Messages API requires
	// max_tokens; the OpenAI-family adapters forward ReasoningEffort instead.
	IsReasoning     bool
	ReasoningEffort string
}

// ToolSchema is the JSON schema (or similar) the provider expects for function calling.
type ToolSchema struct {
	Name        string
	Description string
	JSONSchema  string // keep as raw JSON string for simplicity
	Retryable   bool   // Whether this tool can be retried (default: true for idempotent tools)
}

// StreamEvent represents a streaming event from the LLM.
type StreamEvent struct {
	Type       string   // "text_delta" | "tool_call" | "tool_result" | "usage"
	Text       string   // for text_delta
	ToolCall   ToolCall // for tool_call
	ToolCallID string   // for tool_result (ID of the tool call this result belongs to)
	Content    string   // for tool_result (error message or result)
	Usage      Usage    // for usage
}

