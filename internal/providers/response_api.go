package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ChamsBouzaiene/dodo/internal/engine"
)

// ResponseAPIClient implements engine.LLMClient against OpenAI's Response
// API shape, used for reasoning SKUs: the conversation is flattened into a
// single "input" string, tools are passed flat (name at top level, not
// nested under "function"), and reasoning text surfaces from a separate
// "reasoning" field.
type ResponseAPIClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
}

// NewResponseAPIClient builds a client against baseURL+"/responses". An
// empty baseURL defaults to OpenAI's public API.
func NewResponseAPIClient(apiKey, modelName, baseURL string) *ResponseAPIClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &ResponseAPIClient{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      modelName,
	}
}

type responseAPITool struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type responseAPIRequest struct {
	Model           string             `json:"model"`
	Input           string             `json:"input"`
	Tools           []responseAPITool  `json:"tools,omitempty"`
	ReasoningEffort string             `json:"reasoning_effort,omitempty"`
	Stream          bool               `json:"stream,omitempty"`
}

type responseAPIToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type responseAPIResponse struct {
	OutputText string                `json:"output_text"`
	Reasoning  string                `json:"reasoning,omitempty"`
	ToolCalls  []responseAPIToolCall `json:"tool_calls,omitempty"`
}

// flattenConversation renders messages as "role: content\n\n..." per the
// Response API's flattened input contract.
func flattenConversation(messages []engine.ChatMessage) string {
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s: %s", msg.Role, msg.Content)
	}
	return b.String()
}

func (c *ResponseAPIClient) Chat(ctx context.Context, modelName string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (engine.LLMResponse, error) {
	tools := make([]responseAPITool, 0, len(toolSchemas))
	for _, ts := range toolSchemas {
		var schemaObj map[string]any
		if err := json.Unmarshal([]byte(ts.JSONSchema), &schemaObj); err != nil {
			return engine.LLMResponse{}, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
		}
		tools = append(tools, responseAPITool{
			Type:        "function",
			Name:        ts.Name,
			Description: ts.Description,
			Parameters:  schemaObj,
		})
	}

	req := responseAPIRequest{
		Model: modelName,
		Input: flattenConversation(messages),
		Tools: tools,
	}
	// Reasoning SKU: max_tokens/temperature/top_p are never part of this
	// request shape; only reasoning_effort is forwarded.
	if opts.ReasoningEffort != "" {
		req.ReasoningEffort = opts.ReasoningEffort
	}

	body, err := json.Marshal(req)
	if err != nil {
		return engine.LLMResponse{}, fmt.Errorf("marshal response-api request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return engine.LLMResponse{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return engine.LLMResponse{}, engine.WrapLLMError(err, 0, "")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return engine.LLMResponse{}, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		retryAfter := resp.Header.Get("Retry-After")
		return engine.LLMResponse{}, engine.WrapLLMError(fmt.Errorf("response api HTTP %d: %s", resp.StatusCode, string(respBody)), resp.StatusCode, retryAfter)
	}

	var parsed responseAPIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return engine.LLMResponse{}, fmt.Errorf("decode response-api body: %w", err)
	}

	var toolCalls []engine.ToolCall
	for _, tc := range parsed.ToolCalls {
		args := map[string]any{}
		if tc.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
				args = map[string]any{}
			}
		}
		toolCalls = append(toolCalls, engine.ToolCall{ID: tc.ID, Name: tc.Name, Args: args})
	}

	return engine.LLMResponse{
		Assistant: engine.ChatMessage{
			Role:      engine.RoleAssistant,
			Content:   parsed.OutputText,
			ToolCalls: toolCalls,
		},
		ToolCalls:    toolCalls,
		Reasoning:    parsed.Reasoning,
		FinishReason: finishReasonFor(toolCalls),
	}, nil
}

func finishReasonFor(toolCalls []engine.ToolCall) string {
	if len(toolCalls) > 0 {
		return "tool_calls"
	}
	return "stop"
}

// Stream is not implemented for the Response API adapter: it returns a
// closed event channel and a "streaming not supported" error, so a
// streamed interaction on this adapter ends with that provider error.
func (c *ResponseAPIClient) Stream(ctx context.Context, modelName string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	events := make(chan engine.StreamEvent)
	errs := make(chan error, 1)
	close(events)
	errs <- fmt.Errorf("response api: streaming not supported, use Chat")
	close(errs)
	return events, errs
}
