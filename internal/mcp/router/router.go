// Package router implements C5: parsing a namespaced tool-call name,
// validating arguments against the cached schema, dispatching through the
// pool, and applying the spill rule to the result before it goes back to
// the conversation as a tool message.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ChamsBouzaiene/dodo/internal/engine"
	"github.com/ChamsBouzaiene/dodo/internal/mcp"
	"github.com/ChamsBouzaiene/dodo/internal/mcp/pool"
	"github.com/ChamsBouzaiene/dodo/internal/mcp/spill"
)

// Router dispatches namespaced tool calls against a pool.
type Router struct {
	Pool       *pool.Pool
	Spiller    *spill.Spiller
	ToolPolicy engine.RetryPolicy
	OnRetry    func(server, tool string, attempt int, delay time.Duration, err error)

	// Builtins lets non-MCP tools (e.g. tracelog's search tool) answer
	// calls under their own server namespace, bypassing the pool
	// entirely. Keyed by server name.
	Builtins map[string]func(ctx context.Context, tool string, rawArgs json.RawMessage) string
}

// RegisterBuiltin wires a non-MCP tool handler under the given server
// namespace.
func (r *Router) RegisterBuiltin(server string, handler func(ctx context.Context, tool string, rawArgs json.RawMessage) string) {
	if r.Builtins == nil {
		r.Builtins = make(map[string]func(ctx context.Context, tool string, rawArgs json.RawMessage) string)
	}
	r.Builtins[server] = handler
}

// New builds a router over p, using the default spiller and tool retry
// policy. The loop retries tool calls, not model calls: a network/timeout
// failure reaching the server is retried here; protocol-level rejections
// (missing param, unknown server) are not errors at all, so they never
// reach the retry path.
func New(p *pool.Pool) *Router {
	return &Router{
		Pool:       p,
		Spiller:    spill.Default,
		ToolPolicy: engine.DefaultRetryConfig().ToolPolicy,
	}
}

// errorResult builds the {"error": "..."} JSON the router returns inline
// instead of calling the server, or instead of surfacing a Go error.
func errorResult(msg string) string {
	encoded, _ := json.Marshal(map[string]string{"error": msg})
	return string(encoded)
}

// Dispatch resolves name, validates args, calls the owning server, and
// returns the tool-message content string. Every failure, including a
// cancelled ctx, becomes inline {"error":...} content so the model can
// recover; there is no separate error return.
func (r *Router) Dispatch(ctx context.Context, name string, rawArgs json.RawMessage) string {
	server, tool, ok := mcp.SplitNamespacedName(name)
	if !ok {
		return errorResult("Invalid function name format")
	}

	if handler, ok := r.Builtins[server]; ok {
		return handler(ctx, tool, rawArgs)
	}

	c, ok := r.Pool.Client(server)
	if !ok {
		return errorResult(fmt.Sprintf("Unknown server: %s", server))
	}

	args := parseArgs(rawArgs)

	descriptor, ok := c.Tool(tool)
	if ok {
		if missing := firstMissingRequired(descriptor, args); missing != "" {
			return errorResult(fmt.Sprintf("Missing required parameter: %s", missing))
		}
		if schemaErrs := validateSchema(descriptor, args); len(schemaErrs) > 0 {
			return errorResult(schemaErrs[0])
		}
	}

	if limiter := r.Pool.Limiter(server); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return errorResult(fmt.Sprintf("Timeout waiting for rate limit: %v", err))
		}
	}

	argsJSON, _ := json.Marshal(args)

	onRetry := func(attempt int, delay time.Duration, retryErr error) {
		if r.OnRetry != nil {
			r.OnRetry(server, tool, attempt, delay, retryErr)
		}
	}

	raw, err := engine.RetryToolCall(
		ctx,
		r.ToolPolicy,
		true, // tool calls are assumed idempotent/safe to retry; the catalogue carries no per-tool override today
		func(ctx context.Context) (string, error) {
			result, err := c.CallTool(ctx, tool, argsJSON)
			if err != nil {
				return "", err
			}
			return r.spillEncode(result), nil
		},
		onRetry,
	)
	if err != nil {
		return errorResult(err.Error())
	}
	return raw
}

// parseArgs parses the tool-call arguments as a JSON object; on failure it
// substitutes an empty object per the protocol's recovery rule.
func parseArgs(raw json.RawMessage) map[string]any {
	var args map[string]any
	if len(raw) == 0 {
		return map[string]any{}
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{}
	}
	if args == nil {
		return map[string]any{}
	}
	return args
}

func firstMissingRequired(t mcp.ToolDescriptor, args map[string]any) string {
	for _, p := range t.RequiredParams() {
		if _, ok := args[p]; !ok {
			return p
		}
	}
	return ""
}

// validateSchema runs the cached JSON schema against args when the schema
// is a well-formed JSON Schema document. Malformed/absent schemas are
// treated as "no further validation" rather than a hard error, since the
// required-params check above already covers the common case.
func validateSchema(t mcp.ToolDescriptor, args map[string]any) []string {
	if len(t.InputSchema) == 0 {
		return nil
	}
	schemaLoader := gojsonschema.NewBytesLoader(t.InputSchema)
	docLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil || result == nil {
		return nil
	}
	if result.Valid() {
		return nil
	}
	var msgs []string
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return msgs
}

func (r *Router) spillEncode(result mcp.CallToolResult) string {
	raw, err := json.Marshal(result)
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err))
	}
	spilled, err := r.Spiller.ApplyToEnvelope(raw)
	if err != nil {
		// Best-effort: return the unspilled encoding rather than fail.
		log.Printf("spill: %v", err)
		return string(raw)
	}
	return string(spilled)
}
