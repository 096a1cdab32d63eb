package orchestrator

import (
	"github.com/ChamsBouzaiene/dodo/internal/engine"
	"github.com/ChamsBouzaiene/dodo/internal/mcp"
)

// toolSchemas flattens a pool's namespaced catalogue into the provider-
// agnostic ToolSchema shape, keyed by the "<server>_<tool>" full name.
func toolSchemas(catalogue []mcp.NamespacedTool, extra ...mcp.NamespacedTool) []engine.ToolSchema {
	all := append(append([]mcp.NamespacedTool(nil), catalogue...), extra...)
	out := make([]engine.ToolSchema, 0, len(all))
	for _, nt := range all {
		schema := nt.Tool.InputSchema
		if len(schema) == 0 {
			schema = []byte(`{"type":"object","properties":{}}`)
		}
		out = append(out, engine.ToolSchema{
			Name:        nt.FullName(),
			Description: nt.Tool.Description,
			JSONSchema:  string(schema),
			Retryable:   true,
		})
	}
	return out
}
