// Package spill implements C6: detecting oversized string fields inside a
// tool result, writing the full value to a temp file, and leaving a short
// preview plus a file reference in its place.
package spill

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// DefaultThreshold is the per-string character count above which a value
// is spilled.
const DefaultThreshold = 15000

// PreviewLen is how much of the original string survives inline.
const PreviewLen = 200

// Spiller holds the threshold and temp directory used by Spill. The zero
// value uses DefaultThreshold and os.TempDir().
type Spiller struct {
	Threshold int
	Dir       string
}

// Default is the package-level spiller most callers use.
var Default = &Spiller{Threshold: DefaultThreshold}

// Apply walks v recursively. If any string leaf exceeds the threshold, the
// entire original value is written to a new temp file as pretty JSON, and
// every overlength string in the tree is replaced by a preview + file
// reference. If nothing exceeds the threshold, v is returned unchanged.
// Errors are logged by the caller; on write failure the original value is
// returned unchanged (best-effort).
func (s *Spiller) Apply(v any) (any, error) {
	threshold := s.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	if !exceeds(v, threshold) {
		return v, nil
	}

	path, err := s.writeTempFile(v)
	if err != nil {
		return v, fmt.Errorf("spill: write temp file: %w", err)
	}

	return rewrite(v, threshold, path), nil
}

// ApplyToEnvelope handles the MCP content-envelope shape
// {content:[{text:"<json>"}...], ...}: the inner text is parsed as JSON,
// spilled if needed, and re-serialized back into the envelope. Any other
// shape is spilled directly.
func (s *Spiller) ApplyToEnvelope(raw json.RawMessage) (json.RawMessage, error) {
	var envelope struct {
		Content []struct {
			Type string          `json:"type"`
			Text json.RawMessage `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Content == nil {
		// Not an envelope shape; spill the generic value.
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return raw, nil
		}
		out, err := s.Apply(v)
		if err != nil {
			return raw, err
		}
		return json.Marshal(out)
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return raw, nil
	}

	content, _ := generic["content"].([]any)
	for i, item := range content {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		text, ok := m["text"].(string)
		if !ok {
			continue
		}
		var inner any
		if err := json.Unmarshal([]byte(text), &inner); err != nil {
			continue
		}
		spilled, err := s.Apply(inner)
		if err != nil {
			return raw, err
		}
		encoded, err := json.Marshal(spilled)
		if err != nil {
			continue
		}
		m["text"] = string(encoded)
		content[i] = m
	}
	generic["content"] = content

	return json.Marshal(generic)
}

func (s *Spiller) writeTempFile(v any) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = os.TempDir()
	}

	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("dodo-mcp-spill-%s.json", uuid.New().String())
	path := dir + string(os.PathSeparator) + name
	if err := os.WriteFile(path, pretty, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// isSpilled reports whether s is already a preview written by rewrite, so a
// second pass leaves it alone.
func isSpilled(s string) bool {
	return strings.Contains(s, "…\n\n<content_written_to_file:") && strings.HasSuffix(s, ">")
}

func exceeds(v any, threshold int) bool {
	switch t := v.(type) {
	case string:
		return len(t) > threshold && !isSpilled(t)
	case map[string]any:
		for _, vv := range t {
			if exceeds(vv, threshold) {
				return true
			}
		}
	case []any:
		for _, vv := range t {
			if exceeds(vv, threshold) {
				return true
			}
		}
	}
	return false
}

func rewrite(v any, threshold int, path string) any {
	switch t := v.(type) {
	case string:
		if len(t) <= threshold || isSpilled(t) {
			return t
		}
		preview := t
		if len(preview) > PreviewLen {
			preview = preview[:PreviewLen]
		}
		return fmt.Sprintf("%s…\n\n<content_written_to_file:%s>", preview, path)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = rewrite(vv, threshold, path)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = rewrite(vv, threshold, path)
		}
		return out
	default:
		return v
	}
}
