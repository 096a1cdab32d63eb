package providers

import "strings"

// reasoningPrefixes are the model-name patterns that mark a reasoning SKU
// when a config doesn't set is_reasoning explicitly.
var reasoningPrefixes = []string{"o1", "o3", "o4"}

// IsReasoningModel reports whether modelName matches a known reasoning-SKU
// naming pattern (o1*, o3*, o4*). Config records can also force this via
// an explicit is_reasoning flag, handled by the caller.
func IsReasoningModel(modelName string) bool {
	lower := strings.ToLower(modelName)
	for _, prefix := range reasoningPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
