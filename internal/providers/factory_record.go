package providers

import (
	"fmt"
	"os"
	"strings"

	"github.com/ChamsBouzaiene/dodo/internal/config"
	"github.com/ChamsBouzaiene/dodo/internal/engine"
)

// apiKeyEnvVar maps a model record's provider field to the environment
// variable its API key is read from: "<PROVIDER>_API_KEY", upper-cased.
func apiKeyEnvVar(provider string) string {
	return strings.ToUpper(provider) + "_API_KEY"
}

// NewLLMClientFromRecord builds an engine.LLMClient for rec, the model
// record chosen by config.SelectModel. Reading the provider from the
// record itself (rather than a single process-wide $LLM_PROVIDER) lets
// --model switch providers per invocation; the API key still comes from
// the environment, never from the roster file.
func NewLLMClientFromRecord(rec config.ModelRecord) (engine.LLMClient, error) {
	provider := strings.ToLower(rec.Provider)
	if provider == "" {
		provider = "openai"
	}

	switch provider {
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		return NewAnthropicClient(apiKey, rec.Model)

	case "response_api", "openai-responses":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
		return NewResponseAPIClient(apiKey, rec.Model, rec.BaseURL), nil

	default:
		envVar := apiKeyEnvVar(provider)
		apiKey := os.Getenv(envVar)
		if apiKey == "" && provider == "openai" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("%s not set for provider %q", envVar, provider)
		}
		return NewOpenAIClient(apiKey, rec.Model, rec.BaseURL)
	}
}

// ChatOptionsFromRecord derives the ChatOptions reasoning-SKU fields from
// rec: is_reasoning is honored explicitly when set, otherwise inferred
// from the model name pattern.
func ChatOptionsFromRecord(rec config.ModelRecord) engine.ChatOptions {
	isReasoning := rec.IsReasoning || IsReasoningModel(rec.Model)
	return engine.ChatOptions{
		IsReasoning:     isReasoning,
		ReasoningEffort: rec.ReasoningEffort,
	}
}
