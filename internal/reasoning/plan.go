package reasoning

import (
	"context"

	"github.com/ChamsBouzaiene/dodo/internal/engine"
)

// noPlanMessage is returned verbatim when planning is disabled.
const noPlanMessage = "No specific plan - proceeding with direct execution."

const planningSystemPrompt = `You are the planning stage of a multi-step reasoning agent.
Given the user's query and the available tools, respond with:
1. The sub-questions the query breaks down into.
2. The entities involved.
3. Which of the listed tools (by name only) look relevant.
4. Any constraints on the answer.
5. A short outline of your solution approach.
Respond in free-form prose; this is a planning note for your own later use, not the final answer.`

// Plan runs the planning phase: break the query into sub-questions, extract
// entities, name relevant tools, state constraints, outline an approach.
// Returns the model's free-form plan text, or noPlanMessage if planning is
// disabled.
func Plan(ctx context.Context, llm engine.LLMClient, model string, query string, toolNames []string, enabled bool) (string, error) {
	if !enabled {
		return noPlanMessage, nil
	}

	var toolList string
	for _, name := range toolNames {
		toolList += "- " + name + "\n"
	}

	messages := []engine.ChatMessage{
		{Role: engine.RoleSystem, Content: planningSystemPrompt},
		{Role: engine.RoleUser, Content: "Query: " + query + "\n\nAvailable tools:\n" + toolList},
	}

	resp, err := llm.Chat(ctx, model, messages, nil, engine.ChatOptions{})
	if err != nil {
		return "", err
	}
	return resp.Assistant.Content, nil
}
