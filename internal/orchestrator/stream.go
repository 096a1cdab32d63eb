package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ChamsBouzaiene/dodo/internal/engine"
)

// RunStream drives the same loop as Continue but yields engine.StreamEvent
// as they arrive, across every tool-call round, so a caller sees continuous
// text rather than one blob per round. The returned channel is closed when
// the interaction terminates; the final history is sent on done exactly
// once before the channel closes.
func (o *Orchestrator) RunStream(ctx context.Context, history []engine.ChatMessage, opts engine.ChatOptions) (<-chan engine.StreamEvent, <-chan []engine.ChatMessage) {
	events := make(chan engine.StreamEvent)
	done := make(chan []engine.ChatMessage, 1)

	opts.Stream = true
	schemas := toolSchemas(o.Pool.Catalogue(), o.ExtraTools...)

	go func() {
		defer close(events)
		defer close(done)
		defer func() { _ = o.Log.Log(history, schemas) }()

		for {
			select {
			case <-ctx.Done():
				done <- history
				return
			default:
			}

			deltas, errs := o.LLM.Stream(ctx, o.Model, history, schemas, opts)

			var assistant engine.ChatMessage
			assistant.Role = engine.RoleAssistant
			var toolCalls []engine.ToolCall
			streamErr := error(nil)

			remaining := deltas
			remainingErrs := errs
			for remaining != nil {
				select {
				case ev, ok := <-remaining:
					if !ok {
						remaining = nil
						continue
					}
					switch ev.Type {
					case "text_delta":
						assistant.Content += ev.Text
					case "tool_call":
						toolCalls = append(toolCalls, ev.ToolCall)
					}
					events <- ev
				case e, ok := <-remainingErrs:
					if !ok {
						remainingErrs = nil
						continue
					}
					if e != nil {
						streamErr = e
					}
				}
			}
			// Providers send their error before closing the event channel,
			// so one may still be buffered once the events are drained.
			if remainingErrs != nil {
				select {
				case e, ok := <-remainingErrs:
					if ok && e != nil {
						streamErr = e
					}
				default:
				}
			}

			if streamErr != nil {
				history = append(history, engine.ChatMessage{
					Role:    engine.RoleAssistant,
					Content: fmt.Sprintf("<Provider> error: %v", streamErr),
				})
				done <- history
				return
			}

			assistant.ToolCalls = toolCalls
			history = append(history, assistant)

			if len(toolCalls) == 0 {
				done <- history
				return
			}

			for _, call := range toolCalls {
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
				events <- engine.StreamEvent{Type: "tool_result", ToolCallID: toolCallID, Content: result}

				if o.Tracer != nil {
					o.Tracer(call, result)
				}
			}
		}
	}()

	return events, done
}
