// Command dodo-mcp drives an MCP tool pool against a configured model,
// either one-shot, interactively, or through the reasoning engine.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/dodo/internal/agent"
	"github.com/ChamsBouzaiene/dodo/internal/engine"
)

var opts agent.Options

func main() {
	_ = godotenv.Load()

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dodo-mcp",
		Short:         "Tool-augmented LLM orchestrator over an MCP server pool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.ModelQuery, "model", "", "select a model by its model or title field")
	root.PersistentFlags().BoolVar(&opts.Quiet, "quiet", false, "suppress tool-call traces")
	root.PersistentFlags().StringVar(&opts.ModelsConfigPath, "config", "", "path to the provider/model config")
	root.PersistentFlags().StringVar(&opts.MCPConfigPath, "mcp-config", "", "path to the MCP server config")
	root.PersistentFlags().StringVar(&opts.LogMessagesPath, "log-messages", "", "append one JSONL line per interaction to this file")
	root.PersistentFlags().StringVar(&opts.TraceDBPath, "trace-db", "", "additive SQLite/bleve trace mirror path (disabled if empty)")
	root.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "accepted for CLI compatibility; does not change logging output")
	root.PersistentFlags().StringVar(&opts.SandboxMode, "sandbox", "", "code interpreter mode: docker, host, or auto (disabled if empty)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newToolsCmd())
	root.AddCommand(newTraceCmd())

	return root
}

func newRunCmd() *cobra.Command {
	var reason bool
	var noPlan bool
	var stream bool
	var systemMessage string

	cmd := &cobra.Command{
		Use:   "run '<user query>'",
		Short: "Run one interaction and print the final answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Reason = reason
			opts.NoPlan = noPlan
			ctx := cmd.Context()

			a, err := agent.New(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if systemMessage == "" {
				model := a.Model()
				systemMessage, err = model.ResolvedSystemMessage()
				if err != nil {
					return err
				}
			}

			if opts.Reason {
				outcome, err := a.Reason(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Println(outcome.Answer)
				return nil
			}

			if stream {
				return runStreamed(ctx, a, systemMessage, args[0])
			}

			history, err := a.Run(ctx, systemMessage, args[0])
			if err != nil {
				return err
			}
			fmt.Println(lastAssistantContent(history))
			return nil
		},
	}

	cmd.Flags().BoolVar(&reason, "reason", false, "use the reasoning engine (plan/execute) instead of the orchestration loop")
	cmd.Flags().BoolVar(&noPlan, "no-plan", false, "with --reason, skip the planning pass and go straight to execute")
	cmd.Flags().BoolVar(&stream, "stream", false, "print assistant text as it streams instead of waiting for the final answer")
	cmd.Flags().StringVar(&systemMessage, "system", "", "override the model's configured system message")
	return cmd
}

// runStreamed drives one interaction through the streaming orchestration
// loop, printing each text delta as it arrives and a tool-call marker for
// every dispatched tool, then a trailing newline once the channel closes.
func runStreamed(ctx context.Context, a *agent.Agent, systemMessage, query string) error {
	events, done := a.RunStream(ctx, systemMessage, query)
	for ev := range events {
		switch ev.Type {
		case "text_delta":
			fmt.Print(ev.Text)
		case "tool_call":
			fmt.Fprintf(os.Stderr, "\n[tool call: %s]\n", ev.ToolCall.Name)
		case "tool_result":
			fmt.Fprintf(os.Stderr, "[tool result: %s]\n", ev.ToolCallID)
		}
	}
	fmt.Println()
	<-done
	return nil
}

func newChatCmd() *cobra.Command {
	var systemMessage string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive read-eval loop, one line of input per turn",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := agent.New(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if systemMessage == "" {
				model := a.Model()
				systemMessage, err = model.ResolvedSystemMessage()
				if err != nil {
					return err
				}
			}

			return runChatLoop(ctx, a, systemMessage)
		},
	}

	cmd.Flags().StringVar(&systemMessage, "system", "", "override the model's configured system message")
	return cmd
}

func runChatLoop(ctx context.Context, a *agent.Agent, systemMessage string) error {
	scanner := bufio.NewScanner(os.Stdin)
	var history []engine.ChatMessage

	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			return nil
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		var err error
		if len(history) == 0 {
			history, err = a.Run(ctx, systemMessage, line)
		} else {
			history = append(history, engine.ChatMessage{Role: engine.RoleUser, Content: line})
			history, err = a.Continue(ctx, history)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(lastAssistantContent(history))
		fmt.Println()
	}
}

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tools", Short: "Inspect the MCP tool catalogue"}
	cmd.AddCommand(newToolsListCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every tool the configured MCP servers advertise",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := agent.New(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			for _, nt := range a.Pool.Catalogue() {
				fmt.Printf("%s\t%s\n", nt.FullName(), nt.Tool.Description)
			}
			return nil
		},
	}
}

func newTraceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "trace", Short: "Query the trace mirror"}
	cmd.AddCommand(newTraceSearchCmd())
	return cmd
}

func newTraceSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search '<query>'",
		Short: "Full-text search over mirrored interaction history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.TraceDBPath == "" {
				return fmt.Errorf("trace search requires --trace-db")
			}
			ctx := cmd.Context()

			a, err := agent.New(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			results, err := a.SearchTrace(args[0], limit)
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Printf("[%s] %s (score %.3f)\n  %s\n", r.DocType, r.ID, r.Score, r.Preview)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "max results")
	return cmd
}

// lastAssistantContent returns the most recent assistant message's text, or
// an empty string if the interaction ended without one (shouldn't happen
// once the loop has run at least once).
func lastAssistantContent(history []engine.ChatMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == engine.RoleAssistant {
			return history[i].Content
		}
	}
	return ""
}
