// Package agent is C10's facade: it loads configuration, starts the MCP
// pool, selects a model and builds its provider client, and wires the
// orchestration loop (C8) and reasoning engine (C9) on top, so cmd/dodo-mcp
// stays a thin flag-parsing shell around this package.
package agent

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/dodo/internal/config"
	"github.com/ChamsBouzaiene/dodo/internal/engine"
	"github.com/ChamsBouzaiene/dodo/internal/mcp"
	"github.com/ChamsBouzaiene/dodo/internal/mcp/pool"
	"github.com/ChamsBouzaiene/dodo/internal/mcp/router"
	"github.com/ChamsBouzaiene/dodo/internal/orchestrator"
	"github.com/ChamsBouzaiene/dodo/internal/providers"
	"github.com/ChamsBouzaiene/dodo/internal/reasoning"
	"github.com/ChamsBouzaiene/dodo/internal/sandbox"
	"github.com/ChamsBouzaiene/dodo/internal/tracelog"
)

// Options configures Agent construction. Zero values are valid and fall
// back to sensible defaults: no MCP servers, single model from the legacy
// preferences file, tracing off.
type Options struct {
	ModelsConfigPath string // --config
	MCPConfigPath    string // --mcp-config
	LogMessagesPath  string // --log-messages
	TraceDBPath      string // additive SQLite/bleve trace mirror; empty disables it
	ModelQuery       string // --model
	Quiet            bool
	Debug            bool
	Reason           bool   // --reason: use the reasoning engine instead of the orchestration loop
	NoPlan           bool   // --no-plan: skip the planning pass, go straight to execute
	SandboxMode      string // "docker" | "host" | "auto" | "" (interpreter disabled)
}

// Agent owns one fully-wired interaction session: a model client, a
// started MCP pool, and whichever of the orchestration loop or reasoning
// engine the caller asked for.
type Agent struct {
	Pool         *pool.Pool
	Router       *router.Router
	Orchestrator *orchestrator.Orchestrator
	Reasoning    *reasoning.Engine
	Logger       *orchestrator.InteractionLogger

	modelMu    sync.Mutex
	model      config.ModelRecord
	modelQuery string

	trace      *tracelog.Store
	traceIndex *tracelog.Index
	sessionID  string
	interp     reasoning.Interpreter
	watcher    *config.Watcher
}

// Model returns the currently selected model record. It may change between
// calls if a roster file reload (via the config watcher) picked a different
// record for the same --model query.
func (a *Agent) Model() config.ModelRecord {
	a.modelMu.Lock()
	defer a.modelMu.Unlock()
	return a.model
}

func (a *Agent) setModel(rec config.ModelRecord) {
	a.modelMu.Lock()
	a.model = rec
	a.modelMu.Unlock()
}

// New loads the model roster and server config, starts the pool, and
// builds an Agent ready to drive interactions.
func New(ctx context.Context, opts Options) (*Agent, error) {
	record, err := selectModel(opts.ModelsConfigPath, opts.ModelQuery)
	if err != nil {
		return nil, fmt.Errorf("select model: %w", err)
	}

	serverConfigs, err := loadServerConfigs(opts.MCPConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load mcp config: %w", err)
	}

	p, err := pool.StartAll(ctx, serverConfigs)
	if err != nil {
		return nil, fmt.Errorf("start mcp pool: %w", err)
	}

	llm, err := providers.NewLLMClientFromRecord(record)
	if err != nil {
		p.StopAll(ctx)
		return nil, fmt.Errorf("build llm client: %w", err)
	}

	r := router.New(p)

	var logger *orchestrator.InteractionLogger
	if opts.LogMessagesPath != "" {
		logger, err = orchestrator.NewInteractionLogger(opts.LogMessagesPath)
		if err != nil {
			p.StopAll(ctx)
			return nil, fmt.Errorf("open log-messages file: %w", err)
		}
	}

	a := &Agent{
		model:      record,
		modelQuery: opts.ModelQuery,
		Pool:       p,
		Router:     r,
		Logger:     logger,
		sessionID:  newSessionID(),
	}

	if opts.ModelsConfigPath != "" {
		if w, err := config.NewWatcher(opts.ModelsConfigPath); err != nil {
			log.Printf("model config watcher disabled: %v", err)
		} else {
			w.OnChange(func(path string) { a.reloadModel(opts.ModelsConfigPath) })
			w.Start()
			a.watcher = w
		}
	}

	if opts.TraceDBPath != "" {
		if err := a.enableTracing(ctx, opts.TraceDBPath); err != nil {
			log.Printf("trace mirror disabled: %v", err)
		}
	}

	if opts.SandboxMode != "" {
		interp, err := newInterpreter(opts.SandboxMode)
		if err != nil {
			log.Printf("code interpreter disabled: %v", err)
		} else {
			a.interp = interp
		}
	}

	orch := orchestrator.New(llm, record.Model, p)
	orch.Router = r
	orch.Log = logger
	if a.traceIndex != nil {
		orch.ExtraTools = append(orch.ExtraTools, tracelog.Tool())
	}
	if !opts.Quiet {
		orch.Tracer = defaultTracer
	}
	a.Orchestrator = orch

	if opts.Reason {
		interp := a.interp
		if interp == nil {
			interp = reasoning.NoopInterpreter{}
		}
		eng := reasoning.New(llm, record.Model, p, r, interp)
		eng.PlanningEnabled = !opts.NoPlan
		if a.traceIndex != nil {
			eng.ExtraTools = append(eng.ExtraTools, tracelog.Tool())
		}
		if !opts.Quiet {
			eng.Trace = func(text string) { fmt.Fprintln(os.Stderr, text) }
		}
		a.Reasoning = eng
	}

	return a, nil
}

// Close stops the pool and releases any interpreter/log/trace resources.
func (a *Agent) Close(ctx context.Context) {
	a.Pool.StopAll(ctx)
	if a.Logger != nil {
		_ = a.Logger.Close()
	}
	if a.interp != nil {
		_ = a.interp.Close()
	}
	if a.traceIndex != nil {
		_ = a.traceIndex.Close()
	}
	if a.trace != nil {
		_ = a.trace.Close()
	}
	if a.watcher != nil {
		_ = a.watcher.Stop()
	}
}

// reloadModel re-reads the roster and re-applies the selection rule for the
// original --model query, so a live edit to the roster file (e.g. flipping
// which record is "default") takes effect on the next turn without
// restarting the process. The pool and provider client are not rebuilt:
// only the record driving ChatOptions (reasoning-SKU flags, effort) and the
// resolved system message for the *next* fresh Run changes.
func (a *Agent) reloadModel(path string) {
	records, err := config.LoadModels(path)
	if err != nil {
		log.Printf("model config reload: %v", err)
		return
	}
	rec, err := config.SelectModel(records, a.modelQuery)
	if err != nil {
		log.Printf("model config reload: %v", err)
		return
	}
	a.setModel(rec)
	log.Printf("model config reloaded: now using %q", rec.Title)
}

// Run drives one orchestration-loop interaction from a fresh [system,
// user] pair and mirrors the resulting history into the trace store.
func (a *Agent) Run(ctx context.Context, systemMessage, query string) ([]engine.ChatMessage, error) {
	opts := providers.ChatOptionsFromRecord(a.Model())
	history, err := a.Orchestrator.Run(ctx, systemMessage, query, opts)
	a.mirror(ctx, history)
	return history, err
}

// Continue drives the orchestration loop from an existing history, for
// multi-turn chat.
func (a *Agent) Continue(ctx context.Context, history []engine.ChatMessage) ([]engine.ChatMessage, error) {
	opts := providers.ChatOptionsFromRecord(a.Model())
	out, err := a.Orchestrator.Continue(ctx, history, opts)
	a.mirror(ctx, out)
	return out, err
}

// RunStream drives one orchestration-loop interaction like Run, but yields
// engine.StreamEvent as they arrive instead of returning only the final
// history. The returned history channel receives exactly one value, once
// the interaction (and every tool-call round within it) has finished; the
// final history is mirrored into the trace store at that point, same as Run.
func (a *Agent) RunStream(ctx context.Context, systemMessage, query string) (<-chan engine.StreamEvent, <-chan []engine.ChatMessage) {
	opts := providers.ChatOptionsFromRecord(a.Model())
	history := []engine.ChatMessage{
		{Role: engine.RoleSystem, Content: systemMessage},
		{Role: engine.RoleUser, Content: query},
	}
	events, rawDone := a.Orchestrator.RunStream(ctx, history, opts)

	done := make(chan []engine.ChatMessage, 1)
	go func() {
		final := <-rawDone
		a.mirror(ctx, final)
		done <- final
		close(done)
	}()

	return events, done
}

// Reason drives one reasoning-engine interaction.
func (a *Agent) Reason(ctx context.Context, query string) (reasoning.Outcome, error) {
	if a.Reasoning == nil {
		return reasoning.Outcome{}, fmt.Errorf("reasoning engine not enabled (missing --reason)")
	}
	outcome, err := a.Reasoning.Run(ctx, query)
	a.mirror(ctx, []engine.ChatMessage{
		{Role: engine.RoleUser, Content: query},
		{Role: engine.RoleAssistant, Content: outcome.Answer},
	})
	return outcome, err
}

// SearchTrace queries the bleve-backed trace index directly, for the
// `trace search` CLI subcommand (bypassing the tracelog_search tool,
// which only the model itself can invoke mid-interaction).
func (a *Agent) SearchTrace(query string, limit int) ([]tracelog.SearchResult, error) {
	if a.traceIndex == nil {
		return nil, fmt.Errorf("trace index not enabled (pass --trace-db)")
	}
	return a.traceIndex.Search(query, limit)
}

func (a *Agent) enableTracing(ctx context.Context, dbPath string) error {
	store, err := tracelog.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	idx, err := tracelog.OpenIndex(dbPath, store)
	if err != nil {
		_ = store.Close()
		return err
	}
	a.trace = store
	a.traceIndex = idx
	a.Router.RegisterBuiltin(tracelog.BuiltinServerName, idx.Dispatch)
	return nil
}

func (a *Agent) mirror(ctx context.Context, history []engine.ChatMessage) {
	if a.trace == nil || a.traceIndex == nil {
		return
	}
	id, err := a.trace.AppendTrace(ctx, a.sessionID, history, nil)
	if err != nil {
		log.Printf("trace mirror: append failed: %v", err)
		return
	}
	flattened := tracelog.FlattenMessages(history)
	if err := a.traceIndex.IndexTrace(id, a.sessionID, flattened); err != nil {
		log.Printf("trace mirror: index failed: %v", err)
	}
}

func defaultTracer(call engine.ToolCall, result string) {
	log.Printf("tool_call %s -> %s", call.Name, preview(result, 200))
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func newInterpreter(mode string) (reasoning.Interpreter, error) {
	cfg := sandbox.DefaultConfig()
	var runner sandbox.Runner
	var err error
	if sandbox.Mode(mode) == sandbox.ModeAuto {
		runner = sandbox.NewDefaultRunner()
	} else {
		runner, err = sandbox.NewRunner(sandbox.Mode(mode), cfg)
		if err != nil {
			return nil, err
		}
	}
	return reasoning.NewSandboxInterpreter(runner)
}

// loadServerConfigs loads the MCP server roster, or returns an empty
// catalogue when no path is given (S1: zero servers is a valid startup
// state, not an error).
func loadServerConfigs(path string) ([]*mcp.ServerConfig, error) {
	if path == "" {
		return nil, nil
	}
	return config.LoadServers(path)
}

// selectModel loads the model roster and applies config.SelectModel, or
// falls back to the legacy single-model preferences file
// (internal/config.Manager) when no roster path is given.
func selectModel(path, query string) (config.ModelRecord, error) {
	if path != "" {
		records, err := config.LoadModels(path)
		if err != nil {
			return config.ModelRecord{}, err
		}
		return config.SelectModel(records, query)
	}

	mgr, err := config.NewManager()
	if err != nil {
		return config.ModelRecord{}, fmt.Errorf("no --config given and no legacy preferences available: %w", err)
	}
	prefs, err := mgr.Load()
	if err != nil {
		return config.ModelRecord{}, err
	}
	if prefs.LLMProvider == "" && prefs.Model == "" {
		return config.ModelRecord{}, fmt.Errorf("no model configured: pass --config or run once with a configured provider")
	}
	return config.ModelRecord{
		Title:    prefs.Model,
		Model:    prefs.Model,
		Provider: prefs.LLMProvider,
		BaseURL:  prefs.BaseURL,
		Default:  true,
	}, nil
}

func newSessionID() string {
	return uuid.New().String()
}
