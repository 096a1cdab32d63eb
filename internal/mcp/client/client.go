// Package client implements C3, the per-server MCP client: handshake,
// request/response correlation, tool-list caching, tool invocation with
// timeout, and orderly shutdown.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChamsBouzaiene/dodo/internal/mcp"
	"github.com/ChamsBouzaiene/dodo/internal/mcp/sse"
	"github.com/ChamsBouzaiene/dodo/internal/mcp/stdio"
)

// State is the client's lifecycle state. Transitions only move forward;
// ShuttingDown only leads to Stopped, and Stopped is absorbing.
type State int

const (
	Unstarted State = iota
	Starting
	Ready
	ShuttingDown
	Stopped
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case ShuttingDown:
		return "shutting-down"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	initializeTimeout = 10 * time.Second
	listToolsTimeout  = 10 * time.Second
	callToolWarnAfter = 5 * time.Second
)

// Client manages one MCP server connection.
type Client struct {
	Name   string
	Config *mcp.ServerConfig

	transport mcp.Transport

	nextID  atomic.Int64
	pending sync.Map // int64 -> chan *mcp.Response

	stateMu sync.Mutex
	state   State
	stopMu  sync.Mutex

	toolsMu sync.RWMutex
	tools   []mcp.ToolDescriptor

	recvDone chan struct{}
}

// New builds a client for cfg, selecting stdio or SSE per its resolved
// transport kind. Does not start anything.
func New(cfg *mcp.ServerConfig) (*Client, error) {
	kind, err := cfg.ResolveTransport()
	if err != nil {
		return nil, err
	}

	var t mcp.Transport
	switch kind {
	case mcp.TransportStdio:
		t = stdio.NewTransport(cfg)
	case mcp.TransportSSE:
		t = sse.NewTransport(cfg)
	default:
		return nil, fmt.Errorf("server %q: unsupported transport %q", cfg.Name, kind)
	}

	return &Client{
		Name:      cfg.Name,
		Config:    cfg,
		transport: t,
		state:     Unstarted,
		recvDone:  make(chan struct{}),
	}, nil
}

func (c *Client) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Start launches the transport, performs the MCP handshake, and begins
// routing response frames to their waiters. Never returns a panic-style
// failure; errors are returned for the pool to log and skip.
func (c *Client) Start(ctx context.Context) error {
	c.setState(Starting)

	if err := c.transport.Start(ctx); err != nil {
		c.setState(Stopped)
		return fmt.Errorf("start transport: %w", err)
	}

	go c.dispatchLoop()

	initCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()

	params := mcp.InitializeParams{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities:    mcp.Capabilities{Sampling: map[string]any{}},
		ClientInfo:      mcp.ClientInfo{Name: "dodo-mcp", Version: "1.0"},
	}
	var result mcp.InitializeResult
	if err := c.call(initCtx, "initialize", params, &result); err != nil {
		c.setState(Stopped)
		return fmt.Errorf("initialize %q: %w", c.Name, err)
	}

	// Fire-and-forget; failure to notify is not fatal to startup.
	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		log.Printf("mcp[%s]: notifications/initialized failed: %v", c.Name, err)
	}

	c.setState(Ready)
	return nil
}

// ListTools fetches and caches the server's tool list. On timeout or RPC
// error it logs and returns an empty list without marking the client
// failed.
func (c *Client) ListTools(ctx context.Context) []mcp.ToolDescriptor {
	listCtx, cancel := context.WithTimeout(ctx, listToolsTimeout)
	defer cancel()

	var result mcp.ListToolsResult
	if err := c.call(listCtx, "tools/list", nil, &result); err != nil {
		log.Printf("mcp[%s]: tools/list failed: %v", c.Name, err)
		return nil
	}

	tools := make([]mcp.ToolDescriptor, 0, len(result.Tools))
	for _, wt := range result.Tools {
		tools = append(tools, mcp.ToolDescriptor{
			Name:        wt.Name,
			Description: wt.Description,
			InputSchema: wt.InputSchema,
		})
	}

	c.toolsMu.Lock()
	c.tools = tools
	c.toolsMu.Unlock()

	return tools
}

// Tools returns the cached tool list from the last ListTools call.
func (c *Client) Tools() []mcp.ToolDescriptor {
	c.toolsMu.RLock()
	defer c.toolsMu.RUnlock()
	out := make([]mcp.ToolDescriptor, len(c.tools))
	copy(out, c.tools)
	return out
}

// Tool looks up a cached tool descriptor by name.
func (c *Client) Tool(name string) (mcp.ToolDescriptor, bool) {
	c.toolsMu.RLock()
	defer c.toolsMu.RUnlock()
	for _, t := range c.tools {
		if t.Name == name {
			return t, true
		}
	}
	return mcp.ToolDescriptor{}, false
}

// CallTool invokes name with args and waits up to the configured tool
// timeout (default 3600s). Timeout and RPC errors are returned as a Go
// error; the router turns them into the structured {"error": "..."}
// tool-message payload.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (mcp.CallToolResult, error) {
	timeout := c.Config.ToolTimeout
	if timeout <= 0 {
		timeout = mcp.DefaultToolTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	warnTimer := time.AfterFunc(callToolWarnAfter, func() {
		log.Printf("mcp[%s]: tools/call %s still waiting after %s", c.Name, name, callToolWarnAfter)
	})
	defer warnTimer.Stop()

	var raw json.RawMessage
	err := c.call(callCtx, "tools/call", mcp.CallToolParams{Name: name, Arguments: args}, &raw)
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	var result mcp.CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		// Not every server returns the {content:[...]} envelope; fall back
		// to wrapping the raw result as a single text content item.
		return mcp.CallToolResult{Content: []mcp.ContentItem{{Type: "text", Text: string(raw)}}}, nil
	}
	return result, nil
}

// Stop is idempotent and serialized: best-effort shutdown, close, wait.
func (c *Client) Stop(ctx context.Context) error {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()

	if c.State() == Stopped {
		return nil
	}
	c.setState(ShuttingDown)

	err := c.transport.Close(ctx)
	c.setState(Stopped)
	return err
}

// call issues a request and blocks until the matching response arrives,
// the context is done, or the transport closes.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	id := c.nextID.Add(1)

	var raw json.RawMessage
	if params != nil {
		var err error
		raw, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
	}

	req := &mcp.Request{JSONRPC: "2.0", ID: id, Method: method, Params: raw}

	ch := make(chan *mcp.Response, 1)
	c.pending.Store(id, ch)
	defer c.pending.Delete(id)

	if err := c.transport.Send(ctx, req); err != nil {
		return err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return fmt.Errorf("transport closed before response")
		}
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil {
			return nil
		}
		if len(resp.Result) == 0 {
			return nil
		}
		return json.Unmarshal(resp.Result, out)
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for %s: %w", method, ctx.Err())
	}
}

// dispatchLoop routes every response frame from the transport to its
// waiter, keyed by ID.
func (c *Client) dispatchLoop() {
	defer close(c.recvDone)
	for resp := range c.transport.Responses() {
		idStr := resp.ID.String()
		var id int64
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			continue
		}
		if chAny, ok := c.pending.Load(id); ok {
			ch := chAny.(chan *mcp.Response)
			select {
			case ch <- resp:
			default:
			}
		}
	}
}
