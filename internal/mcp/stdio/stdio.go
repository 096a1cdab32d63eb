// Package stdio implements the C1 JSON-RPC stdio framer: line-delimited
// JSON over a child process' stdin/stdout.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ChamsBouzaiene/dodo/internal/mcp"
)

// lineBufferSize is the stdout scanner's buffer ceiling. Some tool outputs
// are large; the size is fixed at 1 MiB and is not configurable.
const lineBufferSize = 1024 * 1024

// MinLineBuffer exports the fixed line-buffer size.
const MinLineBuffer = lineBufferSize

// Transport spawns a child process and frames JSON-RPC messages over its
// stdin/stdout, newline-delimited.
type Transport struct {
	cfg *mcp.ServerConfig

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner
	stderr io.ReadCloser

	responses chan *mcp.Response

	mu        sync.Mutex // serializes writes to stdin
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewTransport creates a stdio transport for cfg. Its stdout reader always
// uses the fixed lineBufferSize.
func NewTransport(cfg *mcp.ServerConfig) *Transport {
	return &Transport{
		cfg:       cfg,
		responses: make(chan *mcp.Response, 16),
	}
}

func (t *Transport) Start(ctx context.Context) error {
	if t.cfg.Command == "" {
		return fmt.Errorf("stdio transport for %q: command is required", t.cfg.Name)
	}

	args := expandHome(t.cfg.Args)
	t.cmd = exec.CommandContext(ctx, t.cfg.Command, args...)
	t.cmd.Env = os.Environ()
	for k, v := range t.cfg.Env {
		t.cmd.Env = append(t.cmd.Env, k+"="+v)
	}
	if t.cfg.Cwd != "" {
		t.cmd.Dir = t.cfg.Cwd
	}

	var err error
	t.stdin, err = t.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := t.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	t.stdout = bufio.NewScanner(stdout)
	t.stdout.Buffer(make([]byte, 0, 64*1024), lineBufferSize)

	t.stderr, err = t.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := t.cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", t.cfg.Command, err)
	}

	go t.readLoop()
	go t.drainStderr()

	return nil
}

func expandHome(args []string) []string {
	home := os.Getenv("HOME")
	if home == "" {
		return args
	}
	out := make([]string, len(args))
	for i, a := range args {
		if a == "~" {
			out[i] = home
		} else if strings.HasPrefix(a, "~/") {
			out[i] = home + a[1:]
		} else {
			out[i] = a
		}
	}
	return out
}

func (t *Transport) Send(ctx context.Context, req *mcp.Request) error {
	return t.writeFrame(req)
}

func (t *Transport) Notify(ctx context.Context, method string, params any) error {
	notif := &mcp.Notification{JSONRPC: "2.0", Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal notify params: %w", err)
		}
		notif.Params = raw
	}
	return t.writeFrame(notif)
}

func (t *Transport) writeFrame(v any) error {
	if t.closed.Load() {
		return fmt.Errorf("stdio transport %q: closed", t.cfg.Name)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stdin == nil {
		return fmt.Errorf("stdio transport %q: stdin not open", t.cfg.Name)
	}
	_, err = t.stdin.Write(data)
	if err != nil {
		t.closed.Store(true)
		close(t.responses)
		return fmt.Errorf("write to %q: %w", t.cfg.Name, err)
	}
	return nil
}

func (t *Transport) Responses() <-chan *mcp.Response {
	return t.responses
}

// readLoop reads newline-delimited JSON from stdout. Responses (id +
// result/error) go to Responses(); server-initiated requests get an
// automatic "method not implemented" reply; notifications are discarded.
func (t *Transport) readLoop() {
	defer func() {
		if !t.closed.Load() {
			t.closed.Store(true)
			close(t.responses)
		}
	}()

	for t.stdout.Scan() {
		line := strings.TrimSpace(t.stdout.Text())
		if line == "" {
			continue
		}
		t.processLine(line)
	}
}

func (t *Transport) processLine(line string) {
	var probe struct {
		ID     json.Number `json:"id"`
		Method string      `json:"method"`
	}
	if err := json.Unmarshal([]byte(line), &probe); err != nil {
		log.Printf("mcp[%s]: malformed frame: %v", t.cfg.Name, err)
		return
	}

	switch {
	case probe.Method != "" && probe.ID.String() != "":
		// Server-initiated request; this client doesn't implement any.
		reply := mcp.Response{
			JSONRPC: "2.0",
			ID:      probe.ID,
			Error:   &mcp.RPCError{Code: mcp.ErrCodeMethodNotFound, Message: "method not implemented"},
		}
		if err := t.writeFrame(reply); err != nil {
			log.Printf("mcp[%s]: failed replying to server request: %v", t.cfg.Name, err)
		}
	case probe.Method != "":
		// Notification, discarded.
	default:
		var resp mcp.Response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			log.Printf("mcp[%s]: malformed response: %v", t.cfg.Name, err)
			return
		}
		select {
		case t.responses <- &resp:
		default:
			log.Printf("mcp[%s]: response channel full, dropping", t.cfg.Name)
		}
	}
}

func (t *Transport) drainStderr() {
	scanner := bufio.NewScanner(t.stderr)
	for scanner.Scan() {
		log.Printf("mcp[%s] stderr: %s", t.cfg.Name, scanner.Text())
	}
}

// Close sends shutdown, closes stdin, then terminates: wait 1s, kill,
// wait 1s, give up. Idempotent.
func (t *Transport) Close(ctx context.Context) error {
	var err error
	t.closeOnce.Do(func() {
		_ = t.Notify(ctx, "shutdown", nil)
		if t.stdin != nil {
			_ = t.stdin.Close()
		}
		if t.cmd == nil || t.cmd.Process == nil {
			return
		}
		err = terminateProcess(t.cmd)
	})
	return err
}
