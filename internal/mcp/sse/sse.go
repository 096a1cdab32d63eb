// Package sse implements the C2 SSE transport: a long-lived
// text/event-stream connection for replies/notifications, with requests
// POSTed to the server's endpoint and correlated by id.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ChamsBouzaiene/dodo/internal/mcp"
)

// Transport speaks MCP over HTTP+SSE: a GET connection streams responses
// and notifications, a POST per call carries the request.
type Transport struct {
	cfg    *mcp.ServerConfig
	client *http.Client

	responses chan *mcp.Response
	closed    atomic.Bool
	cancel    context.CancelFunc
}

func NewTransport(cfg *mcp.ServerConfig) *Transport {
	return &Transport{
		cfg:       cfg,
		client:    &http.Client{},
		responses: make(chan *mcp.Response, 16),
	}
}

func (t *Transport) Start(ctx context.Context) error {
	if t.cfg.URL == "" {
		return fmt.Errorf("sse transport for %q: url is required", t.cfg.Name)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go t.readLoop(loopCtx)
	return nil
}

func (t *Transport) Send(ctx context.Context, req *mcp.Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return t.post(ctx, body)
}

func (t *Transport) Notify(ctx context.Context, method string, params any) error {
	notif := mcp.Notification{JSONRPC: "2.0", Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal notify params: %w", err)
		}
		notif.Params = raw
	}
	body, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return t.post(ctx, body)
}

func (t *Transport) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to %q: %w", t.cfg.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("post to %q: HTTP %d: %s", t.cfg.Name, resp.StatusCode, string(msg))
	}
	return nil
}

func (t *Transport) Responses() <-chan *mcp.Response {
	return t.responses
}

// readLoop holds the SSE GET connection open and reconnects on drop.
func (t *Transport) readLoop(ctx context.Context) {
	defer func() {
		if !t.closed.Load() {
			t.closed.Store(true)
			close(t.responses)
		}
	}()

	sseURL := strings.TrimSuffix(t.cfg.URL, "/") + "/sse"
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if t.connectOnce(ctx, sseURL) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (t *Transport) connectOnce(ctx context.Context, sseURL string) (done bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sseURL, nil)
	if err != nil {
		log.Printf("mcp[%s] sse: build request: %v", t.cfg.Name, err)
		return false
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		log.Printf("mcp[%s] sse: connect: %v", t.cfg.Name, err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("mcp[%s] sse: non-200 status %d", t.cfg.Name, resp.StatusCode)
		return false
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return true
		default:
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		t.dispatch(data)
	}
	return false
}

func (t *Transport) dispatch(data string) {
	var resp mcp.Response
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		log.Printf("mcp[%s] sse: malformed event: %v", t.cfg.Name, err)
		return
	}
	select {
	case t.responses <- &resp:
	default:
		log.Printf("mcp[%s] sse: response channel full, dropping", t.cfg.Name)
	}
}

func (t *Transport) Close(ctx context.Context) error {
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}
