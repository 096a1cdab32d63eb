// Package pool implements C4, the server pool: starting every configured
// server concurrently, merging namespaced tools into one catalogue, and
// shutting every client down regardless of individual failures.
package pool

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ChamsBouzaiene/dodo/internal/mcp"
	"github.com/ChamsBouzaiene/dodo/internal/mcp/client"
)

// toolCallRateLimit bounds concurrent tools/call fan-out against a single
// server when reasoning mode issues several tool calls in a tight loop.
// Not part of the wire protocol; purely a local throttle.
const toolCallRateLimit = 20 // calls/sec per server

// Pool owns every ready server client for one interaction.
type Pool struct {
	mu        sync.RWMutex
	clients   map[string]*client.Client
	limiters  map[string]*rate.Limiter
	catalogue []mcp.NamespacedTool
}

// StartAll skips disabled entries, validates every enabled one (rejecting
// ambiguous server names/transport up front), starts them
// concurrently, and builds the merged tool catalogue. A partial pool is
// acceptable; only a fully empty pool with at least one enabled entry is
// an error.
func StartAll(ctx context.Context, configs []*mcp.ServerConfig) (*Pool, error) {
	p := &Pool{
		clients:  make(map[string]*client.Client),
		limiters: make(map[string]*rate.Limiter),
	}

	enabled := make([]*mcp.ServerConfig, 0, len(configs))
	for _, cfg := range configs {
		if cfg.Disabled {
			log.Printf("mcp: server %q disabled, skipping", cfg.Name)
			continue
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		enabled = append(enabled, cfg)
	}

	if len(enabled) == 0 {
		// Every configured server is disabled (or there were none); this
		// is not the "no servers could be started" failure case.
		return p, nil
	}

	type started struct {
		cfg *mcp.ServerConfig
		c   *client.Client
	}

	results := make(chan started, len(enabled))
	var wg sync.WaitGroup
	for _, cfg := range enabled {
		wg.Add(1)
		go func(cfg *mcp.ServerConfig) {
			defer wg.Done()
			c, err := client.New(cfg)
			if err != nil {
				log.Printf("mcp: %q: %v", cfg.Name, err)
				return
			}
			if err := c.Start(ctx); err != nil {
				log.Printf("mcp: %q failed to start: %v", cfg.Name, err)
				return
			}
			results <- started{cfg: cfg, c: c}
		}(cfg)
	}
	wg.Wait()
	close(results)

	for r := range results {
		p.clients[r.cfg.Name] = r.c
		p.limiters[r.cfg.Name] = rate.NewLimiter(rate.Limit(toolCallRateLimit), toolCallRateLimit)
	}

	if len(p.clients) == 0 {
		return nil, fmt.Errorf("no MCP servers could be started")
	}

	p.buildCatalogue(ctx)
	return p, nil
}

func (p *Pool) buildCatalogue(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var cat []mcp.NamespacedTool
	for name, c := range p.clients {
		for _, t := range c.ListTools(ctx) {
			cat = append(cat, mcp.NamespacedTool{Server: name, Tool: t})
		}
	}
	p.catalogue = cat
}

// Catalogue returns the merged, namespaced tool list built at start time.
// Read-only afterwards.
func (p *Pool) Catalogue() []mcp.NamespacedTool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]mcp.NamespacedTool, len(p.catalogue))
	copy(out, p.catalogue)
	return out
}

// Client returns the named server's client, if the pool started it.
func (p *Pool) Client(name string) (*client.Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.clients[name]
	return c, ok
}

// Limiter returns the per-server tool-call rate limiter.
func (p *Pool) Limiter(name string) *rate.Limiter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.limiters[name]
}

// StopAll stops every client; individual failures are logged, not
// propagated.
func (p *Pool) StopAll(ctx context.Context) {
	p.mu.RLock()
	clients := make([]*client.Client, 0, len(p.clients))
	for _, c := range p.clients {
		clients = append(clients, c)
	}
	p.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *client.Client) {
			defer wg.Done()
			if err := c.Stop(ctx); err != nil {
				log.Printf("mcp: %q stop: %v", c.Name, err)
			}
		}(c)
	}
	wg.Wait()
}
