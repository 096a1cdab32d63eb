package mcp

import "context"

// Transport is the shared contract stdio and SSE implementations provide
// to client.Client. One Transport instance serves exactly one server.
type Transport interface {
	// Start launches the connection (child process or SSE session) and
	// begins the background receive loop.
	Start(ctx context.Context) error

	// Send writes a request frame. The caller is responsible for reading
	// the matching response off Responses().
	Send(ctx context.Context, req *Request) error

	// Notify writes a notification frame (no response expected).
	Notify(ctx context.Context, method string, params any) error

	// Responses delivers every response frame the transport reads, in
	// arrival order. Callers correlate by ID.
	Responses() <-chan *Response

	// Close tears the transport down: best-effort graceful shutdown,
	// then force termination. Idempotent.
	Close(ctx context.Context) error
}
