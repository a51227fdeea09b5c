// Package bridge exposes the coordinator hub as MCP tools over stdio.
//
// Each tool call is forwarded to the hub through a single lazily dialled
// client connection. Results are JSON envelopes: {"success":true, ...} on
// success, {"success":false,"error":"..."} with isError set on failure.
// Stdout carries JSON-RPC only; all logging goes to stderr.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/dyluth/coordinator/pkg/client"
	"github.com/gorilla/websocket"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerName is the MCP server name announced to hosts.
const ServerName = "claude-coordinator"

// DialFunc opens a hub connection.
type DialFunc func(ctx context.Context, url string) (*client.Client, error)

// Bridge holds the hub connection and the agent identity of one MCP host.
type Bridge struct {
	url  string
	dial DialFunc

	mu      sync.Mutex
	client  *client.Client
	agentID string
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithDialer replaces client.Dial.
func WithDialer(dial DialFunc) Option {
	return func(b *Bridge) {
		b.dial = dial
	}
}

// New creates a bridge to the hub at url. Nothing is dialled until the
// first tool call.
func New(url string, opts ...Option) *Bridge {
	if url == "" {
		url = client.DefaultURL
	}
	b := &Bridge{url: url, dial: client.Dial}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewMCPServer builds the MCP server with every coordinator tool registered.
func (b *Bridge) NewMCPServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.AddTools(b.Tools()...)
	return s
}

// ServeStdio runs the MCP server on stdin/stdout until the host disconnects.
func (b *Bridge) ServeStdio(version string) error {
	s := b.NewMCPServer(version)
	log.Printf("[Bridge] MCP server started, hub at %s", b.url)
	return server.ServeStdio(s)
}

// Close releases the hub connection, if any.
func (b *Bridge) Close() error {
	b.mu.Lock()
	c := b.client
	b.client = nil
	b.agentID = ""
	b.mu.Unlock()

	if c != nil {
		return c.Close()
	}
	return nil
}

// getClient returns the open hub connection, dialling if there is none.
// A failed dial is not remembered, so a hub started later is picked up. A
// new connection starts unjoined.
func (b *Bridge) getClient(ctx context.Context) (*client.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		select {
		case <-b.client.Done():
			log.Printf("[Bridge] Hub connection lost: %v", b.client.Err())
			b.client = nil
			b.agentID = ""
		default:
			return b.client, nil
		}
	}

	c, err := b.dial(ctx, b.url)
	if err != nil {
		return nil, err
	}
	b.client = c
	return c, nil
}

// errNotJoined is returned by attributed tools before coordinator_join.
var errNotJoined = errors.New("Not joined to session. Call coordinator_join first.")

func (b *Bridge) requireAgentID() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.agentID == "" {
		return "", errNotJoined
	}
	return b.agentID, nil
}

func (b *Bridge) setAgentID(id string) {
	b.mu.Lock()
	b.agentID = id
	b.mu.Unlock()
}

// formatConnectionError turns dial and transport failures into guidance for
// starting the hub. Other errors pass through unchanged.
func formatConnectionError(err error, url string) string {
	var opErr *net.OpError
	if errors.As(err, &opErr) ||
		errors.Is(err, websocket.ErrBadHandshake) ||
		errors.Is(err, client.ErrClosed) {
		return fmt.Sprintf("Could not connect to coordinator server at %s. Please start the server with: coordinator serve", url)
	}
	return err.Error()
}

// success builds a {"success":true, key: payload} envelope.
func success(key string, payload any) *mcp.CallToolResult {
	envelope := map[string]any{"success": true}
	if key != "" {
		envelope[key] = payload
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return failure(fmt.Errorf("failed to encode result: %w", err), "")
	}
	return mcp.NewToolResultText(string(data))
}

// failure builds a {"success":false,"error":...} envelope with isError set.
func failure(err error, url string) *mcp.CallToolResult {
	msg := err.Error()
	if url != "" {
		msg = formatConnectionError(err, url)
	}
	data, _ := json.Marshal(map[string]any{"success": false, "error": msg})
	return mcp.NewToolResultError(string(data))
}
