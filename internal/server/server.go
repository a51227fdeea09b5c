// Package server exposes a router over WebSocket connections.
//
// Every path except /healthz upgrades to a WebSocket carrying protocol
// messages as JSON text frames. Each connection has one reader goroutine,
// which handles requests in arrival order, and one writer goroutine, which
// owns all writes including keepalive pings.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dyluth/coordinator/internal/router"
	"github.com/gorilla/websocket"
)

const (
	// DefaultPingInterval is how often the server pings each client
	DefaultPingInterval = 30 * time.Second

	// DefaultPongWait is how long a client has to answer a ping
	DefaultPongWait = 5 * time.Second

	// DefaultSendBuffer is the number of outbound messages queued per connection
	DefaultSendBuffer = 64

	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

// Pinger reports whether an external dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server accepts WebSocket clients for one router.
type Server struct {
	router       *router.Router
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pongWait     time.Duration
	sendBuffer   int
	redis        Pinger

	mu         sync.Mutex
	conns      map[*conn]struct{}
	wg         sync.WaitGroup
	httpServer *http.Server
	closing    bool
}

// Option configures a Server.
type Option func(*Server)

// WithKeepalive sets the ping interval and pong deadline.
func WithKeepalive(pingInterval, pongWait time.Duration) Option {
	return func(s *Server) {
		if pingInterval > 0 {
			s.pingInterval = pingInterval
		}
		if pongWait > 0 {
			s.pongWait = pongWait
		}
	}
}

// WithSendBuffer sets the per-connection outbound queue size. A client that
// lets the queue fill up is disconnected.
func WithSendBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.sendBuffer = n
		}
	}
}

// WithRedis makes /healthz report the reachability of the Redis mirror.
func WithRedis(p Pinger) Option {
	return func(s *Server) {
		s.redis = p
	}
}

// New creates a server for r.
func New(r *router.Router, opts ...Option) *Server {
	s := &Server{
		router:       r,
		pingInterval: DefaultPingInterval,
		pongWait:     DefaultPongWait,
		sendBuffer:   DefaultSendBuffer,
		conns:        make(map[*conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Agents connect from local tooling, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler serving /healthz and WebSocket upgrades.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthCheckHandler)
	mux.HandleFunc("/", s.serveWS)
	return mux
}

// ListenAndServe listens on addr and serves until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	s.logEvent("server_started", map[string]interface{}{
		"addr": ln.Addr().String(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown tells every client the server is going away, waits for their
// connections to finish, and stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	for _, c := range conns {
		c.shutdown(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("timed out waiting for connections to close: %w", ctx.Err())
	}

	if httpServer != nil {
		if shutdownErr := httpServer.Shutdown(ctx); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}

	s.logEvent("server_stopped", map[string]interface{}{
		"connections": len(conns),
	})
	return err
}

// Connections returns the number of open WebSocket connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

// logEvent writes a structured JSON log line.
func (s *Server) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "coordinator"
	data["event_type"] = eventType
	data["session"] = s.router.Store().SessionID()

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Coordinator] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
