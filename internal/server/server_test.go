package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/coordinator/internal/router"
	"github.com/dyluth/coordinator/internal/session"
	"github.com/dyluth/coordinator/pkg/client"
	"github.com/dyluth/coordinator/pkg/coordination"
	"github.com/dyluth/coordinator/pkg/protocol"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestServer starts a hub on an httptest server and returns its ws:// URL.
func setupTestServer(t *testing.T, opts ...Option) (*Server, *session.Store, string) {
	t.Helper()
	store := session.New()
	srv := New(router.New(store), opts...)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		ts.Close()
	})

	return srv, store, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialClient(t *testing.T, url string) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// TestEndToEnd walks join, share, upsert, ask and answer over real sockets.
func TestEndToEnd(t *testing.T) {
	_, _, url := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientA := dialClient(t, url)
	clientB := dialClient(t, url)

	joinA, err := clientA.Join(ctx, "agent-a", coordination.RoleSource, "/repos/a")
	require.NoError(t, err)
	a := joinA.Agent

	agents, err := clientA.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, a.ID, agents[0].ID)

	first, err := clientA.ShareContext(ctx, "k", "v1", nil)
	require.NoError(t, err)

	got, err := clientA.GetContext(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v1", got.Value)

	_, err = clientA.ShareContext(ctx, "k", "v2", nil)
	require.NoError(t, err)

	got, err = clientA.GetContext(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v2", got.Value)
	assert.Equal(t, first.ID, got.ID)

	q, err := clientA.Ask(ctx, "Q1", "")
	require.NoError(t, err)

	pending, err := clientA.ListPendingQuestions(ctx, "")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, q.ID, pending[0].ID)

	joinB, err := clientB.Join(ctx, "agent-b", coordination.RoleTarget, "/repos/b")
	require.NoError(t, err)

	answered, err := clientB.Answer(ctx, q.ID, "A1")
	require.NoError(t, err)
	assert.Equal(t, coordination.QuestionStatusAnswered, answered.Status)
	assert.Equal(t, joinB.Agent.ID, answered.AnsweredBy)

	pending, err = clientA.ListPendingQuestions(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEndToEnd_Subscriptions(t *testing.T) {
	_, _, url := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	watcher := dialClient(t, url)
	agent := dialClient(t, url)

	roster, err := watcher.WatchAgents(ctx)
	require.NoError(t, err)
	defer roster.Close()

	questions, err := watcher.WatchQuestions(ctx)
	require.NoError(t, err)
	defer questions.Close()

	select {
	case agents := <-roster.Events():
		assert.Empty(t, agents)
	case <-ctx.Done():
		t.Fatal("timeout waiting for initial roster")
	}

	joined, err := agent.Join(ctx, "a", coordination.RoleSource, "/a")
	require.NoError(t, err)

	select {
	case agents := <-roster.Events():
		require.Len(t, agents, 1)
		assert.Equal(t, joined.Agent.ID, agents[0].ID)
	case <-ctx.Done():
		t.Fatal("timeout waiting for roster change")
	}

	q, err := agent.Ask(ctx, "which port?", "")
	require.NoError(t, err)
	_, err = agent.Answer(ctx, q.ID, "3030")
	require.NoError(t, err)

	for _, status := range []coordination.QuestionStatus{coordination.QuestionStatusPending, coordination.QuestionStatusAnswered} {
		select {
		case got := <-questions.Events():
			assert.Equal(t, q.ID, got.ID)
			assert.Equal(t, status, got.Status)
		case <-ctx.Done():
			t.Fatalf("timeout waiting for %s question", status)
		}
	}
}

func TestErrorsOverTheWire(t *testing.T) {
	_, _, url := setupTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dialClient(t, url)

	_, err := c.ShareContext(ctx, "k", "v", nil)
	var perr *protocol.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, protocol.CodeNotJoined, perr.Code)

	_, err = c.Join(ctx, "", coordination.RoleSource, "/a")
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, protocol.CodeInvalidInput, perr.Code)
}

func TestMalformedFrame(t *testing.T) {
	_, _, url := setupTestServer(t)

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))

	var reply protocol.Message
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, ws.ReadJSON(&reply))
	assert.Equal(t, protocol.TypeError, reply.Type)
	assert.Equal(t, protocol.CodeInvalidInput, reply.Error.Code)

	// The connection survives a bad frame.
	msg, err := protocol.NewRequest(7, protocol.ListDecisionsRequest{})
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(msg))
	require.NoError(t, ws.ReadJSON(&reply))
	assert.Equal(t, uint64(7), reply.ID)
	assert.Equal(t, protocol.TypeResult, reply.Type)
	assert.JSONEq(t, `[]`, string(reply.Result))
}

func TestKeepalive_DropsSilentClient(t *testing.T) {
	srv, _, url := setupTestServer(t, WithKeepalive(50*time.Millisecond, 50*time.Millisecond))

	// A client that never reads never answers pings.
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	ws.SetPingHandler(func(string) error { return nil })

	assert.Eventually(t, func() bool { return srv.Connections() == 1 }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return srv.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestKeepalive_KeepsResponsiveClient(t *testing.T) {
	srv, _, url := setupTestServer(t, WithKeepalive(30*time.Millisecond, 50*time.Millisecond))

	c := dialClient(t, url)
	time.Sleep(300 * time.Millisecond)

	assert.Equal(t, 1, srv.Connections())
	_, err := c.ListAgents(context.Background())
	assert.NoError(t, err)
}

func TestShutdown_SendsGoingAway(t *testing.T) {
	store := session.New()
	srv := New(router.New(store))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	c := dialClient(t, "ws"+strings.TrimPrefix(ts.URL, "http"))
	assert.Eventually(t, func() bool { return srv.Connections() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case <-c.Done():
		var closeErr *websocket.CloseError
		require.ErrorAs(t, c.Err(), &closeErr)
		assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("client not disconnected on shutdown")
	}
}

func TestLeaveOnDisconnect(t *testing.T) {
	store := session.New()
	srv := New(router.New(store, router.WithLeaveOnDisconnect(true)))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"))
	require.NoError(t, err)
	_, err = c.Join(ctx, "a", coordination.RoleSource, "/a")
	require.NoError(t, err)
	require.Len(t, store.ListAgents(), 1)

	c.Close()
	assert.Eventually(t, func() bool { return len(store.ListAgents()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestServe_ContextCancel(t *testing.T) {
	srv := New(router.New(session.New()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx, "127.0.0.1:0")
	}()

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

// TestHealthCheckEndpoint_MethodNotAllowed verifies non-GET requests are rejected.
func TestHealthCheckEndpoint_MethodNotAllowed(t *testing.T) {
	srv := New(router.New(session.New()))

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	w := httptest.NewRecorder()

	srv.healthCheckHandler(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

// TestHealthCheckResponse verifies the JSON response structure.
func TestHealthCheckResponse(t *testing.T) {
	t.Run("healthy without redis", func(t *testing.T) {
		store := session.New()
		store.AddDecision(coordination.Decision{Decision: "d"})
		srv := New(router.New(store))

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response HealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "healthy", response.Status)
		assert.Equal(t, store.SessionID(), response.SessionID)
		assert.Equal(t, 1, response.Decisions)
		assert.Empty(t, response.Redis)
	})

	t.Run("healthy with redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer rdb.Close()

		srv := New(router.New(session.New()), WithRedis(redisPinger{rdb}))

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()
		srv.healthCheckHandler(w, req)

		var response HealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "connected", response.Redis)
	})

	t.Run("unhealthy when Redis unavailable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{
			Addr:         mr.Addr(),
			DialTimeout:  50 * time.Millisecond,
			ReadTimeout:  50 * time.Millisecond,
			WriteTimeout: 50 * time.Millisecond,
		})
		defer rdb.Close()
		mr.Close()

		srv := New(router.New(session.New()), WithRedis(redisPinger{rdb}))

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		req = req.WithContext(ctx)
		w := httptest.NewRecorder()

		srv.healthCheckHandler(w, req)

		var response HealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "unhealthy", response.Status)
		assert.Equal(t, "disconnected", response.Redis)
		assert.NotEmpty(t, response.Error)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

type redisPinger struct {
	rdb *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}
