package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/coordinator/internal/router"
	"github.com/dyluth/coordinator/internal/server"
	"github.com/dyluth/coordinator/internal/session"
	"github.com/dyluth/coordinator/pkg/coordination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupHub starts an in-process hub and returns its URL and store.
func setupHub(t *testing.T) (string, *session.Store) {
	t.Helper()
	store := session.New()
	srv := server.New(router.New(store))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http"), store
}

func dial(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDial(t *testing.T) {
	t.Run("connects", func(t *testing.T) {
		url, _ := setupHub(t)
		c := dial(t, url)
		assert.Equal(t, url, c.URL())
		assert.NoError(t, c.Err())
	})

	t.Run("refused", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_, err := Dial(ctx, "ws://127.0.0.1:1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to connect to coordinator at ws://127.0.0.1:1")
	})
}

func TestClose(t *testing.T) {
	url, _ := setupHub(t)
	c := dial(t, url)

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())

	_, err := c.ListAgents(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCalls(t *testing.T) {
	url, store := setupHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := dial(t, url)

	joined, err := c.Join(ctx, "api", coordination.RoleSource, "/src/api")
	require.NoError(t, err)
	assert.Equal(t, store.SessionID(), joined.SessionID)

	t.Run("context", func(t *testing.T) {
		entry, err := c.ShareContext(ctx, "schema", "{}", []string{"api", "v1"})
		require.NoError(t, err)
		assert.Equal(t, joined.Agent.ID, entry.CreatedBy)

		missing, err := c.GetContext(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)

		entries, err := c.ListContext(ctx, []string{"api", "v1"}, "")
		require.NoError(t, err)
		assert.Len(t, entries, 1)

		entries, err = c.ListContext(ctx, []string{"api", "v2"}, "")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("decisions", func(t *testing.T) {
		for _, text := range []string{"one", "two", "three"} {
			_, err := c.LogDecision(ctx, text, "")
			require.NoError(t, err)
		}

		log, err := c.ListDecisions(ctx)
		require.NoError(t, err)
		require.Len(t, log, 3)
		assert.Equal(t, "one", log[0].Decision)
		assert.Equal(t, "three", log[2].Decision)
	})

	t.Run("leave", func(t *testing.T) {
		ok, err := c.Leave(ctx, joined.Agent.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = c.Leave(ctx, joined.Agent.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestConcurrentCalls(t *testing.T) {
	url, _ := setupHub(t)
	c := dial(t, url)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.Join(ctx, "api", coordination.RoleSource, "/src/api")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.LogDecision(ctx, "d", "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	log, err := c.ListDecisions(ctx)
	require.NoError(t, err)
	assert.Len(t, log, 20)
}

func TestWatchContext(t *testing.T) {
	url, store := setupHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	watcher := dial(t, url)
	sub, err := watcher.WatchContext(ctx)
	require.NoError(t, err)

	agent := dial(t, url)
	_, err = agent.Join(ctx, "a", coordination.RoleSource, "/a")
	require.NoError(t, err)
	_, err = agent.ShareContext(ctx, "k", "v", nil)
	require.NoError(t, err)

	select {
	case entry := <-sub.Events():
		assert.Equal(t, "k", entry.Key)
	case <-ctx.Done():
		t.Fatal("timeout waiting for context event")
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	assert.Eventually(t, func() bool { return store.Bus().Context.Len() == 0 }, time.Second, 10*time.Millisecond)

	for range sub.Events() {
	}
}

func TestWatch_ContextCancel(t *testing.T) {
	url, store := setupHub(t)
	c := dial(t, url)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := c.WatchQuestions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Bus().QuestionAsked.Len())

	cancel()

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after cancel")
	}
	assert.Eventually(t, func() bool { return store.Bus().QuestionAsked.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestWatch_ConnectionEnds(t *testing.T) {
	url, _ := setupHub(t)
	c := dial(t, url)

	sub, err := c.WatchAgents(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	<-sub.Events() // initial roster
	c.Close()

	select {
	case err := <-sub.Errors():
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("no error after connection closed")
	}
}
