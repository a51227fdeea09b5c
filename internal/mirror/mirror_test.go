package mirror

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/coordinator/internal/session"
	"github.com/dyluth/coordinator/pkg/coordination"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client connected to a miniredis instance
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return rdb, mr
}

func runPublisher(t *testing.T, p *Publisher) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func receive(t *testing.T, sub *Subscription) *coordination.Event {
	t.Helper()
	select {
	case event := <-sub.Events():
		require.NotNil(t, event)
		return event
	case err := <-sub.Errors():
		t.Fatalf("unexpected subscription error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return nil
}

func TestPublisher_MirrorsBusEvents(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	ctx := context.Background()

	store := session.New()
	sub, err := Subscribe(ctx, rdb, "", store.SessionID())
	require.NoError(t, err)
	defer sub.Close()

	pub := NewPublisher(rdb, "", store)
	pub.Attach()
	defer pub.Detach()
	runPublisher(t, pub)

	agent := coordination.Agent{
		ID:          uuid.New().String(),
		Name:        "api",
		Role:        coordination.RoleSource,
		RepoPath:    "/src/api",
		ConnectedAt: time.Now().UTC(),
	}

	t.Run("roster", func(t *testing.T) {
		store.AddAgent(agent)

		event := receive(t, sub)
		assert.Equal(t, coordination.EventRosterChanged, event.Type)
		assert.Equal(t, store.SessionID(), event.SessionID)
		require.Len(t, event.Agents, 1)
		assert.Equal(t, agent.ID, event.Agents[0].ID)
	})

	t.Run("context", func(t *testing.T) {
		store.SetContext(coordination.ContextEntry{Key: "api", Value: "v1", CreatedBy: agent.ID})

		event := receive(t, sub)
		assert.Equal(t, coordination.EventContextChanged, event.Type)
		require.NotNil(t, event.Entry)
		assert.Equal(t, "v1", event.Entry.Value)
	})

	t.Run("questions", func(t *testing.T) {
		q := coordination.Question{ID: uuid.New().String(), Question: "port?", From: agent.ID, CreatedAt: time.Now().UTC()}
		store.AddQuestion(q)
		store.AnswerQuestion(q.ID, "3030", agent.ID)

		asked := receive(t, sub)
		answered := receive(t, sub)
		assert.Equal(t, coordination.EventQuestionAsked, asked.Type)
		assert.Equal(t, coordination.EventQuestionAnswered, answered.Type)
		assert.Equal(t, "3030", answered.Question.Answer)
	})

	t.Run("decisions are not mirrored", func(t *testing.T) {
		store.AddDecision(coordination.Decision{ID: uuid.New().String(), Decision: "d", By: agent.ID})

		select {
		case event := <-sub.Events():
			t.Fatalf("unexpected event: %+v", event)
		case <-time.After(100 * time.Millisecond):
		}
	})

	assert.Eventually(t, func() bool {
		published, dropped := pub.Stats()
		return published == 4 && dropped == 0
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_Detach(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	store := session.New()

	pub := NewPublisher(rdb, "", store)
	pub.Attach()
	assert.Equal(t, 1, store.Bus().Context.Len())

	pub.Detach()
	pub.Detach()
	assert.Equal(t, 0, store.Bus().Context.Len())
	assert.Equal(t, 0, store.Bus().Roster.Len())
}

func TestPublisher_DropsWhenQueueFull(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	store := session.New()

	// No Run loop: nothing drains the queue.
	pub := NewPublisher(rdb, "", store, WithQueueSize(2))
	pub.Attach()
	defer pub.Detach()

	by := uuid.New().String()
	for i := 0; i < 5; i++ {
		store.SetContext(coordination.ContextEntry{Key: "k", Value: "v", CreatedBy: by})
	}

	published, dropped := pub.Stats()
	assert.Equal(t, int64(0), published)
	assert.Equal(t, int64(3), dropped)
}

func TestPublish_RejectsInvalidEvent(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	pub := NewPublisher(rdb, "", session.New())

	err := pub.Publish(context.Background(), coordination.Event{Type: coordination.EventContextChanged, SessionID: "s"})
	assert.Error(t, err)
}

func TestSubscribe_SessionIsolation(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	ctx := context.Background()

	storeA := session.New()
	storeB := session.New()

	sub, err := Subscribe(ctx, rdb, "", storeA.SessionID())
	require.NoError(t, err)
	defer sub.Close()

	pubB := NewPublisher(rdb, "", storeB)
	require.NoError(t, pubB.Publish(ctx, coordination.RosterEvent(storeB.SessionID(), nil, time.Now().UTC())))

	pubA := NewPublisher(rdb, "", storeA)
	require.NoError(t, pubA.Publish(ctx, coordination.RosterEvent(storeA.SessionID(), nil, time.Now().UTC())))

	event := receive(t, sub)
	assert.Equal(t, storeA.SessionID(), event.SessionID)
}

func TestSubscribe_AllSessions(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	ctx := context.Background()

	sub, err := Subscribe(ctx, rdb, "team", "")
	require.NoError(t, err)
	defer sub.Close()

	pub := NewPublisher(rdb, "team", session.New())
	require.NoError(t, pub.Publish(ctx, coordination.RosterEvent("session-1", nil, time.Now().UTC())))
	require.NoError(t, pub.Publish(ctx, coordination.RosterEvent("session-2", nil, time.Now().UTC())))

	assert.Equal(t, "session-1", receive(t, sub).SessionID)
	assert.Equal(t, "session-2", receive(t, sub).SessionID)
}

func TestSubscribe_MalformedPayload(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	ctx := context.Background()

	sub, err := Subscribe(ctx, rdb, "", "s1")
	require.NoError(t, err)
	defer sub.Close()

	mr.Publish(coordination.RosterEventsChannel(coordination.DefaultChannelPrefix, "s1"), "not json")
	mr.Publish(coordination.RosterEventsChannel(coordination.DefaultChannelPrefix, "s1"), `{"type":"bogus"}`)

	for i := 0; i < 2; i++ {
		select {
		case err := <-sub.Errors():
			assert.Error(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for error")
		}
	}
}

func TestSubscription_Close(t *testing.T) {
	rdb, _ := setupTestRedis(t)

	sub, err := Subscribe(context.Background(), rdb, "", "s1")
	require.NoError(t, err)

	assert.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestNewClient(t *testing.T) {
	_, mr := setupTestRedis(t)

	rdb, err := NewClient("redis://" + mr.Addr())
	require.NoError(t, err)
	defer rdb.Close()
	assert.NoError(t, rdb.Ping(context.Background()).Err())

	_, err = NewClient("http://nope")
	assert.Error(t, err)
}

func TestPublisher_ConcurrentMutations(t *testing.T) {
	store := session.New()

	// No Redis round trips: only the bus handlers run.
	pub := NewPublisher(nil, "", store, WithQueueSize(1<<16))
	pub.Attach()
	defer pub.Detach()

	const workers, rounds = 8, 200

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < rounds; i++ {
					id := uuid.New().String()
					store.AddAgent(coordination.Agent{ID: id, Name: "agent", Role: coordination.RoleSource, RepoPath: "/src"})
					store.SetContext(coordination.ContextEntry{Key: id, Value: "v", CreatedBy: id})
				}
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("concurrent mutations with the mirror attached did not finish")
	}

	_, dropped := pub.Stats()
	assert.Equal(t, int64(0), dropped)
	assert.Len(t, pub.queue, 2*workers*rounds)

	first := <-pub.queue
	assert.Equal(t, store.SessionID(), first.SessionID)
}
