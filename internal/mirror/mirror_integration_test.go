//go:build integration

package mirror

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dyluth/coordinator/internal/session"
	"github.com/dyluth/coordinator/pkg/coordination"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container for testing.
func setupRedis(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisURL := fmt.Sprintf("redis://%s:%s", host, port.Port())

	cleanup := func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	}

	return redisURL, cleanup
}

// TestMirror_RealRedis runs a full publish/subscribe cycle against a real server.
func TestMirror_RealRedis(t *testing.T) {
	redisURL, cleanup := setupRedis(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb, err := NewClient(redisURL)
	if err != nil {
		t.Fatalf("Failed to create Redis client: %v", err)
	}
	defer rdb.Close()

	store := session.New()

	sub, err := Subscribe(ctx, rdb, "", "")
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()

	pub := NewPublisher(rdb, "", store)
	pub.Attach()
	defer pub.Detach()
	go pub.Run(ctx)

	agentID := uuid.New().String()
	store.AddAgent(coordination.Agent{
		ID:          agentID,
		Name:        "integration",
		Role:        coordination.RoleTarget,
		RepoPath:    "/tmp/integration",
		ConnectedAt: time.Now().UTC(),
	})

	select {
	case event := <-sub.Events():
		if event.Type != coordination.EventRosterChanged {
			t.Fatalf("Expected roster_changed, got %s", event.Type)
		}
		if event.SessionID != store.SessionID() {
			t.Errorf("Expected session %s, got %s", store.SessionID(), event.SessionID)
		}
		if len(event.Agents) != 1 || event.Agents[0].ID != agentID {
			t.Errorf("Unexpected roster: %+v", event.Agents)
		}
	case err := <-sub.Errors():
		t.Fatalf("Subscription error: %v", err)
	case <-ctx.Done():
		t.Fatal("Timeout waiting for roster event")
	}

	if err := pub.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
