package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/dyluth/coordinator/internal/mirror"
	"github.com/dyluth/coordinator/pkg/client"
	"github.com/dyluth/coordinator/pkg/coordination"
	"github.com/redis/go-redis/v9"
)

// HubSource merges the roster, context and question subscriptions of one
// hub connection into a single event stream.
type HubSource struct {
	closers []io.Closer
	events  chan coordination.Event
	done    chan struct{}
	once    sync.Once
	err     error
}

// NewHubSource subscribes to every stream on c. The first event is the
// current roster.
func NewHubSource(ctx context.Context, c *client.Client) (*HubSource, error) {
	h := &HubSource{
		events: make(chan coordination.Event, 32),
		done:   make(chan struct{}),
	}

	agents, err := c.WatchAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to watch agents: %w", err)
	}
	h.closers = append(h.closers, agents)

	entries, err := c.WatchContext(ctx)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("failed to watch context: %w", err)
	}
	h.closers = append(h.closers, entries)

	questions, err := c.WatchQuestions(ctx)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("failed to watch questions: %w", err)
	}
	h.closers = append(h.closers, questions)

	go forward(h, agents, func(a []coordination.Agent) coordination.Event {
		return coordination.RosterEvent("", a, time.Now())
	})
	go forward(h, entries, func(e coordination.ContextEntry) coordination.Event {
		return coordination.ContextEvent("", e, time.Now())
	})
	go forward(h, questions, func(q coordination.Question) coordination.Event {
		return coordination.QuestionEvent("", q, time.Now())
	})

	return h, nil
}

// forward copies one subscription into the merged stream until either ends.
func forward[T any](h *HubSource, sub *client.Subscription[T], convert func(T) coordination.Event) {
	errs := sub.Errors()
	for {
		select {
		case <-h.done:
			return

		case v, ok := <-sub.Events():
			if !ok {
				h.fail(lastError(errs))
				return
			}
			select {
			case h.events <- convert(v):
			case <-h.done:
				return
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if errors.Is(err, client.ErrClosed) {
				h.fail(err)
				return
			}
			log.Printf("[Watch] %v", err)
		}
	}
}

// lastError drains what is left on a closed subscription's error channel.
func lastError(errs <-chan error) error {
	var last error = client.ErrClosed
	if errs == nil {
		return last
	}
	for {
		select {
		case err, ok := <-errs:
			if !ok {
				return last
			}
			last = err
		default:
			return last
		}
	}
}

func (h *HubSource) fail(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

// Next implements Source.
func (h *HubSource) Next(ctx context.Context) (coordination.Event, error) {
	select {
	case event := <-h.events:
		return event, nil
	case <-h.done:
		return coordination.Event{}, h.err
	case <-ctx.Done():
		return coordination.Event{}, ctx.Err()
	}
}

// Close ends every subscription. The hub connection itself stays open.
func (h *HubSource) Close() error {
	h.fail(io.EOF)
	for _, c := range h.closers {
		c.Close()
	}
	return nil
}

// MirrorSource reads events republished on Redis by a hub's mirror.
type MirrorSource struct {
	sub *mirror.Subscription
}

// NewMirrorSource subscribes to sessionID under prefix, or to every session
// when sessionID is empty.
func NewMirrorSource(ctx context.Context, rdb *redis.Client, prefix, sessionID string) (*MirrorSource, error) {
	sub, err := mirror.Subscribe(ctx, rdb, prefix, sessionID)
	if err != nil {
		return nil, err
	}
	return &MirrorSource{sub: sub}, nil
}

// Next implements Source. Undecodable messages are logged and skipped.
func (m *MirrorSource) Next(ctx context.Context) (coordination.Event, error) {
	errs := m.sub.Errors()
	for {
		select {
		case event, ok := <-m.sub.Events():
			if !ok {
				return coordination.Event{}, io.EOF
			}
			return *event, nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Printf("[Watch] %v", err)

		case <-ctx.Done():
			return coordination.Event{}, ctx.Err()
		}
	}
}

// Close implements Source.
func (m *MirrorSource) Close() error {
	return m.sub.Close()
}
