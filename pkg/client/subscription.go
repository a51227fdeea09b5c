package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dyluth/coordinator/pkg/coordination"
	"github.com/dyluth/coordinator/pkg/protocol"
)

// inboxSize bounds the events buffered between the connection and a slow
// subscriber before events are dropped.
const inboxSize = 64

// Subscription represents an active event stream from the hub.
// Caller must call Close() when done to clean up resources.
type Subscription[T any] struct {
	events <-chan T
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of events.
// The channel will be closed when the subscription is closed, the context is
// cancelled, or the connection ends.
func (s *Subscription[T]) Events() <-chan T {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include decode failures, dropped events and the end of the
// connection. The subscription continues after non-fatal errors.
func (s *Subscription[T]) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription[T]) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// rawInbox buffers raw events for one subscription.
type rawInbox struct {
	mu      sync.Mutex
	raw     chan json.RawMessage
	ended   chan struct{}
	err     error
	closed  bool
	dropped int
}

func newRawInbox() *rawInbox {
	return &rawInbox{
		raw:   make(chan json.RawMessage, inboxSize),
		ended: make(chan struct{}),
	}
}

func (b *rawInbox) push(data json.RawMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.raw <- data:
	default:
		b.dropped++
	}
}

// takeDropped returns and resets the number of events dropped because the
// subscriber fell behind.
func (b *rawInbox) takeDropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.dropped
	b.dropped = 0
	return n
}

func (b *rawInbox) end(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.err = err
	close(b.ended)
}

func watch[T any](ctx context.Context, c *Client, req protocol.Request) (*Subscription[T], error) {
	id, ch, err := c.allocate()
	if err != nil {
		return nil, err
	}

	box := newRawInbox()
	c.mu.Lock()
	c.subs[id] = box
	c.mu.Unlock()

	if err := c.roundTrip(ctx, id, ch, req, nil); err != nil {
		c.forget(id)
		return nil, err
	}

	eventsChan := make(chan T, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(context.Background())

	go func() {
		defer cancelFunc()
		defer close(eventsChan)
		defer close(errorsChan)

		for {
			select {
			case <-subCtx.Done():
				return

			case <-box.ended:
				select {
				case errorsChan <- box.err:
				default:
				}
				return

			case data := <-box.raw:
				if n := box.takeDropped(); n > 0 {
					select {
					case errorsChan <- fmt.Errorf("subscription %d: %d events dropped, subscriber too slow", id, n):
					default:
					}
				}

				var event T
				if err := json.Unmarshal(data, &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to decode %s event: %w", req.Method(), err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	sub := &Subscription[T]{
		events: eventsChan,
		errors: errorsChan,
		cancel: func() {
			cancelFunc()
			c.forget(id)
			box.end(ErrClosed)

			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			c.call(stopCtx, protocol.StopRequest{SubscriptionID: id}, nil)
		},
	}

	// Context cancellation also stops the subscription.
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-subCtx.Done():
		}
	}()

	return sub, nil
}

// WatchAgents streams the roster. The current roster arrives first, then
// the full roster after every join or leave.
func (c *Client) WatchAgents(ctx context.Context) (*Subscription[[]coordination.Agent], error) {
	return watch[[]coordination.Agent](ctx, c, protocol.WatchAgentsRequest{})
}

// WatchContext streams every context entry as it is shared.
func (c *Client) WatchContext(ctx context.Context) (*Subscription[coordination.ContextEntry], error) {
	return watch[coordination.ContextEntry](ctx, c, protocol.WatchContextRequest{})
}

// WatchQuestions streams questions as they are asked and again as they are
// answered.
func (c *Client) WatchQuestions(ctx context.Context) (*Subscription[coordination.Question], error) {
	return watch[coordination.Question](ctx, c, protocol.WatchQuestionsRequest{})
}
