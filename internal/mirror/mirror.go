// Package mirror republishes session change events on Redis Pub/Sub so that
// processes outside the hub can watch a session.
//
// Nothing is stored in Redis. Events are JSON-encoded coordination.Event
// values published on coordinator:{session_id}:{stream}_events. Delivery is
// at-most-once: a watcher that is not subscribed when an event is published
// never sees it.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/dyluth/coordinator/internal/session"
	"github.com/dyluth/coordinator/pkg/coordination"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueSize bounds the number of events waiting to be published.
const DefaultQueueSize = 256

// Publisher forwards events from a session store's bus to Redis.
//
// Bus handlers only enqueue; Run does the network I/O. When the queue is
// full the event is dropped and counted.
type Publisher struct {
	rdb    *redis.Client
	prefix string
	store  *session.Store
	queue  chan coordination.Event

	dropped   atomic.Int64
	published atomic.Int64

	mu   sync.Mutex
	subs []*session.Subscription
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithQueueSize sets the publish queue capacity.
func WithQueueSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.queue = make(chan coordination.Event, n)
		}
	}
}

// NewPublisher creates a publisher for store. Call Attach to start receiving
// events and Run to publish them.
func NewPublisher(rdb *redis.Client, prefix string, store *session.Store, opts ...Option) *Publisher {
	if prefix == "" {
		prefix = coordination.DefaultChannelPrefix
	}
	p := &Publisher{
		rdb:    rdb,
		prefix: prefix,
		store:  store,
		queue:  make(chan coordination.Event, DefaultQueueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Attach subscribes the publisher to every topic of the store's bus. Events
// carry the session ID current at attach time; after a store Reset, Detach
// and Attach again.
func (p *Publisher) Attach() {
	bus := p.store.Bus()
	sessionID := p.store.SessionID()
	now := p.store.Now // reads the clock only, never the store's state lock

	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs,
		bus.Roster.Subscribe(func(agents []coordination.Agent) {
			p.enqueue(coordination.RosterEvent(sessionID, agents, now()))
		}),
		bus.Context.Subscribe(func(entry coordination.ContextEntry) {
			p.enqueue(coordination.ContextEvent(sessionID, entry, now()))
		}),
		bus.QuestionAsked.Subscribe(func(q coordination.Question) {
			p.enqueue(coordination.QuestionEvent(sessionID, q, now()))
		}),
		bus.QuestionAnswered.Subscribe(func(q coordination.Question) {
			p.enqueue(coordination.QuestionEvent(sessionID, q, now()))
		}),
	)
}

// Detach unsubscribes from the bus. Events already queued are still
// published by Run.
func (p *Publisher) Detach() {
	p.mu.Lock()
	subs := p.subs
	p.subs = nil
	p.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (p *Publisher) enqueue(event coordination.Event) {
	select {
	case p.queue <- event:
	default:
		if n := p.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Printf("[Mirror] Publish queue full, dropped %d events so far", n)
		}
	}
}

// Run publishes queued events until ctx is cancelled. Publish failures are
// logged and the event is skipped.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-p.queue:
			if err := p.Publish(ctx, event); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Printf("[Mirror] %v", err)
			}
		}
	}
}

// Publish sends one event to its stream channel.
func (p *Publisher) Publish(ctx context.Context, event coordination.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("refusing to publish invalid event: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}

	channel := coordination.EventsChannel(p.prefix, event.SessionID, event.Type.Stream())
	if err := p.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event to %s: %w", event.Type, channel, err)
	}
	p.published.Add(1)
	return nil
}

// Ping verifies Redis connectivity. Useful for health checks.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Stats reports how many events were published and dropped.
func (p *Publisher) Stats() (published, dropped int64) {
	return p.published.Load(), p.dropped.Load()
}
