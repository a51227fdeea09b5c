package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dyluth/coordinator/pkg/coordination"
	"github.com/redis/go-redis/v9"
)

// Subscription represents an active Pub/Sub subscription to mirrored events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *coordination.Event
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of session events.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *coordination.Event {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures and invalid events.
// The subscription continues after errors - messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe listens to every stream of sessionID. With an empty sessionID it
// pattern-subscribes to all sessions under prefix.
//
// Events are delivered on a buffered channel (size 10) to prevent blocking.
// If the subscriber is too slow, events may be dropped by Redis Pub/Sub.
func Subscribe(ctx context.Context, rdb *redis.Client, prefix, sessionID string) (*Subscription, error) {
	if prefix == "" {
		prefix = coordination.DefaultChannelPrefix
	}

	var pubsub *redis.PubSub
	if sessionID == "" {
		pubsub = rdb.PSubscribe(ctx, fmt.Sprintf("%s:*:*_events", prefix))
	} else {
		channels := make([]string, 0, len(coordination.Streams))
		for _, stream := range coordination.Streams {
			channels = append(channels, coordination.EventsChannel(prefix, sessionID, stream))
		}
		pubsub = rdb.Subscribe(ctx, channels...)
	}

	// Wait for the subscription to be confirmed so no event published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to session events: %w", err)
	}

	eventsChan := make(chan *coordination.Event, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				event, err := decodeEvent(msg.Payload)
				if err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to decode event on %s: %w", msg.Channel, err):
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

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

func decodeEvent(payload string) (*coordination.Event, error) {
	var event coordination.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, err
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}

// NewClient creates a Redis client from a redis:// URL.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}
