package session

import (
	"slices"
	"sync"

	"github.com/dyluth/coordinator/pkg/coordination"
)

// Topic is one typed event channel. Handlers run synchronously, in the order
// they subscribed, on the goroutine that publishes.
type Topic[T any] struct {
	mu       sync.Mutex
	nextID   uint64
	handlers []handler[T]
	clone    func(T) T
}

type handler[T any] struct {
	id uint64
	fn func(T)
}

// NewTopic creates a topic. If clone is non-nil every handler receives its
// own copy of the published value.
func NewTopic[T any](clone func(T) T) *Topic[T] {
	return &Topic[T]{clone: clone}
}

// Subscribe registers fn for every later Publish until the returned
// Subscription is closed. Values published before Subscribe are never seen.
func (t *Topic[T]) Subscribe(fn func(T)) *Subscription {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.handlers = append(t.handlers, handler[T]{id: id, fn: fn})
	t.mu.Unlock()

	return &Subscription{cancel: func() { t.remove(id) }}
}

// Publish delivers v to every registered handler and returns once all of
// them have run.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	handlers := slices.Clone(t.handlers)
	t.mu.Unlock()

	for _, h := range handlers {
		if t.clone != nil {
			h.fn(t.clone(v))
		} else {
			h.fn(v)
		}
	}
}

// Len returns the number of registered handlers.
func (t *Topic[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handlers)
}

func (t *Topic[T]) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = slices.DeleteFunc(t.handlers, func(h handler[T]) bool {
		return h.id == id
	})
}

// Subscription is the disposer returned by Topic.Subscribe.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// Close unregisters the handler. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Bus holds the four change channels of a session. They are independent:
// nothing orders an event on one topic relative to another.
type Bus struct {
	Roster           *Topic[[]coordination.Agent]      // full roster after join/leave
	Context          *Topic[coordination.ContextEntry] // entry after each share
	QuestionAsked    *Topic[coordination.Question]     // newly asked question
	QuestionAnswered *Topic[coordination.Question]     // question after answer
}

// NewBus creates a bus whose topics hand each handler a private copy.
func NewBus() *Bus {
	return &Bus{
		Roster:           NewTopic(cloneRoster),
		Context:          NewTopic(coordination.ContextEntry.Clone),
		QuestionAsked:    NewTopic(coordination.Question.Clone),
		QuestionAnswered: NewTopic(coordination.Question.Clone),
	}
}

func cloneRoster(agents []coordination.Agent) []coordination.Agent {
	out := make([]coordination.Agent, len(agents))
	copy(out, agents)
	return out
}
