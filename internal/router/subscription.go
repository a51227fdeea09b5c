package router

import (
	"sync"

	"github.com/dyluth/coordinator/internal/session"
	"github.com/dyluth/coordinator/pkg/coordination"
	"github.com/dyluth/coordinator/pkg/protocol"
)

// subscription is one event stream opened by a subscribe message. Events
// raised before the subscribe has been acknowledged are held back so the
// peer always sees the ack first.
type subscription struct {
	id   uint64
	conn *Conn

	mu      sync.Mutex
	ready   bool
	done    bool
	pending []protocol.Message
	closers []*session.Subscription
}

func (s *subscription) deliver(event any) {
	msg, err := protocol.NewEvent(s.id, event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.done:
	case !s.ready:
		s.pending = append(s.pending, msg)
	default:
		s.conn.send(msg)
	}
}

// start sends the ack, then any initial events, then whatever was held back.
func (s *subscription) start(initial ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.reply(s.id, protocol.SuccessResult{Success: true})
	for _, event := range initial {
		if msg, err := protocol.NewEvent(s.id, event); err == nil {
			s.conn.send(msg)
		}
	}
	for _, msg := range s.pending {
		s.conn.send(msg)
	}
	s.pending = nil
	s.ready = true
}

// attach hands the bus subscriptions to s. If s was closed in the meantime
// they are closed at once and attach returns false.
func (s *subscription) attach(closers []*session.Subscription) bool {
	s.mu.Lock()
	if !s.done {
		s.closers = closers
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	for _, c := range closers {
		c.Close()
	}
	return false
}

func (s *subscription) close() {
	s.mu.Lock()
	s.done = true
	s.pending = nil
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	for _, c := range closers {
		c.Close()
	}
}

func (c *Conn) subscribe(id uint64, req protocol.Request) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, exists := c.subs[id]; exists {
		c.mu.Unlock()
		c.send(protocol.NewError(id, protocol.Errorf(protocol.CodeInvalidInput, "subscription %d already exists", id)))
		return
	}
	sub := &subscription{id: id, conn: c}
	c.subs[id] = sub
	c.mu.Unlock()

	bus := c.router.store.Bus()
	var closers []*session.Subscription
	var initial []any

	switch req.(type) {
	case protocol.WatchAgentsRequest:
		closer, roster := c.router.store.WatchAgents(func(agents []coordination.Agent) { sub.deliver(agents) })
		closers = append(closers, closer)
		initial = append(initial, roster)

	case protocol.WatchContextRequest:
		closers = append(closers,
			bus.Context.Subscribe(func(e coordination.ContextEntry) { sub.deliver(e) }))

	case protocol.WatchQuestionsRequest:
		onQuestion := func(q coordination.Question) { sub.deliver(q) }
		closers = append(closers,
			bus.QuestionAsked.Subscribe(onQuestion),
			bus.QuestionAnswered.Subscribe(onQuestion))
	}

	if !sub.attach(closers) {
		return
	}
	sub.start(initial...)
}

// unsubscribe stops subscription id and reports whether it existed.
func (c *Conn) unsubscribe(id uint64) bool {
	c.mu.Lock()
	sub, ok := c.subs[id]
	if ok {
		delete(c.subs, id)
	}
	c.mu.Unlock()

	if ok {
		sub.close()
	}
	return ok
}
