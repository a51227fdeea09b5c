// Package router maps protocol requests onto session store operations.
//
// A Router is shared by every connection; each connection gets a Conn that
// remembers which agent it joined as and which subscriptions it holds.
// Attributed operations (share, ask, answer, log) use that identity and fail
// with NOT_JOINED until the connection has joined.
package router

import (
	"sync"
	"sync/atomic"

	"github.com/dyluth/coordinator/internal/ids"
	"github.com/dyluth/coordinator/internal/session"
	"github.com/dyluth/coordinator/pkg/coordination"
	"github.com/dyluth/coordinator/pkg/protocol"
)

// Router dispatches requests for one session store.
type Router struct {
	store             *session.Store
	gen               ids.Generator
	leaveOnDisconnect bool
	conns             atomic.Int64
}

// Option configures a Router.
type Option func(*Router)

// WithGenerator sets the identifier and clock source for new entities.
func WithGenerator(gen ids.Generator) Option {
	return func(r *Router) {
		r.gen = gen
	}
}

// WithLeaveOnDisconnect removes a connection's agent from the roster when
// the connection closes.
func WithLeaveOnDisconnect(enabled bool) Option {
	return func(r *Router) {
		r.leaveOnDisconnect = enabled
	}
}

// New creates a Router over store.
func New(store *session.Store, opts ...Option) *Router {
	r := &Router{store: store, gen: ids.Default}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the store the router serves.
func (r *Router) Store() *session.Store {
	return r.store
}

// Connections returns the number of open Conns.
func (r *Router) Connections() int {
	return int(r.conns.Load())
}

// Sender delivers a message to the peer. It must not block on the session
// store: it is called from inside bus handlers.
type Sender func(protocol.Message)

// Conn is the router state of one client connection.
type Conn struct {
	router *Router
	send   Sender

	mu      sync.Mutex
	agentID string
	subs    map[uint64]*subscription
	closed  bool
}

// Connect registers a new connection whose replies and events go to send.
func (r *Router) Connect(send Sender) *Conn {
	r.conns.Add(1)
	return &Conn{
		router: r,
		send:   send,
		subs:   make(map[uint64]*subscription),
	}
}

// AgentID returns the agent this connection joined as, or "".
func (c *Conn) AgentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agentID
}

// Handle processes one request message. Exactly one result or error reply
// is sent for it; a subscribe is acknowledged before any of its events.
func (c *Conn) Handle(msg protocol.Message) {
	if !msg.Type.IsRequest() {
		c.send(protocol.NewError(msg.ID, protocol.Errorf(protocol.CodeInvalidInput, "unexpected message type: %q", msg.Type)))
		return
	}

	req, perr := protocol.DecodeRequest(msg.Method, msg.Params)
	if perr != nil {
		c.send(protocol.NewError(msg.ID, perr))
		return
	}

	isSub := protocol.IsSubscription(msg.Method)
	if isSub != (msg.Type == protocol.TypeSubscribe) {
		c.send(protocol.NewError(msg.ID, protocol.Errorf(protocol.CodeInvalidInput,
			"method %s cannot be sent as %s", msg.Method, msg.Type)))
		return
	}

	if isSub {
		c.subscribe(msg.ID, req)
		return
	}

	result, perr := c.Call(req)
	if perr != nil {
		c.send(protocol.NewError(msg.ID, perr))
		return
	}
	c.reply(msg.ID, result)
}

func (c *Conn) reply(id uint64, result any) {
	out, err := protocol.NewResult(id, result)
	if err != nil {
		c.send(protocol.NewError(id, protocol.Errorf(protocol.CodeInternal, "%v", err)))
		return
	}
	c.send(out)
}

// Call runs a non-subscription request and returns its result.
func (c *Conn) Call(req protocol.Request) (any, *protocol.Error) {
	store := c.router.store
	gen := c.router.gen

	switch req := req.(type) {
	case protocol.JoinRequest:
		agent := coordination.Agent{
			ID:          gen.NewID(),
			Name:        req.Name,
			Role:        req.Role,
			RepoPath:    req.RepoPath,
			ConnectedAt: gen.Now(),
		}
		store.AddAgent(agent)
		c.mu.Lock()
		c.agentID = agent.ID
		c.mu.Unlock()
		return protocol.JoinResult{Agent: agent, SessionID: store.SessionID()}, nil

	case protocol.LeaveRequest:
		removed := store.RemoveAgent(req.AgentID)
		c.mu.Lock()
		if c.agentID == req.AgentID {
			c.agentID = ""
		}
		c.mu.Unlock()
		return protocol.SuccessResult{Success: removed}, nil

	case protocol.ListAgentsRequest:
		return store.ListAgents(), nil

	case protocol.ShareContextRequest:
		agentID, perr := c.requireAgent()
		if perr != nil {
			return nil, perr
		}
		now := gen.Now()
		tags := req.Tags
		if tags == nil {
			tags = []string{}
		}
		return store.SetContext(coordination.ContextEntry{
			ID:        gen.NewID(),
			Key:       req.Key,
			Value:     req.Value,
			Tags:      tags,
			CreatedBy: agentID,
			CreatedAt: now,
			UpdatedAt: now,
		}), nil

	case protocol.GetContextRequest:
		entry, ok := store.GetContext(req.Key)
		if !ok {
			return nil, nil
		}
		return entry, nil

	case protocol.ListContextRequest:
		return store.ListContext(session.ContextFilter{Tags: req.Tags, CreatedBy: req.CreatedBy}), nil

	case protocol.AskRequest:
		agentID, perr := c.requireAgent()
		if perr != nil {
			return nil, perr
		}
		q := coordination.Question{
			ID:        gen.NewID(),
			Question:  req.Question,
			From:      agentID,
			To:        req.To,
			Status:    coordination.QuestionStatusPending,
			CreatedAt: gen.Now(),
		}
		store.AddQuestion(q)
		return q, nil

	case protocol.AnswerRequest:
		agentID, perr := c.requireAgent()
		if perr != nil {
			return nil, perr
		}
		answered, ok := store.AnswerQuestion(req.QuestionID, req.Answer, agentID)
		if !ok {
			return nil, protocol.ErrQuestionNotFound(req.QuestionID)
		}
		return answered, nil

	case protocol.ListPendingRequest:
		return store.ListPendingQuestions(req.AgentID), nil

	case protocol.LogDecisionRequest:
		agentID, perr := c.requireAgent()
		if perr != nil {
			return nil, perr
		}
		d := coordination.Decision{
			ID:        gen.NewID(),
			Decision:  req.Decision,
			Rationale: req.Rationale,
			By:        agentID,
			CreatedAt: gen.Now(),
		}
		store.AddDecision(d)
		return d, nil

	case protocol.ListDecisionsRequest:
		return store.ListDecisions(), nil

	case protocol.StopRequest:
		return protocol.SuccessResult{Success: c.unsubscribe(req.SubscriptionID)}, nil

	case protocol.WatchAgentsRequest, protocol.WatchContextRequest, protocol.WatchQuestionsRequest:
		return nil, protocol.Errorf(protocol.CodeInvalidInput, "%s must be sent as a subscription", req.Method())

	default:
		return nil, protocol.Errorf(protocol.CodeUnknownMethod, "unknown method: %q", req.Method())
	}
}

func (c *Conn) requireAgent() (string, *protocol.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.agentID == "" {
		return "", protocol.ErrNotJoined()
	}
	return c.agentID, nil
}

// Close disposes every subscription of the connection and, if the router
// was configured to, removes the agent it joined as. Safe to call twice.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	agentID := c.agentID
	c.agentID = ""
	c.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}

	if c.router.leaveOnDisconnect && agentID != "" {
		c.router.store.RemoveAgent(agentID)
	}
	c.router.conns.Add(-1)
}
