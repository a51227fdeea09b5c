// Package client is a Go client for the coordinator hub.
//
// A Client holds one WebSocket connection. Calls may be made from any number
// of goroutines; replies are matched to calls by message id. The agent
// identity established by Join belongs to the connection, so attributed
// calls (ShareContext, Ask, Answer, LogDecision) must follow a Join on the
// same Client.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dyluth/coordinator/pkg/coordination"
	"github.com/dyluth/coordinator/pkg/protocol"
	"github.com/gorilla/websocket"
)

// DefaultURL is where the hub listens unless configured otherwise.
const DefaultURL = "ws://localhost:3030"

// ErrClosed is returned by calls made after the connection ended.
var ErrClosed = errors.New("connection to coordinator closed")

// Client is a connection to the hub.
type Client struct {
	url string
	ws  *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan protocol.Message
	subs    map[uint64]inbox
	err     error

	done      chan struct{}
	closeOnce sync.Once
}

// inbox receives the raw events of one subscription.
type inbox interface {
	push(data json.RawMessage)
	end(err error)
}

// Dial connects to the hub at url.
func Dial(ctx context.Context, url string) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to coordinator at %s: %w", url, err)
	}

	c := &Client{
		url:     url,
		ws:      ws,
		pending: make(map[uint64]chan protocol.Message),
		subs:    make(map[uint64]inbox),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// URL returns the address the client dialled.
func (c *Client) URL() string {
	return c.url
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil while it is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close sends a close frame and releases the connection. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.ws.Close()
	})
	<-c.done
	return nil
}

func (c *Client) readLoop() {
	var readErr error
	defer func() {
		c.fail(readErr)
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			readErr = err
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case protocol.TypeResult, protocol.TypeError:
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if ok {
				ch <- msg
			}

		case protocol.TypeEvent:
			c.mu.Lock()
			sub, ok := c.subs[msg.ID]
			c.mu.Unlock()
			if ok {
				sub.push(msg.Event)
			}
		}
	}
}

// fail ends the connection, unblocking every waiting call and subscription.
func (c *Client) fail(err error) {
	if err == nil {
		err = ErrClosed
	} else {
		err = fmt.Errorf("%w: %w", ErrClosed, err)
	}

	c.mu.Lock()
	c.err = err
	pending := c.pending
	subs := c.subs
	c.pending = make(map[uint64]chan protocol.Message)
	c.subs = make(map[uint64]inbox)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	for _, sub := range subs {
		sub.end(err)
	}
	c.ws.Close()
	close(c.done)
}

func (c *Client) allocate() (uint64, chan protocol.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, nil, c.err
	}
	c.nextID++
	ch := make(chan protocol.Message, 1)
	c.pending[c.nextID] = ch
	return c.nextID, ch, nil
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	delete(c.subs, id)
	c.mu.Unlock()
}

func (c *Client) write(msg protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Method, err)
	}
	return nil
}

// roundTrip sends req under id and waits for its reply.
func (c *Client) roundTrip(ctx context.Context, id uint64, ch chan protocol.Message, req protocol.Request, out any) error {
	msg, err := protocol.NewRequest(id, req)
	if err != nil {
		c.forget(id)
		return err
	}

	if err := c.write(msg); err != nil {
		c.forget(id)
		return err
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return c.Err()
		}
		if reply.Type == protocol.TypeError {
			if reply.Error == nil {
				return protocol.Errorf(protocol.CodeInternal, "%s failed", req.Method())
			}
			return reply.Error
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(reply.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", req.Method(), err)
		}
		return nil

	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	}
}

func (c *Client) call(ctx context.Context, req protocol.Request, out any) error {
	id, ch, err := c.allocate()
	if err != nil {
		return err
	}
	return c.roundTrip(ctx, id, ch, req, out)
}

// Join registers this connection as an agent.
func (c *Client) Join(ctx context.Context, name string, role coordination.Role, repoPath string) (protocol.JoinResult, error) {
	var result protocol.JoinResult
	err := c.call(ctx, protocol.JoinRequest{Name: name, Role: role, RepoPath: repoPath}, &result)
	return result, err
}

// Leave removes an agent from the roster and reports whether it was present.
func (c *Client) Leave(ctx context.Context, agentID string) (bool, error) {
	var result protocol.SuccessResult
	err := c.call(ctx, protocol.LeaveRequest{AgentID: agentID}, &result)
	return result.Success, err
}

// ListAgents returns the roster.
func (c *Client) ListAgents(ctx context.Context) ([]coordination.Agent, error) {
	var agents []coordination.Agent
	err := c.call(ctx, protocol.ListAgentsRequest{}, &agents)
	return agents, err
}

// ShareContext upserts a context entry as the joined agent.
func (c *Client) ShareContext(ctx context.Context, key, value string, tags []string) (coordination.ContextEntry, error) {
	var entry coordination.ContextEntry
	err := c.call(ctx, protocol.ShareContextRequest{Key: key, Value: value, Tags: tags}, &entry)
	return entry, err
}

// GetContext returns the entry under key, or nil if there is none.
func (c *Client) GetContext(ctx context.Context, key string) (*coordination.ContextEntry, error) {
	var entry *coordination.ContextEntry
	err := c.call(ctx, protocol.GetContextRequest{Key: key}, &entry)
	return entry, err
}

// ListContext returns entries carrying every tag in tags and, if createdBy
// is set, created by that agent.
func (c *Client) ListContext(ctx context.Context, tags []string, createdBy string) ([]coordination.ContextEntry, error) {
	var entries []coordination.ContextEntry
	err := c.call(ctx, protocol.ListContextRequest{Tags: tags, CreatedBy: createdBy}, &entries)
	return entries, err
}

// Ask poses a question as the joined agent. An empty to addresses everyone.
func (c *Client) Ask(ctx context.Context, question, to string) (coordination.Question, error) {
	var q coordination.Question
	err := c.call(ctx, protocol.AskRequest{Question: question, To: to}, &q)
	return q, err
}

// Answer answers a question as the joined agent.
func (c *Client) Answer(ctx context.Context, questionID, answer string) (coordination.Question, error) {
	var q coordination.Question
	err := c.call(ctx, protocol.AnswerRequest{QuestionID: questionID, Answer: answer}, &q)
	return q, err
}

// ListPendingQuestions returns unanswered questions visible to agentID, or
// all of them if agentID is empty.
func (c *Client) ListPendingQuestions(ctx context.Context, agentID string) ([]coordination.Question, error) {
	var questions []coordination.Question
	err := c.call(ctx, protocol.ListPendingRequest{AgentID: agentID}, &questions)
	return questions, err
}

// LogDecision records a decision as the joined agent.
func (c *Client) LogDecision(ctx context.Context, decision, rationale string) (coordination.Decision, error) {
	var d coordination.Decision
	err := c.call(ctx, protocol.LogDecisionRequest{Decision: decision, Rationale: rationale}, &d)
	return d, err
}

// ListDecisions returns the decision log.
func (c *Client) ListDecisions(ctx context.Context) ([]coordination.Decision, error) {
	var decisions []coordination.Decision
	err := c.call(ctx, protocol.ListDecisionsRequest{}, &decisions)
	return decisions, err
}
