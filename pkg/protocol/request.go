package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dyluth/coordinator/pkg/coordination"
)

// Method names. Subscriptions are the on* methods.
const (
	MethodSessionJoin          = "session.join"
	MethodSessionLeave         = "session.leave"
	MethodSessionList          = "session.list"
	MethodSessionOnAgentChange = "session.onAgentChange"

	MethodContextShare           = "context.share"
	MethodContextGet             = "context.get"
	MethodContextList            = "context.list"
	MethodContextOnContextChange = "context.onContextChange"

	MethodQuestionsAsk         = "questions.ask"
	MethodQuestionsAnswer      = "questions.answer"
	MethodQuestionsListPending = "questions.listPending"
	MethodQuestionsOnQuestion  = "questions.onQuestion"

	MethodDecisionsLog  = "decisions.log"
	MethodDecisionsList = "decisions.list"

	MethodSubscriptionStop = "subscription.stop"
)

// IsSubscription reports whether method opens an event stream.
func IsSubscription(method string) bool {
	switch method {
	case MethodSessionOnAgentChange, MethodContextOnContextChange, MethodQuestionsOnQuestion:
		return true
	default:
		return false
	}
}

// Request is one of the closed set of operations a client can invoke. The
// concrete types below are the only implementations.
type Request interface {
	Method() string
	Validate() error
	isRequest()
}

// JoinRequest registers the caller as an agent.
type JoinRequest struct {
	Name     string            `json:"name"`
	Role     coordination.Role `json:"role"`
	RepoPath string            `json:"repoPath"`
}

// LeaveRequest removes an agent from the roster.
type LeaveRequest struct {
	AgentID string `json:"agentId"`
}

// ListAgentsRequest reads the roster.
type ListAgentsRequest struct{}

// WatchAgentsRequest subscribes to roster changes.
type WatchAgentsRequest struct{}

// ShareContextRequest upserts a context entry as the connection's agent.
type ShareContextRequest struct {
	Key   string   `json:"key"`
	Value string   `json:"value"`
	Tags  []string `json:"tags,omitempty"`
}

// GetContextRequest reads one context entry.
type GetContextRequest struct {
	Key string `json:"key"`
}

// ListContextRequest reads context entries, optionally filtered.
type ListContextRequest struct {
	Tags      []string `json:"tags,omitempty"`
	CreatedBy string   `json:"createdBy,omitempty"`
}

// WatchContextRequest subscribes to context changes.
type WatchContextRequest struct{}

// AskRequest asks a question as the connection's agent.
type AskRequest struct {
	Question string `json:"question"`
	To       string `json:"to,omitempty"`
}

// AnswerRequest answers a question as the connection's agent.
type AnswerRequest struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// ListPendingRequest reads unanswered questions, optionally for one agent.
type ListPendingRequest struct {
	AgentID string `json:"agentId,omitempty"`
}

// WatchQuestionsRequest subscribes to questions being asked and answered.
type WatchQuestionsRequest struct{}

// LogDecisionRequest appends a decision as the connection's agent.
type LogDecisionRequest struct {
	Decision  string `json:"decision"`
	Rationale string `json:"rationale,omitempty"`
}

// ListDecisionsRequest reads the decision log.
type ListDecisionsRequest struct{}

// StopRequest ends the subscription opened by the subscribe message with
// the given id.
type StopRequest struct {
	SubscriptionID uint64 `json:"subscriptionId"`
}

func (JoinRequest) Method() string           { return MethodSessionJoin }
func (LeaveRequest) Method() string          { return MethodSessionLeave }
func (ListAgentsRequest) Method() string     { return MethodSessionList }
func (WatchAgentsRequest) Method() string    { return MethodSessionOnAgentChange }
func (ShareContextRequest) Method() string   { return MethodContextShare }
func (GetContextRequest) Method() string     { return MethodContextGet }
func (ListContextRequest) Method() string    { return MethodContextList }
func (WatchContextRequest) Method() string   { return MethodContextOnContextChange }
func (AskRequest) Method() string            { return MethodQuestionsAsk }
func (AnswerRequest) Method() string         { return MethodQuestionsAnswer }
func (ListPendingRequest) Method() string    { return MethodQuestionsListPending }
func (WatchQuestionsRequest) Method() string { return MethodQuestionsOnQuestion }
func (LogDecisionRequest) Method() string    { return MethodDecisionsLog }
func (ListDecisionsRequest) Method() string  { return MethodDecisionsList }
func (StopRequest) Method() string           { return MethodSubscriptionStop }

func (JoinRequest) isRequest()           {}
func (LeaveRequest) isRequest()          {}
func (ListAgentsRequest) isRequest()     {}
func (WatchAgentsRequest) isRequest()    {}
func (ShareContextRequest) isRequest()   {}
func (GetContextRequest) isRequest()     {}
func (ListContextRequest) isRequest()    {}
func (WatchContextRequest) isRequest()   {}
func (AskRequest) isRequest()            {}
func (AnswerRequest) isRequest()         {}
func (ListPendingRequest) isRequest()    {}
func (WatchQuestionsRequest) isRequest() {}
func (LogDecisionRequest) isRequest()    {}
func (ListDecisionsRequest) isRequest()  {}
func (StopRequest) isRequest()           {}

// Validate checks the join params.
func (r JoinRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if err := r.Role.Validate(); err != nil {
		return err
	}
	if r.RepoPath == "" {
		return fmt.Errorf("repoPath cannot be empty")
	}
	return nil
}

// Validate checks the agent id is a UUID.
func (r LeaveRequest) Validate() error {
	if !coordination.IsValidID(r.AgentID) {
		return fmt.Errorf("invalid agentId: not a valid UUID")
	}
	return nil
}

func (ListAgentsRequest) Validate() error     { return nil }
func (WatchAgentsRequest) Validate() error    { return nil }
func (WatchContextRequest) Validate() error   { return nil }
func (WatchQuestionsRequest) Validate() error { return nil }
func (ListDecisionsRequest) Validate() error  { return nil }

// Validate checks the key is set. An empty value is allowed.
func (r ShareContextRequest) Validate() error {
	if r.Key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	return nil
}

// Validate checks the key is set.
func (r GetContextRequest) Validate() error {
	if r.Key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	return nil
}

// Validate checks the optional creator filter.
func (r ListContextRequest) Validate() error {
	if r.CreatedBy != "" && !coordination.IsValidID(r.CreatedBy) {
		return fmt.Errorf("invalid createdBy: not a valid UUID")
	}
	return nil
}

// Validate checks the question text and optional target.
func (r AskRequest) Validate() error {
	if r.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	if r.To != "" && !coordination.IsValidID(r.To) {
		return fmt.Errorf("invalid to: not a valid UUID")
	}
	return nil
}

// Validate checks the question id and answer text.
func (r AnswerRequest) Validate() error {
	if !coordination.IsValidID(r.QuestionID) {
		return fmt.Errorf("invalid questionId: not a valid UUID")
	}
	if r.Answer == "" {
		return fmt.Errorf("answer cannot be empty")
	}
	return nil
}

// Validate checks the optional agent filter.
func (r ListPendingRequest) Validate() error {
	if r.AgentID != "" && !coordination.IsValidID(r.AgentID) {
		return fmt.Errorf("invalid agentId: not a valid UUID")
	}
	return nil
}

// Validate checks the decision text.
func (r LogDecisionRequest) Validate() error {
	if r.Decision == "" {
		return fmt.Errorf("decision cannot be empty")
	}
	return nil
}

// Validate checks a subscription is named.
func (r StopRequest) Validate() error {
	if r.SubscriptionID == 0 {
		return fmt.Errorf("subscriptionId is required")
	}
	return nil
}

// DecodeRequest parses and validates the params of method. The returned
// error is always an *Error: UNKNOWN_METHOD for a method outside the
// protocol, INVALID_INPUT for params that do not decode or validate.
func DecodeRequest(method string, params json.RawMessage) (Request, *Error) {
	var (
		req Request
		err error
	)
	switch method {
	case MethodSessionJoin:
		req, err = decodeInto[JoinRequest](params)
	case MethodSessionLeave:
		req, err = decodeInto[LeaveRequest](params)
	case MethodSessionList:
		req, err = decodeInto[ListAgentsRequest](params)
	case MethodSessionOnAgentChange:
		req, err = decodeInto[WatchAgentsRequest](params)
	case MethodContextShare:
		req, err = decodeInto[ShareContextRequest](params)
	case MethodContextGet:
		req, err = decodeInto[GetContextRequest](params)
	case MethodContextList:
		req, err = decodeInto[ListContextRequest](params)
	case MethodContextOnContextChange:
		req, err = decodeInto[WatchContextRequest](params)
	case MethodQuestionsAsk:
		req, err = decodeInto[AskRequest](params)
	case MethodQuestionsAnswer:
		req, err = decodeInto[AnswerRequest](params)
	case MethodQuestionsListPending:
		req, err = decodeInto[ListPendingRequest](params)
	case MethodQuestionsOnQuestion:
		req, err = decodeInto[WatchQuestionsRequest](params)
	case MethodDecisionsLog:
		req, err = decodeInto[LogDecisionRequest](params)
	case MethodDecisionsList:
		req, err = decodeInto[ListDecisionsRequest](params)
	case MethodSubscriptionStop:
		req, err = decodeInto[StopRequest](params)
	default:
		return nil, Errorf(CodeUnknownMethod, "unknown method: %q", method)
	}

	if err != nil {
		return nil, Errorf(CodeInvalidInput, "invalid params for %s: %v", method, err)
	}

	if err := req.Validate(); err != nil {
		return nil, Errorf(CodeInvalidInput, "invalid params for %s: %v", method, err)
	}

	return req, nil
}

func decodeInto[T Request](params json.RawMessage) (Request, error) {
	var req T
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return req, nil
	}
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, err
	}
	return req, nil
}

// JoinResult is returned by session.join.
type JoinResult struct {
	Agent     coordination.Agent `json:"agent"`
	SessionID string             `json:"sessionId"`
}

// SuccessResult is returned by session.leave, subscribe and subscription.stop.
type SuccessResult struct {
	Success bool `json:"success"`
}
