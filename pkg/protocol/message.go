// Package protocol defines the messages exchanged between coordinator clients
// and the hub over a WebSocket connection.
//
// Every frame is one JSON Message. A client sends "call", "subscribe" or
// "unsubscribe" messages carrying a method and params; the hub answers each
// with a "result" or "error" message bearing the same id. After a subscribe is
// acknowledged, the hub pushes "event" messages that reuse the subscribe id
// until the subscription is stopped or the connection closes.
package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType distinguishes the kinds of frames on the wire.
type MessageType string

const (
	TypeCall        MessageType = "call"
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"
	TypeResult      MessageType = "result"
	TypeError       MessageType = "error"
	TypeEvent       MessageType = "event"
)

// Validate checks if the MessageType is a valid enum value.
func (t MessageType) Validate() error {
	switch t {
	case TypeCall, TypeSubscribe, TypeUnsubscribe, TypeResult, TypeError, TypeEvent:
		return nil
	default:
		return fmt.Errorf("unknown message type: %q", t)
	}
}

// IsRequest reports whether clients send this type.
func (t MessageType) IsRequest() bool {
	return t == TypeCall || t == TypeSubscribe || t == TypeUnsubscribe
}

// Message is the envelope for every frame.
type Message struct {
	ID     uint64          `json:"id"`
	Type   MessageType     `json:"type"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
	Event  json.RawMessage `json:"event,omitempty"`
}

// NewRequest builds a call, subscribe or unsubscribe message for req.
func NewRequest(id uint64, req Request) (Message, error) {
	params, err := json.Marshal(req)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %s params: %w", req.Method(), err)
	}

	msgType := TypeCall
	switch {
	case IsSubscription(req.Method()):
		msgType = TypeSubscribe
	case req.Method() == MethodSubscriptionStop:
		msgType = TypeUnsubscribe
	}

	return Message{ID: id, Type: msgType, Method: req.Method(), Params: params}, nil
}

// NewResult builds the successful reply to request id.
func NewResult(id uint64, result any) (Message, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal result: %w", err)
	}
	return Message{ID: id, Type: TypeResult, Result: data}, nil
}

// NewError builds the failed reply to request id.
func NewError(id uint64, err *Error) Message {
	return Message{ID: id, Type: TypeError, Error: err}
}

// NewEvent builds a push for the subscription opened by request id.
func NewEvent(id uint64, event any) (Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return Message{ID: id, Type: TypeEvent, Event: data}, nil
}

// Code classifies an Error.
type Code string

const (
	// CodeInvalidInput means the params failed validation
	CodeInvalidInput Code = "INVALID_INPUT"

	// CodeNotFound means the call named an entity that does not exist
	CodeNotFound Code = "NOT_FOUND"

	// CodeNotJoined means the call needs an agent identity and the connection has none
	CodeNotJoined Code = "NOT_JOINED"

	// CodeUnknownMethod means the method is not part of the protocol
	CodeUnknownMethod Code = "UNKNOWN_METHOD"

	// CodeInternal covers everything else
	CodeInternal Code = "INTERNAL"
)

// Error is a failure reported by the hub.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Errorf builds an Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrNotJoined is returned for attributed calls made before session.join.
func ErrNotJoined() *Error {
	return &Error{Code: CodeNotJoined, Message: "Not joined to session. Call session.join first."}
}

// ErrQuestionNotFound is returned when answering an unknown question.
func ErrQuestionNotFound(id string) *Error {
	return Errorf(CodeNotFound, "Question not found: %s", id)
}
