package coordination

import (
	"fmt"
	"time"
)

// EventType identifies which change an Event describes.
type EventType string

const (
	// EventRosterChanged carries the full roster after a join or leave
	EventRosterChanged EventType = "roster_changed"

	// EventContextChanged carries one entry after a share
	EventContextChanged EventType = "context_changed"

	// EventQuestionAsked carries a newly asked question
	EventQuestionAsked EventType = "question_asked"

	// EventQuestionAnswered carries a question after it was answered
	EventQuestionAnswered EventType = "question_answered"
)

// Event is a single state change as seen by out-of-process observers.
// Exactly one of Agents, Entry or Question is meaningful, chosen by Type.
type Event struct {
	Type      EventType     `json:"type"`
	SessionID string        `json:"sessionId"`
	Agents    []Agent       `json:"agents,omitempty"`   // roster_changed; empty means nobody is connected
	Entry     *ContextEntry `json:"entry,omitempty"`    // context_changed
	Question  *Question     `json:"question,omitempty"` // question_asked, question_answered
	At        time.Time     `json:"at"`
}

// Stream returns the event stream the type belongs to: roster, context or question.
func (t EventType) Stream() string {
	switch t {
	case EventRosterChanged:
		return StreamRoster
	case EventContextChanged:
		return StreamContext
	case EventQuestionAsked, EventQuestionAnswered:
		return StreamQuestion
	default:
		return ""
	}
}

// Validate checks if the EventType is a valid enum value.
func (t EventType) Validate() error {
	if t.Stream() == "" {
		return fmt.Errorf("unknown event type: %q", t)
	}
	return nil
}

// Validate checks that the event carries the payload its type requires.
func (e *Event) Validate() error {
	if err := e.Type.Validate(); err != nil {
		return err
	}

	switch e.Type {
	case EventContextChanged:
		if e.Entry == nil {
			return fmt.Errorf("%s event missing entry", e.Type)
		}
	case EventQuestionAsked, EventQuestionAnswered:
		if e.Question == nil {
			return fmt.Errorf("%s event missing question", e.Type)
		}
	}

	return nil
}

// RosterEvent builds a roster_changed event.
func RosterEvent(sessionID string, agents []Agent, at time.Time) Event {
	return Event{Type: EventRosterChanged, SessionID: sessionID, Agents: agents, At: at}
}

// ContextEvent builds a context_changed event.
func ContextEvent(sessionID string, entry ContextEntry, at time.Time) Event {
	return Event{Type: EventContextChanged, SessionID: sessionID, Entry: &entry, At: at}
}

// QuestionEvent builds a question_asked or question_answered event depending
// on the question's status.
func QuestionEvent(sessionID string, q Question, at time.Time) Event {
	t := EventQuestionAsked
	if q.Status == QuestionStatusAnswered {
		t = EventQuestionAnswered
	}
	return Event{Type: t, SessionID: sessionID, Question: &q, At: at}
}
