package coordination

import "fmt"

// Redis channel helpers
//
// Mirrored events are namespaced by session so that several hubs can share
// one Redis server without their observers seeing each other's traffic.
//
// Channel pattern: coordinator:{session_id}:{stream}_events

// Event streams. Each stream is independent; no ordering holds across them.
const (
	StreamRoster   = "roster"
	StreamContext  = "context"
	StreamQuestion = "question"
)

// Streams lists every event stream in a fixed order.
var Streams = []string{StreamRoster, StreamContext, StreamQuestion}

// EventsChannel returns the Pub/Sub channel for one stream of a session.
// Pattern: coordinator:{session_id}:{stream}_events
func EventsChannel(prefix, sessionID, stream string) string {
	return fmt.Sprintf("%s:%s:%s_events", prefix, sessionID, stream)
}

// RosterEventsChannel returns the Pub/Sub channel for roster events.
// Pattern: coordinator:{session_id}:roster_events
func RosterEventsChannel(prefix, sessionID string) string {
	return EventsChannel(prefix, sessionID, StreamRoster)
}

// ContextEventsChannel returns the Pub/Sub channel for context events.
// Pattern: coordinator:{session_id}:context_events
func ContextEventsChannel(prefix, sessionID string) string {
	return EventsChannel(prefix, sessionID, StreamContext)
}

// QuestionEventsChannel returns the Pub/Sub channel for question events.
// Asked and answered events share this channel.
// Pattern: coordinator:{session_id}:question_events
func QuestionEventsChannel(prefix, sessionID string) string {
	return EventsChannel(prefix, sessionID, StreamQuestion)
}

// DefaultChannelPrefix is the first segment of every channel name.
const DefaultChannelPrefix = "coordinator"
