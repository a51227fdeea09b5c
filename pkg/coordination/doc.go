// Package coordination provides the shared Go definitions for the agent
// coordination hub: agents, context entries, questions, decisions, the events
// that describe changes to them, and the Redis channel names used when those
// events are mirrored out of process.
//
// # Overview
//
// A coordination session lets several coding agents, each working in its own
// repository, exchange structured facts while they collaborate. One hub
// process holds the single live session. Agents join it, share key/value
// context, ask and answer questions, and record decisions.
//
// # Core Concepts
//
// Agents are connected participants. A source agent provides knowledge and a
// target agent receives it.
//
// Context entries are shared facts addressed by key. Sharing an existing key
// replaces the value and tags but keeps the entry's identity, creator and
// creation time.
//
// Questions start pending and become answered once someone answers. A question may be
// addressed to one agent or left open to everyone.
//
// Decisions form an append-only log.
//
// # Usage Example
//
//	agent := coordination.Agent{
//		ID:          uuid.NewString(),
//		Name:        "api-service",
//		Role:        coordination.RoleSource,
//		RepoPath:    "/workspace/api",
//		ConnectedAt: time.Now().UTC(),
//	}
//	if err := agent.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
// # Redis Schema
//
// When the event mirror is enabled, events are published on channels
// namespaced by session: coordinator:{session_id}:{stream}_events
//
// Roster events: coordinator:{session_id}:roster_events
// Context events: coordinator:{session_id}:context_events
// Question events: coordinator:{session_id}:question_events
package coordination
