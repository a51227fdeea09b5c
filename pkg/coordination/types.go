package coordination

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Agent is a connected participant in the coordination session.
type Agent struct {
	ID          string    `json:"id"`          // UUID - assigned by the hub on join
	Name        string    `json:"name"`        // Human-readable agent name
	Role        Role      `json:"role"`        // source or target
	RepoPath    string    `json:"repoPath"`    // Workspace the agent operates in
	ConnectedAt time.Time `json:"connectedAt"` // When the agent joined
}

// Role defines whether an agent provides or receives knowledge.
type Role string

const (
	// RoleSource marks an agent that provides knowledge
	RoleSource Role = "source"

	// RoleTarget marks an agent that receives knowledge
	RoleTarget Role = "target"
)

// ContextEntry is a shared key/value fact visible to every agent.
type ContextEntry struct {
	ID        string    `json:"id"`        // UUID - preserved across upserts
	Key       string    `json:"key"`       // Unique key, the upsert identity
	Value     string    `json:"value"`     // Opaque content, may itself be serialized data
	Tags      []string  `json:"tags"`      // Labels used for filtering
	CreatedBy string    `json:"createdBy"` // Agent that first shared the key
	CreatedAt time.Time `json:"createdAt"` // First share
	UpdatedAt time.Time `json:"updatedAt"` // Latest share
}

// Question is a query posed by one agent, optionally to a specific agent.
type Question struct {
	ID         string         `json:"id"`                   // UUID
	Question   string         `json:"question"`             // Question text
	From       string         `json:"from"`                 // Asking agent
	To         string         `json:"to,omitempty"`         // Addressed agent, empty for everyone
	Answer     string         `json:"answer,omitempty"`     // Set once answered
	AnsweredBy string         `json:"answeredBy,omitempty"` // Set once answered
	Status     QuestionStatus `json:"status"`               // pending or answered
	CreatedAt  time.Time      `json:"createdAt"`
	AnsweredAt *time.Time     `json:"answeredAt,omitempty"` // Present iff Status is answered
}

// QuestionStatus is the lifecycle state of a question.
// The only transition is pending → answered.
type QuestionStatus string

const (
	// QuestionStatusPending indicates the question is waiting for an answer
	QuestionStatusPending QuestionStatus = "pending"

	// QuestionStatusAnswered indicates the question has been answered
	QuestionStatusAnswered QuestionStatus = "answered"
)

// Decision is an immutable record in the session's decision log.
type Decision struct {
	ID        string    `json:"id"`                  // UUID
	Decision  string    `json:"decision"`            // What was decided
	Rationale string    `json:"rationale,omitempty"` // Why, if given
	By        string    `json:"by"`                  // Recording agent
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a copy of the entry that shares no memory with e.
func (e ContextEntry) Clone() ContextEntry {
	e.Tags = slices.Clone(e.Tags)
	if e.Tags == nil {
		e.Tags = []string{}
	}
	return e
}

// HasTags reports whether the entry carries every tag in tags.
func (e ContextEntry) HasTags(tags []string) bool {
	for _, tag := range tags {
		if !slices.Contains(e.Tags, tag) {
			return false
		}
	}
	return true
}

// Clone returns a copy of the question that shares no memory with q.
func (q Question) Clone() Question {
	if q.AnsweredAt != nil {
		at := *q.AnsweredAt
		q.AnsweredAt = &at
	}
	return q
}

// IsPending reports whether the question is still waiting for an answer.
func (q Question) IsPending() bool {
	return q.Status == QuestionStatusPending
}

// Validate checks if the Role is a valid enum value.
func (r Role) Validate() error {
	switch r {
	case RoleSource, RoleTarget:
		return nil
	default:
		return fmt.Errorf("unknown role: %q (must be 'source' or 'target')", r)
	}
}

// Validate checks if the QuestionStatus is a valid enum value.
func (s QuestionStatus) Validate() error {
	switch s {
	case QuestionStatusPending, QuestionStatusAnswered:
		return nil
	default:
		return fmt.Errorf("unknown question status: %q", s)
	}
}

// Validate checks if the Agent has valid field values.
func (a *Agent) Validate() error {
	if !IsValidID(a.ID) {
		return fmt.Errorf("invalid agent ID: not a valid UUID")
	}

	if a.Name == "" {
		return fmt.Errorf("agent name cannot be empty")
	}

	if err := a.Role.Validate(); err != nil {
		return fmt.Errorf("invalid role: %w", err)
	}

	if a.RepoPath == "" {
		return fmt.Errorf("repo path cannot be empty")
	}

	return nil
}

// Validate checks if the ContextEntry has valid field values.
// An empty value is allowed.
func (e *ContextEntry) Validate() error {
	if !IsValidID(e.ID) {
		return fmt.Errorf("invalid context entry ID: not a valid UUID")
	}

	if e.Key == "" {
		return fmt.Errorf("context key cannot be empty")
	}

	if !IsValidID(e.CreatedBy) {
		return fmt.Errorf("invalid createdBy: not a valid UUID")
	}

	if e.UpdatedAt.Before(e.CreatedAt) {
		return fmt.Errorf("updatedAt cannot be before createdAt")
	}

	return nil
}

// Validate checks if the Question has valid field values and a consistent
// lifecycle state.
func (q *Question) Validate() error {
	if !IsValidID(q.ID) {
		return fmt.Errorf("invalid question ID: not a valid UUID")
	}

	if q.Question == "" {
		return fmt.Errorf("question text cannot be empty")
	}

	if !IsValidID(q.From) {
		return fmt.Errorf("invalid from: not a valid UUID")
	}

	if q.To != "" && !IsValidID(q.To) {
		return fmt.Errorf("invalid to: not a valid UUID")
	}

	if err := q.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	answered := q.Status == QuestionStatusAnswered
	if answered != (q.AnsweredAt != nil) {
		return fmt.Errorf("answeredAt must be set if and only if status is answered")
	}

	if answered && q.AnsweredBy != "" && !IsValidID(q.AnsweredBy) {
		return fmt.Errorf("invalid answeredBy: not a valid UUID")
	}

	return nil
}

// Validate checks if the Decision has valid field values.
func (d *Decision) Validate() error {
	if !IsValidID(d.ID) {
		return fmt.Errorf("invalid decision ID: not a valid UUID")
	}

	if d.Decision == "" {
		return fmt.Errorf("decision text cannot be empty")
	}

	if !IsValidID(d.By) {
		return fmt.Errorf("invalid by: not a valid UUID")
	}

	return nil
}

// IsValidID checks if a string is a valid UUID.
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
