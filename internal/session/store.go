// Package session holds the authoritative in-memory state of the live
// coordination session and announces every change to it on a Bus.
//
// A Store is an ordinary value: construct one with New and pass it to
// whatever needs it. Tests build as many isolated stores as they like.
//
// Concurrency: one mutex guards all four collections for the duration of each
// operation. A second, emission mutex serialises mutations that publish: it
// is taken before the state mutex and held until every handler has run, so
// change events are delivered in mutation order and before the mutating call
// returns. Handlers run with the state mutex released and may read the
// store. They must not mutate it, and a slow handler stalls every writer.
package session

import (
	"sync"
	"time"

	"github.com/dyluth/coordinator/internal/ids"
	"github.com/dyluth/coordinator/pkg/coordination"
)

// Store owns the agent roster, the context map, the question ledger and the
// decision log of one session.
type Store struct {
	mu     sync.Mutex
	emitMu sync.Mutex // taken before mu by every publishing mutation, held through publish

	gen ids.Generator
	bus *Bus

	sessionID string

	agents     map[string]coordination.Agent
	agentOrder []string

	context      map[string]coordination.ContextEntry // keyed by entry key
	contextOrder []string

	questions     map[string]coordination.Question
	questionOrder []string

	decisions []coordination.Decision
}

// Option configures a Store.
type Option func(*Store)

// WithSessionID uses id instead of a generated session identifier.
func WithSessionID(id string) Option {
	return func(s *Store) {
		s.sessionID = id
	}
}

// WithGenerator sets the identifier and clock source.
func WithGenerator(gen ids.Generator) Option {
	return func(s *Store) {
		s.gen = gen
	}
}

// ContextFilter narrows ListContext. All set fields are ANDed together.
type ContextFilter struct {
	Tags      []string // entry must carry every tag, empty = no filter
	CreatedBy string   // exact creator match, empty = no filter
}

// Matches returns true if the entry satisfies every active criterion.
func (f ContextFilter) Matches(e coordination.ContextEntry) bool {
	if len(f.Tags) > 0 && !e.HasTags(f.Tags) {
		return false
	}

	if f.CreatedBy != "" && e.CreatedBy != f.CreatedBy {
		return false
	}

	return true
}

// Stats is a point-in-time count of each collection.
type Stats struct {
	Agents    int `json:"agents"`
	Context   int `json:"context"`
	Questions int `json:"questions"`
	Pending   int `json:"pending"`
	Decisions int `json:"decisions"`
}

// New creates an empty session. A session identifier is generated unless
// WithSessionID supplies one.
func New(opts ...Option) *Store {
	s := &Store{
		gen: ids.Default,
		bus: NewBus(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessionID == "" {
		s.sessionID = s.gen.NewID()
	}
	s.clear()
	return s
}

func (s *Store) clear() {
	s.agents = make(map[string]coordination.Agent)
	s.agentOrder = nil
	s.context = make(map[string]coordination.ContextEntry)
	s.contextOrder = nil
	s.questions = make(map[string]coordination.Question)
	s.questionOrder = nil
	s.decisions = nil
}

// Bus returns the change channels of this store.
func (s *Store) Bus() *Bus {
	return s.bus
}

// SessionID returns the identifier of the current session.
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Now reads the store's clock.
func (s *Store) Now() time.Time {
	return s.gen.Now()
}

// Reset discards all state and starts a new session with the given id, or a
// generated one if id is empty. Subscribers stay registered. If anyone was
// connected, they are told the roster is now empty.
func (s *Store) Reset(id string) {
	s.lockForUpdate()
	if id == "" {
		id = s.gen.NewID()
	}
	hadAgents := len(s.agents) > 0
	s.sessionID = id
	s.clear()

	if !hadAgents {
		s.unlockQuiet()
		return
	}
	s.emitAndUnlock(func() { s.bus.Roster.Publish([]coordination.Agent{}) })
}

// lockForUpdate starts every mutation that may publish. The emission lock is
// always taken before s.mu, never the other way round.
func (s *Store) lockForUpdate() {
	s.emitMu.Lock()
	s.mu.Lock()
}

// unlockQuiet ends a mutation that publishes nothing.
func (s *Store) unlockQuiet() {
	s.mu.Unlock()
	s.emitMu.Unlock()
}

// emitAndUnlock releases s.mu, then publishes while still holding the
// emission lock, so events keep mutation order. Handlers run with s.mu free
// and may read the store. A handler that mutates the store deadlocks on
// emitMu.
func (s *Store) emitAndUnlock(publish func()) {
	s.mu.Unlock()
	defer s.emitMu.Unlock()
	publish()
}

// AddAgent inserts the agent under its ID and publishes the full roster.
// The ID is expected to be fresh; it is not checked here.
func (s *Store) AddAgent(agent coordination.Agent) {
	s.lockForUpdate()
	if _, exists := s.agents[agent.ID]; !exists {
		s.agentOrder = append(s.agentOrder, agent.ID)
	}
	s.agents[agent.ID] = agent
	roster := s.rosterLocked()

	s.emitAndUnlock(func() { s.bus.Roster.Publish(roster) })
}

// RemoveAgent deletes the agent and reports whether it existed. The roster is
// published only when something was removed.
func (s *Store) RemoveAgent(id string) bool {
	s.lockForUpdate()
	if _, exists := s.agents[id]; !exists {
		s.unlockQuiet()
		return false
	}
	delete(s.agents, id)
	s.agentOrder = removeString(s.agentOrder, id)
	roster := s.rosterLocked()

	s.emitAndUnlock(func() { s.bus.Roster.Publish(roster) })
	return true
}

// GetAgent returns the agent with the given ID.
func (s *Store) GetAgent(id string) (coordination.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[id]
	return agent, ok
}

// ListAgents returns the roster in join order.
func (s *Store) ListAgents() []coordination.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rosterLocked()
}

// WatchAgents subscribes fn to roster changes and returns the roster at the
// moment of subscription. Every change not reflected in that roster reaches
// fn. The latest change may arrive even though the roster already shows it.
func (s *Store) WatchAgents(fn func([]coordination.Agent)) (*Subscription, []coordination.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.bus.Roster.Subscribe(fn)
	return sub, s.rosterLocked()
}

func (s *Store) rosterLocked() []coordination.Agent {
	roster := make([]coordination.Agent, 0, len(s.agentOrder))
	for _, id := range s.agentOrder {
		roster = append(roster, s.agents[id])
	}
	return roster
}

// SetContext upserts the entry by key and publishes the stored result.
//
// For a new key the entry is stored as given, with a generated ID and
// timestamps filled in when missing. For an existing key the stored ID,
// creator and creation time are kept while value, tags and updatedAt are
// replaced. updatedAt never moves backwards.
func (s *Store) SetContext(entry coordination.ContextEntry) coordination.ContextEntry {
	entry = entry.Clone()

	s.lockForUpdate()
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = s.gen.Now()
	}

	if existing, ok := s.context[entry.Key]; ok {
		entry.ID = existing.ID
		entry.CreatedBy = existing.CreatedBy
		entry.CreatedAt = existing.CreatedAt
		if entry.UpdatedAt.Before(existing.UpdatedAt) {
			entry.UpdatedAt = existing.UpdatedAt
		}
	} else {
		if entry.ID == "" {
			entry.ID = s.gen.NewID()
		}
		if entry.CreatedAt.IsZero() || entry.CreatedAt.After(entry.UpdatedAt) {
			entry.CreatedAt = entry.UpdatedAt
		}
		s.contextOrder = append(s.contextOrder, entry.Key)
	}
	s.context[entry.Key] = entry
	stored := entry.Clone()

	s.emitAndUnlock(func() { s.bus.Context.Publish(stored) })
	return entry.Clone()
}

// GetContext returns the entry stored under key.
func (s *Store) GetContext(key string) (coordination.ContextEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.context[key]
	if !ok {
		return coordination.ContextEntry{}, false
	}
	return entry.Clone(), true
}

// ListContext returns the entries matching filter in first-share order.
func (s *Store) ListContext(filter ContextFilter) []coordination.ContextEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]coordination.ContextEntry, 0, len(s.contextOrder))
	for _, key := range s.contextOrder {
		entry := s.context[key]
		if filter.Matches(entry) {
			entries = append(entries, entry.Clone())
		}
	}
	return entries
}

// AddQuestion stores the question as pending and publishes it.
func (s *Store) AddQuestion(q coordination.Question) {
	q.Status = coordination.QuestionStatusPending
	q.Answer = ""
	q.AnsweredBy = ""
	q.AnsweredAt = nil

	s.lockForUpdate()
	if _, exists := s.questions[q.ID]; !exists {
		s.questionOrder = append(s.questionOrder, q.ID)
	}
	s.questions[q.ID] = q

	s.emitAndUnlock(func() { s.bus.QuestionAsked.Publish(q) })
}

// AnswerQuestion records an answer and publishes the updated question.
// It returns false, and publishes nothing, if no question has that ID.
//
// An already answered question is answered again: the new answer, answerer
// and time replace the old ones.
func (s *Store) AnswerQuestion(id, answer, answeredBy string) (coordination.Question, bool) {
	s.lockForUpdate()
	q, ok := s.questions[id]
	if !ok {
		s.unlockQuiet()
		return coordination.Question{}, false
	}

	answeredAt := s.gen.Now()
	q.Answer = answer
	q.AnsweredBy = answeredBy
	q.Status = coordination.QuestionStatusAnswered
	q.AnsweredAt = &answeredAt
	s.questions[id] = q
	published := q.Clone()

	s.emitAndUnlock(func() { s.bus.QuestionAnswered.Publish(published) })
	return q.Clone(), true
}

// GetQuestion returns the question with the given ID.
func (s *Store) GetQuestion(id string) (coordination.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return coordination.Question{}, false
	}
	return q.Clone(), true
}

// ListPendingQuestions returns unanswered questions in the order asked.
// With a non-empty target, questions addressed to some other agent are left
// out; open questions and those addressed to target stay.
func (s *Store) ListPendingQuestions(target string) []coordination.Question {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]coordination.Question, 0)
	for _, id := range s.questionOrder {
		q := s.questions[id]
		if !q.IsPending() {
			continue
		}
		if target != "" && q.To != "" && q.To != target {
			continue
		}
		pending = append(pending, q.Clone())
	}
	return pending
}

// AddDecision appends to the decision log. Decisions are not published.
func (s *Store) AddDecision(d coordination.Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
}

// ListDecisions returns a copy of the log in append order.
func (s *Store) ListDecisions() []coordination.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]coordination.Decision, len(s.decisions))
	copy(out, s.decisions)
	return out
}

// Stats counts the current contents of the store.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := 0
	for _, q := range s.questions {
		if q.IsPending() {
			pending++
		}
	}

	return Stats{
		Agents:    len(s.agents),
		Context:   len(s.context),
		Questions: len(s.questions),
		Pending:   pending,
		Decisions: len(s.decisions),
	}
}

func removeString(list []string, target string) []string {
	for i, v := range list {
		if v == target {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
