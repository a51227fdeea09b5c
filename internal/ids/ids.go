// Package ids produces identifiers and timestamps for new coordination entities.
package ids

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Generator mints identifiers and reads the clock. The session store and the
// router take a Generator so tests can pin both.
type Generator interface {
	NewID() string
	Now() time.Time
}

// Random issues random (version 4) UUIDs and wall-clock UTC timestamps.
type Random struct{}

// NewID returns a new random UUID string.
func (Random) NewID() string {
	return uuid.NewString()
}

// Now returns the current UTC time.
func (Random) Now() time.Time {
	return time.Now().UTC()
}

// Default is the Generator used when none is supplied.
var Default Generator = Random{}

// Sequence is a deterministic Generator for tests. IDs are real UUIDs derived
// from a counter so they pass boundary validation; the clock advances by Step
// on every call to Now.
type Sequence struct {
	mu      sync.Mutex
	counter uint64
	current time.Time
	Step    time.Duration
}

// NewSequence returns a Sequence starting at start and advancing by step.
func NewSequence(start time.Time, step time.Duration) *Sequence {
	return &Sequence{current: start.UTC(), Step: step}
}

// NewID returns the next counter-derived UUID.
func (s *Sequence) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++

	var u uuid.UUID
	for i := 0; i < 8; i++ {
		u[15-i] = byte(s.counter >> (8 * i))
	}
	// version 4, RFC 4122 variant
	u[6] = (u[6] & 0x0f) | 0x40
	u[8] = (u[8] & 0x3f) | 0x80
	return u.String()
}

// Now returns the current sequence time and then advances it.
func (s *Sequence) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.current
	s.current = s.current.Add(s.Step)
	return t
}
