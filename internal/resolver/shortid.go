// Package resolver expands the short ID prefixes the CLI prints back into
// full identifiers.
package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dyluth/coordinator/pkg/coordination"
)

// MinShortIDLength is the shortest prefix accepted. Tables print eight.
const MinShortIDLength = 6

// Resolve returns the single candidate starting with shortID. A full
// identifier is returned as-is when it is a candidate.
func Resolve(shortID string, candidates []string) (string, error) {
	if coordination.IsValidID(shortID) {
		for _, c := range candidates {
			if c == shortID {
				return shortID, nil
			}
		}
		return "", &NotFoundError{ShortID: shortID}
	}

	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	seen := make(map[string]bool)
	var matches []string
	for _, c := range candidates {
		if strings.HasPrefix(c, shortID) && !seen[c] {
			seen[c] = true
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// AgentIDs returns the identifiers of agents.
func AgentIDs(agents []coordination.Agent) []string {
	ids := make([]string, 0, len(agents))
	for _, a := range agents {
		ids = append(ids, a.ID)
	}
	return ids
}

// NotFoundError indicates no candidate matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no agent found matching '%s'", e.ShortID)
}

// AmbiguousError indicates several candidates matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d agents", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError lists up to ten matches followed by a hint.
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "'%s' matches %d agents:\n", err.ShortID, len(err.Matches))

	shown := min(len(err.Matches), 10)
	for _, m := range err.Matches[:shown] {
		fmt.Fprintf(&b, "  %s\n", m)
	}
	if len(err.Matches) > shown {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-shown)
	}

	b.WriteString("\nUse a longer prefix to identify the agent.")
	return b.String()
}
