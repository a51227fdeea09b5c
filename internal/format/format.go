// Package format renders session state for the terminal: aligned tables for
// people, JSONL for scripts.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/coordinator/pkg/coordination"
)

// OutputFormat selects between table and machine-readable output.
type OutputFormat string

const (
	// OutputFormatDefault is a human-readable table
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL is one JSON object per line
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSONL:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown format: %s", s)
	}
}

// now is replaced in tests.
var now = time.Now

// Agents writes the roster as a table and returns the number of rows.
func Agents(w io.Writer, agents []coordination.Agent) int {
	if len(agents) == 0 {
		fmt.Fprintln(w, "No agents connected")
		return 0
	}

	row := "%-10s %-20s %-7s %-8s %s\n"
	fmt.Fprintf(w, row, "ID", "NAME", "ROLE", "JOINED", "REPO")
	fmt.Fprintf(w, row, dashes(10), dashes(20), dashes(7), dashes(8), dashes(30))
	for _, a := range agents {
		fmt.Fprintf(w, row, ShortID(a.ID), truncate(a.Name, 20), a.Role, Age(a.ConnectedAt), a.RepoPath)
	}

	fmt.Fprintf(w, "\n%s connected\n", plural(len(agents), "agent"))
	return len(agents)
}

// Context writes context entries as a table and returns the number of rows.
func Context(w io.Writer, entries []coordination.ContextEntry) int {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No context entries found")
		return 0
	}

	row := "%-24s %-20s %-10s %-8s %s\n"
	fmt.Fprintf(w, row, "KEY", "TAGS", "BY", "UPDATED", "VALUE")
	fmt.Fprintf(w, row, dashes(24), dashes(20), dashes(10), dashes(8), dashes(40))
	for _, e := range entries {
		fmt.Fprintf(w, row, truncate(e.Key, 24), tags(e.Tags), ShortID(e.CreatedBy), Age(e.UpdatedAt), FirstLine(e.Value, 40))
	}

	fmt.Fprintf(w, "\n%s found\n", plural(len(entries), "entry"))
	return len(entries)
}

// Questions writes questions as a table and returns the number of rows.
func Questions(w io.Writer, questions []coordination.Question) int {
	if len(questions) == 0 {
		fmt.Fprintln(w, "No questions found")
		return 0
	}

	row := "%-10s %-9s %-10s %-10s %-8s %s\n"
	fmt.Fprintf(w, row, "ID", "STATUS", "FROM", "TO", "ASKED", "QUESTION")
	fmt.Fprintf(w, row, dashes(10), dashes(9), dashes(10), dashes(10), dashes(8), dashes(40))
	for _, q := range questions {
		to := "everyone"
		if q.To != "" {
			to = ShortID(q.To)
		}
		fmt.Fprintf(w, row, ShortID(q.ID), q.Status, ShortID(q.From), to, Age(q.CreatedAt), FirstLine(q.Question, 40))
	}

	fmt.Fprintf(w, "\n%s found\n", plural(len(questions), "question"))
	return len(questions)
}

// Decisions writes the decision log in recording order and returns the
// number of rows.
func Decisions(w io.Writer, decisions []coordination.Decision) int {
	if len(decisions) == 0 {
		fmt.Fprintln(w, "No decisions logged")
		return 0
	}

	for i, d := range decisions {
		fmt.Fprintf(w, "%d. %s\n", i+1, d.Decision)
		if d.Rationale != "" {
			fmt.Fprintf(w, "   because: %s\n", d.Rationale)
		}
		fmt.Fprintf(w, "   by %s, %s\n", ShortID(d.By), Age(d.CreatedAt))
	}

	fmt.Fprintf(w, "\n%s logged\n", plural(len(decisions), "decision"))
	return len(decisions)
}

// JSONL writes each item as a single JSON object on its own line.
func JSONL[T any](w io.Writer, items []T) error {
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal item to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// SingleJSON writes v as pretty-printed JSON followed by a newline.
func SingleJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// ShortID keeps the first 8 characters of an identifier.
func ShortID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// FirstLine returns the first non-blank line of s, cut to limit characters.
// Blank input returns "-".
func FirstLine(s string, limit int) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return truncate(trimmed, limit)
		}
	}
	return "-"
}

// Age renders how long ago t was: "12s ago", "3m ago", "2h ago", "4d ago".
func Age(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	diff := now().Sub(t)
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

func tags(t []string) string {
	if len(t) == 0 {
		return "-"
	}
	return truncate(strings.Join(t, ","), 20)
}

func dashes(n int) string {
	return strings.Repeat("-", n)
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	if strings.HasSuffix(noun, "y") {
		return fmt.Sprintf("%d %sies", n, strings.TrimSuffix(noun, "y"))
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
