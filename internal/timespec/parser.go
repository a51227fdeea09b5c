// Package timespec parses the --since and --until flags of the query
// commands.
package timespec

import (
	"fmt"
	"time"
)

var now = time.Now

// Parse parses a time specification. Two forms are accepted:
//   - Go durations ("1h", "30m", "1h30m"), meaning that long ago
//   - RFC3339 timestamps ("2026-01-02T15:04:05Z")
func Parse(spec string) (time.Time, error) {
	if spec == "" {
		return time.Time{}, fmt.Errorf("empty time specification")
	}

	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t, nil
	}

	if d, err := time.ParseDuration(spec); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("invalid time specification: %s (duration must not be negative)", spec)
		}
		return now().Add(-d), nil
	}

	return time.Time{}, fmt.Errorf("invalid time specification: %s (use duration like '1h30m' or RFC3339 like '2026-01-02T15:04:05Z')", spec)
}

// Range is a half-open time window. A zero bound is unbounded.
type Range struct {
	Since time.Time
	Until time.Time
}

// ParseRange parses both flags. Either may be empty.
func ParseRange(since, until string) (Range, error) {
	var r Range
	var err error

	if since != "" {
		if r.Since, err = Parse(since); err != nil {
			return Range{}, fmt.Errorf("invalid --since: %w", err)
		}
	}

	if until != "" {
		if r.Until, err = Parse(until); err != nil {
			return Range{}, fmt.Errorf("invalid --until: %w", err)
		}
	}

	if !r.Since.IsZero() && !r.Until.IsZero() && !r.Since.Before(r.Until) {
		return Range{}, fmt.Errorf("--since must be before --until")
	}

	return r, nil
}

// IsZero reports whether neither bound is set.
func (r Range) IsZero() bool {
	return r.Since.IsZero() && r.Until.IsZero()
}

// Contains reports whether t falls in [Since, Until).
func (r Range) Contains(t time.Time) bool {
	if !r.Since.IsZero() && t.Before(r.Since) {
		return false
	}
	if !r.Until.IsZero() && !t.Before(r.Until) {
		return false
	}
	return true
}

// Filter returns the items whose timestamp falls in r.
func Filter[T any](items []T, r Range, at func(T) time.Time) []T {
	if r.IsZero() {
		return items
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if r.Contains(at(item)) {
			out = append(out, item)
		}
	}
	return out
}
