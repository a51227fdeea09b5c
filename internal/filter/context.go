// Package filter narrows context listings on the client side.
package filter

import (
	"path/filepath"

	"github.com/dyluth/coordinator/internal/timespec"
	"github.com/dyluth/coordinator/pkg/coordination"
)

// Criteria are ANDed together. Zero values match everything.
type Criteria struct {
	KeyGlob string         // filepath.Match pattern on the entry key
	Window  timespec.Range // Applied to UpdatedAt
}

// Matches reports whether entry passes every criterion.
func (c *Criteria) Matches(entry coordination.ContextEntry) bool {
	if !c.Window.Contains(entry.UpdatedAt) {
		return false
	}

	if c.KeyGlob != "" {
		matched, err := filepath.Match(c.KeyGlob, entry.Key)
		if err != nil || !matched {
			return false
		}
	}

	return true
}

// IsEmpty reports whether c would match everything.
func (c *Criteria) IsEmpty() bool {
	return c.KeyGlob == "" && c.Window.IsZero()
}

// Validate rejects a malformed key pattern.
func (c *Criteria) Validate() error {
	if c.KeyGlob == "" {
		return nil
	}
	_, err := filepath.Match(c.KeyGlob, "")
	return err
}

// Apply returns the entries that match c, keeping their order.
func Apply(entries []coordination.ContextEntry, c *Criteria) []coordination.ContextEntry {
	if c == nil || c.IsEmpty() {
		return entries
	}
	out := make([]coordination.ContextEntry, 0, len(entries))
	for _, e := range entries {
		if c.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}
