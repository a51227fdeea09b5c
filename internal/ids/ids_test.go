package ids

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandom(t *testing.T) {
	t.Run("ids are unique uuids", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			id := Random{}.NewID()
			_, err := uuid.Parse(id)
			require.NoError(t, err)
			assert.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
	})

	t.Run("now is utc", func(t *testing.T) {
		assert.Equal(t, time.UTC, Random{}.Now().Location())
	})
}

func TestSequence(t *testing.T) {
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	seq := NewSequence(start, time.Second)

	t.Run("ids are valid and distinct", func(t *testing.T) {
		a := seq.NewID()
		b := seq.NewID()
		assert.NotEqual(t, a, b)
		for _, id := range []string{a, b} {
			_, err := uuid.Parse(id)
			assert.NoError(t, err)
		}
	})

	t.Run("clock advances by step", func(t *testing.T) {
		first := seq.Now()
		second := seq.Now()
		assert.Equal(t, start, first)
		assert.Equal(t, start.Add(time.Second), second)
	})
}
