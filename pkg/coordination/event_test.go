package coordination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventTypeStream(t *testing.T) {
	assert.Equal(t, StreamRoster, EventRosterChanged.Stream())
	assert.Equal(t, StreamContext, EventContextChanged.Stream())
	assert.Equal(t, StreamQuestion, EventQuestionAsked.Stream())
	assert.Equal(t, StreamQuestion, EventQuestionAnswered.Stream())
	assert.Equal(t, "", EventType("bogus").Stream())
}

func TestQuestionEvent(t *testing.T) {
	now := time.Now()

	t.Run("pending question becomes asked event", func(t *testing.T) {
		ev := QuestionEvent("s", Question{Status: QuestionStatusPending}, now)
		assert.Equal(t, EventQuestionAsked, ev.Type)
		assert.NoError(t, ev.Validate())
	})

	t.Run("answered question becomes answered event", func(t *testing.T) {
		ev := QuestionEvent("s", Question{Status: QuestionStatusAnswered, AnsweredAt: &now}, now)
		assert.Equal(t, EventQuestionAnswered, ev.Type)
	})
}

func TestEventValidate(t *testing.T) {
	t.Run("roster event without agents is valid", func(t *testing.T) {
		ev := RosterEvent("s", nil, time.Now())
		assert.NoError(t, ev.Validate())
	})

	t.Run("context event requires entry", func(t *testing.T) {
		ev := Event{Type: EventContextChanged}
		assert.Error(t, ev.Validate())
	})

	t.Run("unknown type", func(t *testing.T) {
		ev := Event{Type: "exploded"}
		assert.Error(t, ev.Validate())
	})
}
