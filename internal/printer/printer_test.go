package printer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture redirects output into buffers with colors disabled.
func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	restore := SetOutput(&out, &errOut)
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() {
		restore()
		color.NoColor = noColor
	})
	return &out, &errOut
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		assert.Equal(t, "Test Error", err.Error())
		assert.Equal(t, "Test Error\n\nThis is a test error\n", errOut.String())
	})

	t.Run("single suggestion is printed plainly", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "Explanation", []string{"Try this fix"})
		assert.Equal(t, "Test Error", err.Error())
		assert.Equal(t, "Test Error\n\nExplanation\n\nTry this fix\n", errOut.String())
	})

	t.Run("multiple suggestions are numbered", func(t *testing.T) {
		_, errOut := capture(t)
		Error("Test Error", "Explanation", []string{"First option", "Second option"})
		assert.Contains(t, errOut.String(), "Either:\n  1. First option\n  2. Second option\n")
	})
}

func TestErrorWithContext(t *testing.T) {
	t.Run("details are sorted by key", func(t *testing.T) {
		_, errOut := capture(t)
		err := ErrorWithContext("Test Error", "Explanation", map[string]string{
			"URL":     "ws://localhost:3030",
			"Session": "abc",
		}, nil)
		assert.Equal(t, "Test Error", err.Error())
		assert.Equal(t, "Test Error\n\nExplanation\n\n  Session: abc\n  URL: ws://localhost:3030\n", errOut.String())
	})

	t.Run("empty explanation is skipped", func(t *testing.T) {
		_, errOut := capture(t)
		ErrorWithContext("Title", "", map[string]string{"Key": "Value"}, []string{"Fix it"})
		assert.Equal(t, "Title\n\n\n  Key: Value\n\nFix it\n", errOut.String())
	})
}

func TestHubUnreachable(t *testing.T) {
	_, errOut := capture(t)
	err := HubUnreachable("ws://localhost:3030", errors.New("connection refused"))
	assert.Equal(t, "coordinator not reachable", err.Error())
	assert.Contains(t, errOut.String(), "Could not connect to the coordinator at ws://localhost:3030.")
	assert.Contains(t, errOut.String(), "  Error: connection refused\n")
	assert.Contains(t, errOut.String(), "coordinator serve")
}

func TestMessages(t *testing.T) {
	out, errOut := capture(t)

	Success("started\n")
	Success("✓ already marked\n")
	Warning("careful\n")
	Info("plain %d\n", 1)
	Step("next\n")

	assert.Equal(t, "✓ started\n✓ already marked\n⚠️  careful\nplain 1\n→ next\n", out.String())
	assert.Empty(t, errOut.String())
}
