// Package watch streams session activity to a terminal, either from a live
// hub connection or from the Redis event mirror.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/coordinator/internal/format"
	"github.com/dyluth/coordinator/pkg/coordination"
)

// OutputFormat selects how events are rendered.
type OutputFormat string

const (
	// OutputFormatDefault is one human-readable line per event
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON is line-delimited JSON, one event per line
	OutputFormatJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown format: %s", s)
	}
}

// Source delivers session events in the order they happened.
type Source interface {
	// Next blocks until an event arrives. io.EOF means the stream ended cleanly.
	Next(ctx context.Context) (coordination.Event, error)
	Close() error
}

// StreamActivity writes every event from src to w until ctx is cancelled or
// the source ends. Cancellation is not an error.
func StreamActivity(ctx context.Context, src Source, outputFormat OutputFormat, w io.Writer) error {
	defer src.Close()

	if outputFormat == OutputFormatDefault {
		fmt.Fprintf(w, "Watching session activity (Ctrl+C to stop)...\n\n")
	}

	for {
		event, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("event stream failed: %w", err)
		}

		if err := writeEvent(w, event, outputFormat); err != nil {
			return err
		}
	}
}

func writeEvent(w io.Writer, event coordination.Event, outputFormat OutputFormat) error {
	if outputFormat == OutputFormatJSON {
		return format.JSONL(w, []coordination.Event{event})
	}

	_, err := fmt.Fprintln(w, FormatEvent(event))
	return err
}

// FormatEvent renders an event as a single timestamped line.
func FormatEvent(event coordination.Event) string {
	at := event.At
	if at.IsZero() {
		at = time.Now()
	}
	stamp := at.Local().Format("15:04:05")

	switch event.Type {
	case coordination.EventRosterChanged:
		if len(event.Agents) == 0 {
			return fmt.Sprintf("[%s] 👥 No agents connected", stamp)
		}
		names := make([]string, 0, len(event.Agents))
		for _, a := range event.Agents {
			names = append(names, fmt.Sprintf("%s/%s", a.Name, a.Role))
		}
		noun := "agents"
		if len(names) == 1 {
			noun = "agent"
		}
		return fmt.Sprintf("[%s] 👥 %d %s connected: %s", stamp, len(names), noun, strings.Join(names, ", "))

	case coordination.EventContextChanged:
		e := event.Entry
		line := fmt.Sprintf("[%s] 📝 Context '%s' shared by %s", stamp, e.Key, format.ShortID(e.CreatedBy))
		if len(e.Tags) > 0 {
			line += fmt.Sprintf(" [%s]", strings.Join(e.Tags, ","))
		}
		return line + ": " + format.FirstLine(e.Value, 60)

	case coordination.EventQuestionAsked:
		q := event.Question
		to := "everyone"
		if q.To != "" {
			to = format.ShortID(q.To)
		}
		return fmt.Sprintf("[%s] ❓ Question %s from %s to %s: %s",
			stamp, format.ShortID(q.ID), format.ShortID(q.From), to, format.FirstLine(q.Question, 60))

	case coordination.EventQuestionAnswered:
		q := event.Question
		return fmt.Sprintf("[%s] ✅ Question %s answered by %s: %s",
			stamp, format.ShortID(q.ID), format.ShortID(q.AnsweredBy), format.FirstLine(q.Answer, 60))

	default:
		return fmt.Sprintf("[%s] %s", stamp, event.Type)
	}
}
