package commands

import (
	"fmt"

	"github.com/dyluth/coordinator/internal/format"
	"github.com/dyluth/coordinator/internal/printer"
	"github.com/dyluth/coordinator/internal/timespec"
)

// parseOutput validates the --output flag shared by listing commands.
func parseOutput(value string) (format.OutputFormat, error) {
	f, err := format.ParseOutputFormat(value)
	if err != nil {
		return "", printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", value),
			[]string{"Valid formats: default, jsonl"},
		)
	}
	return f, nil
}

// parseWindow validates the --since and --until flags.
func parseWindow(since, until string) (timespec.Range, error) {
	r, err := timespec.ParseRange(since, until)
	if err != nil {
		return timespec.Range{}, printer.Error(
			"invalid time range",
			err.Error(),
			[]string{"Use a duration like '1h30m' or an RFC3339 time like '2026-01-02T15:04:05Z'"},
		)
	}
	return r, nil
}
