// internal/export/csv.go
// Package export writes the step and summary tables of a result bundle as CSV.
package export

import (
	"fmt"
	"io"
	"os"

	"github.com/ColonelBlimp/stepfit/internal/analysis"
	"github.com/ColonelBlimp/stepfit/internal/steps"
	"github.com/gocarina/gocsv"
)

// StepColumns is the column order of the step table
var StepColumns = []string{
	"step_index", "level_before", "level_after", "step_height",
	"dwell_before", "dwell_after", "measured_error", "track_id",
}

// SummaryColumns is the column order of the summary table
var SummaryColumns = []string{
	"track_id", "step_count", "negative_steps", "positive_steps",
	"step_height", "max_intensity", "length",
}

// WriteSteps writes one row per step record.
func WriteSteps(w io.Writer, records []steps.Record) error {
	if records == nil {
		records = []steps.Record{}
	}
	if err := gocsv.Marshal(&records, w); err != nil {
		return fmt.Errorf("write step table: %w", err)
	}
	return nil
}

// WriteSummaries writes one row per analyzed track.
func WriteSummaries(w io.Writer, summaries []analysis.Summary) error {
	if summaries == nil {
		summaries = []analysis.Summary{}
	}
	if err := gocsv.Marshal(&summaries, w); err != nil {
		return fmt.Errorf("write summary table: %w", err)
	}
	return nil
}

// StepsFile writes the bundle's step table to path.
func StepsFile(path string, b *analysis.Bundle) error {
	return toFile(path, func(w io.Writer) error {
		return WriteSteps(w, b.Steps)
	})
}

// SummariesFile writes the bundle's summary table to path.
func SummariesFile(path string, b *analysis.Bundle) error {
	return toFile(path, func(w io.Writer) error {
		return WriteSummaries(w, b.Summaries)
	})
}

func toFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	return write(f)
}
