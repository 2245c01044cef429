// internal/analysis/types.go
// Package analysis runs step detection over many tracks and builds the step
// table and per-track summary table of one run.
package analysis

import (
	"errors"
	"fmt"
	"time"

	"github.com/ColonelBlimp/stepfit/internal/dsp"
	"github.com/ColonelBlimp/stepfit/internal/steps"
	"github.com/ColonelBlimp/stepfit/internal/track"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrInvalidWindow indicates the smoothing window must be positive
	ErrInvalidWindow = dsp.ErrInvalidWindow
	// ErrInvalidThreshold indicates threshold must be in (0, 1]
	ErrInvalidThreshold = dsp.ErrInvalidThreshold
	// ErrInvalidWorkers indicates a negative worker count
	ErrInvalidWorkers = errors.New("workers must be non-negative")
)

// Params are the detection parameters of one run.
type Params struct {
	// Window is the Gaussian smoothing scale in samples (from config: window)
	Window int `json:"window"`
	// Threshold is the detection sensitivity in (0, 1] (from config: threshold)
	Threshold float64 `json:"threshold"`
}

// Validate reports every out-of-range parameter.
func (p Params) Validate() error {
	var errs []error
	if p.Window <= 0 {
		errs = append(errs, fmt.Errorf("%w, got %d", ErrInvalidWindow, p.Window))
	}
	if !(p.Threshold > 0 && p.Threshold <= 1) {
		errs = append(errs, fmt.Errorf("%w, got %v", ErrInvalidThreshold, p.Threshold))
	}
	return errors.Join(errs...)
}

// Summary is the one-row description of a track's steps.
type Summary struct {
	TrackID   int `csv:"track_id" json:"track_id"`
	StepCount int `csv:"step_count" json:"step_count"`
	// NegativeSteps counts steps with a negative height, stored as a negative number
	NegativeSteps int `csv:"negative_steps" json:"negative_steps"`
	// PositiveSteps counts steps with a height >= 0
	PositiveSteps int `csv:"positive_steps" json:"positive_steps"`
	// StepHeight is the mean step height, 0 when there are no steps
	StepHeight   float64 `csv:"step_height" json:"step_height"`
	MaxIntensity float64 `csv:"max_intensity" json:"max_intensity"`
	Length       int     `csv:"length" json:"length"`
}

// SummaryProperties are the filterable columns of Summary.
var SummaryProperties = []string{
	"step_count", "negative_steps", "positive_steps", "step_height", "max_intensity", "length",
}

// ID implements track.Row
func (s Summary) ID() int { return s.TrackID }

// Property implements track.Row
func (s Summary) Property(name string) (float64, bool) {
	switch name {
	case "step_count":
		return float64(s.StepCount), true
	case "negative_steps":
		return float64(s.NegativeSteps), true
	case "positive_steps":
		return float64(s.PositiveSteps), true
	case "step_height":
		return s.StepHeight, true
	case "max_intensity":
		return s.MaxIntensity, true
	case "length":
		return float64(s.Length), true
	}
	return 0, false
}

// Summarize builds the summary row of one track from its series and step records.
// series must not be empty.
func Summarize(trackID int, series []float64, records []steps.Record) Summary {
	s := Summary{
		TrackID:      trackID,
		StepCount:    len(records),
		MaxIntensity: floats.Max(series),
		Length:       len(series),
	}
	var total float64
	for _, r := range records {
		if r.StepHeight < 0 {
			s.NegativeSteps--
		} else {
			s.PositiveSteps++
		}
		total += r.StepHeight
	}
	if len(records) > 0 {
		s.StepHeight = total / float64(len(records))
	}
	return s
}

// Bundle is the complete output of one run. It is not modified once it has
// been committed to a result store.
type Bundle struct {
	ID        string
	Title     string
	CreatedAt time.Time
	Params    Params
	// Filter holds the bounds that selected the analyzed tracks
	Filter    track.Bounds
	Steps     []steps.Record
	Summaries []Summary
}

// StepCount returns the number of step rows
func (b *Bundle) StepCount() int {
	return len(b.Steps)
}

// Subset returns a copy of the bundle restricted to the given track ids,
// keeping row order. The copy has no title.
func (b *Bundle) Subset(ids []int) *Bundle {
	keep := make(map[int]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}

	out := &Bundle{
		ID:        b.ID,
		CreatedAt: b.CreatedAt,
		Params:    b.Params,
		Filter:    b.Filter.Clone(),
		Steps:     []steps.Record{},
		Summaries: []Summary{},
	}
	for _, r := range b.Steps {
		if keep[r.TrackID] {
			out.Steps = append(out.Steps, r)
		}
	}
	for _, s := range b.Summaries {
		if keep[s.TrackID] {
			out.Summaries = append(out.Summaries, s)
		}
	}
	return out
}

// Warning reports a track that was skipped.
type Warning struct {
	TrackID int
	Err     error
}

func (w Warning) Error() string {
	return fmt.Sprintf("track %d skipped: %v", w.TrackID, w.Err)
}

func (w Warning) Unwrap() error {
	return w.Err
}
