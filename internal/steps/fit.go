// internal/steps/fit.go
// Package steps fits piecewise-constant levels to intensity series and
// reports one record per detected transition.
package steps

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInvalidTransitions indicates transition indices are out of range or not strictly increasing
	ErrInvalidTransitions = errors.New("transition indices must be strictly increasing and within the series")
)

// Record describes one transition. Levels are segment means, dwells are
// segment lengths in samples. Neighbouring records share the segment between
// them: it is the "after" segment of the left record and the "before"
// segment of the right one.
type Record struct {
	StepIndex     int     `csv:"step_index" json:"step_index"`
	LevelBefore   float64 `csv:"level_before" json:"level_before"`
	LevelAfter    float64 `csv:"level_after" json:"level_after"`
	StepHeight    float64 `csv:"step_height" json:"step_height"`
	DwellBefore   int     `csv:"dwell_before" json:"dwell_before"`
	DwellAfter    int     `csv:"dwell_after" json:"dwell_after"`
	MeasuredError float64 `csv:"measured_error" json:"measured_error"`
	TrackID       int     `csv:"track_id" json:"track_id"`
}

// Fit computes the step table and the fitted step curve for series given
// its transition indices. The fit curve has one value per sample: the mean of
// the segment the sample belongs to. With no transitions the whole series is
// a single segment and the step table is empty.
func Fit(series []float64, transitions []int) ([]Record, []float64, error) {
	if err := checkTransitions(len(series), transitions); err != nil {
		return nil, nil, err
	}

	fit := make([]float64, len(series))
	if len(transitions) == 0 {
		mean, _ := segmentStats(series)
		fillSegment(fit, 0, len(series), mean)
		return []Record{}, fit, nil
	}

	last := len(transitions) - 1
	records := make([]Record, 0, len(transitions))
	for i, index := range transitions {
		start := 0
		if i > 0 {
			start = transitions[i-1]
		}
		end := len(series)
		if i < last {
			end = transitions[i+1]
		}

		levelBefore, varBefore := segmentStats(series[start:index])
		levelAfter, varAfter := segmentStats(series[index:end])

		fillSegment(fit, start, index, levelBefore)
		fillSegment(fit, index, end, levelAfter)

		records = append(records, Record{
			StepIndex:     index,
			LevelBefore:   levelBefore,
			LevelAfter:    levelAfter,
			StepHeight:    levelAfter - levelBefore,
			DwellBefore:   index - start,
			DwellAfter:    end - index,
			MeasuredError: combinedError(varBefore, varAfter),
		})
	}

	return records, fit, nil
}

// segmentStats returns the population mean and variance of a segment.
// An empty segment has zero mean and variance.
func segmentStats(segment []float64) (mean, variance float64) {
	if len(segment) == 0 {
		return 0, 0
	}
	return stat.PopMeanVariance(segment, nil)
}

// combinedError is the standard deviation of the two segments added in quadrature.
func combinedError(varBefore, varAfter float64) float64 {
	sum := varAfter + varBefore
	// Guard against rounding producing a tiny negative variance
	if sum < 0 {
		sum = 0
	}
	return math.Sqrt(sum)
}

func fillSegment(fit []float64, start, end int, value float64) {
	for i := start; i < end; i++ {
		fit[i] = value
	}
}

func checkTransitions(n int, transitions []int) error {
	prev := -1
	for _, index := range transitions {
		if index < 0 || index > n || index <= prev {
			return fmt.Errorf("%w: %v (series length %d)", ErrInvalidTransitions, transitions, n)
		}
		prev = index
	}
	return nil
}
