// internal/steps/analyze.go
package steps

import (
	"errors"

	"github.com/ColonelBlimp/stepfit/internal/dsp"
)

// Analysis is the single-track result: transitions, step table, fitted curve,
// and the normalized derivative they were found in.
type Analysis struct {
	Transitions []int
	Records     []Record
	Fit         []float64
	Derivative  []float64
}

// Finder runs smoothing, transition location and level fitting with fixed
// parameters. It holds no per-series state and is safe for concurrent use.
type Finder struct {
	smoother *dsp.Smoother
	locator  *dsp.Locator
}

// NewFinder validates the parameters and precomputes the smoothing kernel.
func NewFinder(window int, threshold float64) (*Finder, error) {
	smoother, err := dsp.NewSmoother(window)
	if err != nil {
		return nil, err
	}
	locator, err := dsp.NewLocator(threshold)
	if err != nil {
		return nil, err
	}
	return &Finder{smoother: smoother, locator: locator}, nil
}

// Analyze detects the steps in one intensity series.
// A flat series yields no transitions and no error; an empty or non-finite
// series is an error.
func (f *Finder) Analyze(series []float64) (*Analysis, error) {
	derivative, err := f.smoother.Smooth(series)
	transitions := []int{}
	switch {
	case errors.Is(err, dsp.ErrFlatSignal):
		// nothing to locate
	case err != nil:
		return nil, err
	default:
		transitions = f.locator.Locate(derivative)
	}

	records, fit, err := Fit(series, transitions)
	if err != nil {
		return nil, err
	}

	return &Analysis{
		Transitions: transitions,
		Records:     records,
		Fit:         fit,
		Derivative:  derivative,
	}, nil
}

// AnalyzeOne is the single-track entry point used for interactive preview.
func AnalyzeOne(series []float64, window int, threshold float64) (*Analysis, error) {
	f, err := NewFinder(window, threshold)
	if err != nil {
		return nil, err
	}
	return f.Analyze(series)
}
