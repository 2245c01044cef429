// internal/dsp/locator.go
package dsp

import (
	"errors"
	"math"
)

var (
	// ErrInvalidThreshold indicates threshold must be in (0, 1]
	ErrInvalidThreshold = errors.New("threshold must be greater than 0.0 and at most 1.0")
)

// Interval is a run of above-threshold derivative samples, as delimited by the
// first difference of the binarized signal. Start is the "up" position and End
// the "down" position.
type Interval struct {
	Start int
	End   int
}

// Locator turns a normalized derivative into transition indices.
type Locator struct {
	threshold float64
}

// NewLocator creates a locator for the given detection threshold.
func NewLocator(threshold float64) (*Locator, error) {
	if !(threshold > 0 && threshold <= 1) {
		return nil, ErrInvalidThreshold
	}
	return &Locator{threshold: threshold}, nil
}

// Locate returns the ascending transition indices found in derivative.
// Each paired interval contributes the position of its largest absolute
// derivative; ties go to the later position. An empty result is valid.
func (l *Locator) Locate(derivative []float64) []int {
	magnitude := make([]float64, len(derivative))
	for i, v := range derivative {
		magnitude[i] = math.Abs(v)
	}

	intervals := l.pair(magnitude)
	indices := make([]int, 0, len(intervals))
	for _, iv := range intervals {
		if iv.End <= iv.Start {
			continue
		}
		indices = append(indices, iv.Start+argmaxLast(magnitude[iv.Start:iv.End]))
	}
	return indices
}

// Intervals returns the up/down pairs Locate would inspect, including pairs
// whose slice is empty.
func (l *Locator) Intervals(derivative []float64) []Interval {
	magnitude := make([]float64, len(derivative))
	for i, v := range derivative {
		magnitude[i] = math.Abs(v)
	}
	return l.pair(magnitude)
}

// pair zips ups and downs by position. Surplus entries on either side are
// dropped without error, so a signal that ends above threshold loses its last
// interval.
func (l *Locator) pair(magnitude []float64) []Interval {
	ups, downs := l.edges(magnitude)
	n := min(len(ups), len(downs))
	out := make([]Interval, n)
	for k := 0; k < n; k++ {
		out[k] = Interval{Start: ups[k], End: downs[k]}
	}
	return out
}

// edges binarizes magnitude against the threshold and returns the positions
// where the first difference is +1 (ups) and -1 (downs).
func (l *Locator) edges(magnitude []float64) (ups, downs []int) {
	prev := 0
	for i, v := range magnitude {
		cur := 0
		if v > l.threshold {
			cur = 1
		}
		if i > 0 {
			switch cur - prev {
			case 1:
				ups = append(ups, i-1)
			case -1:
				downs = append(downs, i-1)
			}
		}
		prev = cur
	}
	return ups, downs
}

// Threshold returns the detection threshold
func (l *Locator) Threshold() float64 {
	return l.threshold
}

func argmaxLast(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] >= values[best] {
			best = i
		}
	}
	return best
}
