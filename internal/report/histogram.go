// internal/report/histogram.go
// Package report derives the distributions charted for a result bundle and
// bins them into histograms.
package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/ColonelBlimp/stepfit/internal/analysis"
	"gonum.org/v1/gonum/stat"
)

// ErrInvalidBinSize indicates the histogram bin width must be positive
var ErrInvalidBinSize = errors.New("bin size must be greater than 0")

// Distribution is a named sample of values drawn from a bundle.
type Distribution struct {
	Name   string
	Values []float64
}

// Histogram counts the values of one distribution. Edges has one more
// element than Counts; every bin is half-open except the last, which also
// holds values equal to its upper edge.
type Histogram struct {
	Name   string
	Edges  []float64
	Counts []int
}

// Total returns the number of binned values
func (h Histogram) Total() int {
	n := 0
	for _, c := range h.Counts {
		n += c
	}
	return n
}

// Distributions returns, in display order: step_count, negative_vs_positive,
// single_step_height, max_intensity, step_height, track_length and, for every
// step count i and step j <= i, step_count_{i}_step_{j}_dwell_before.
func Distributions(b *analysis.Bundle) []Distribution {
	var (
		stepCount   []float64
		negPos      []float64
		single      []float64
		maxIntens   []float64
		trackLength []float64
		positives   []float64
	)
	maxSteps := 0
	for _, s := range b.Summaries {
		stepCount = append(stepCount, float64(s.StepCount))
		negPos = append(negPos, float64(s.NegativeSteps))
		positives = append(positives, float64(s.PositiveSteps))
		if s.StepCount == 1 {
			single = append(single, math.Abs(s.StepHeight))
		}
		maxIntens = append(maxIntens, s.MaxIntensity)
		trackLength = append(trackLength, float64(s.Length))
		maxSteps = max(maxSteps, s.StepCount)
	}
	negPos = append(negPos, positives...)

	heights := make([]float64, 0, len(b.Steps))
	byTrack := make(map[int][]float64)
	for _, r := range b.Steps {
		heights = append(heights, math.Abs(r.StepHeight))
		byTrack[r.TrackID] = append(byTrack[r.TrackID], float64(r.DwellBefore))
	}

	out := []Distribution{
		{Name: "step_count", Values: stepCount},
		{Name: "negative_vs_positive", Values: negPos},
		{Name: "single_step_height", Values: single},
		{Name: "max_intensity", Values: maxIntens},
		{Name: "step_height", Values: heights},
		{Name: "track_length", Values: trackLength},
	}

	for i := 1; i <= maxSteps; i++ {
		perStep := make([][]float64, i)
		for _, s := range b.Summaries {
			if s.StepCount != i {
				continue
			}
			dwells := byTrack[s.TrackID]
			for j := 0; j < i && j < len(dwells); j++ {
				perStep[j] = append(perStep[j], dwells[j])
			}
		}
		for j, values := range perStep {
			out = append(out, Distribution{
				Name:   fmt.Sprintf("step_count_%d_step_%d_dwell_before", i, j+1),
				Values: values,
			})
		}
	}
	return out
}

// NewHistogram bins values with width binSize starting at the smallest
// value. NaNs are dropped; a sample with a single distinct value gets a
// range of one. An empty sample gives a histogram with no bins.
func NewHistogram(name string, values []float64, binSize float64) (Histogram, error) {
	if !(binSize > 0) || math.IsInf(binSize, 1) {
		return Histogram{}, fmt.Errorf("%w, got %v", ErrInvalidBinSize, binSize)
	}
	h := Histogram{Name: name}

	x := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			x = append(x, v)
		}
	}
	if len(x) == 0 {
		return h, nil
	}
	slices.Sort(x)

	lo, hi := x[0], x[len(x)-1]
	if lo == hi {
		hi = lo + 1
	}
	n := int(math.Ceil((hi - lo) / binSize))
	h.Edges = make([]float64, 0, n+1)
	for i := 0; i < n; i++ {
		h.Edges = append(h.Edges, lo+float64(i)*binSize)
	}
	h.Edges = append(h.Edges, h.Edges[len(h.Edges)-1]+binSize)

	// stat.Histogram wants every value below the last edge
	last := h.Edges[len(h.Edges)-1]
	cut := len(x)
	for cut > 0 && x[cut-1] >= last {
		cut--
	}
	counts := stat.Histogram(nil, h.Edges, x[:cut], nil)

	h.Counts = make([]int, len(counts))
	for i, c := range counts {
		h.Counts[i] = int(c)
	}
	h.Counts[len(h.Counts)-1] += len(x) - cut
	return h, nil
}

// Build bins every distribution of b.
func Build(b *analysis.Bundle, binSize float64) ([]Histogram, error) {
	dists := Distributions(b)
	out := make([]Histogram, 0, len(dists))
	for _, d := range dists {
		h, err := NewHistogram(d.Name, d.Values, binSize)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Write prints the histograms as aligned text tables.
func Write(w io.Writer, hists []Histogram) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, h := range hists {
		fmt.Fprintf(tw, "%s (n=%d)\n", h.Name, h.Total())
		if len(h.Counts) == 0 {
			fmt.Fprintln(tw, "\t(no data)")
			continue
		}
		peak := slices.Max(h.Counts)
		for i, c := range h.Counts {
			bar := ""
			if peak > 0 {
				bar = strings.Repeat("#", (c*40+peak-1)/peak)
			}
			fmt.Fprintf(tw, "\t[%g, %g)\t%d\t%s\n", h.Edges[i], h.Edges[i+1], c, bar)
		}
	}
	return tw.Flush()
}
