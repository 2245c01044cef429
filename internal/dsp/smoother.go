// internal/dsp/smoother.go
package dsp

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

// KernelTruncate is the kernel half-width in standard deviations.
const KernelTruncate = 4.0

var (
	// ErrInvalidWindow indicates the smoothing window must be positive
	ErrInvalidWindow = errors.New("window must be a positive integer")
	// ErrEmptySeries indicates there are no samples to smooth
	ErrEmptySeries = errors.New("intensity series is empty")
	// ErrNonFiniteSample indicates a NaN or Inf sample in the series
	ErrNonFiniteSample = errors.New("intensity series contains a non-finite sample")
	// ErrFlatSignal indicates the derivative is zero everywhere and cannot be normalized.
	// Callers treat it as "no transitions", not as a failure.
	ErrFlatSignal = errors.New("derivative is zero everywhere")
)

// Smoother applies a first-derivative Gaussian filter to intensity series.
// The kernel is computed once in NewSmoother; a Smoother is read-only afterwards
// and safe for concurrent use.
type Smoother struct {
	window int
	radius int
	// weights[m-1] multiplies x[i+m] - x[i-m]
	weights []float64
}

// NewSmoother creates a smoother whose Gaussian has standard deviation window.
func NewSmoother(window int) (*Smoother, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}

	sigma2 := float64(window) * float64(window)
	radius := int(KernelTruncate*float64(window) + 0.5)

	// Unit-sum Gaussian over [-radius, radius]
	phi := make([]float64, 2*radius+1)
	for j := range phi {
		x := float64(j - radius)
		phi[j] = math.Exp(-0.5 * x * x / sigma2)
	}
	floats.Scale(1/floats.Sum(phi), phi)

	// d/dx of the Gaussian is -x/sigma² * phi(x). Correlating with the reversed
	// kernel leaves +m/sigma² * phi(m) on the sample at offset m, and the kernel
	// is antisymmetric, so only the positive half is kept.
	weights := make([]float64, radius)
	for m := 1; m <= radius; m++ {
		weights[m-1] = float64(m) / sigma2 * phi[radius+m]
	}

	return &Smoother{
		window:  window,
		radius:  radius,
		weights: weights,
	}, nil
}

// Derivative returns the Gaussian-smoothed first derivative of series.
// The result has the same length as series. Edges are extended by symmetric
// reflection about the half-sample boundary.
func (s *Smoother) Derivative(series []float64) ([]float64, error) {
	if len(series) == 0 {
		return nil, ErrEmptySeries
	}
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrNonFiniteSample
		}
	}

	n := len(series)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var acc float64
		// Paired differences keep the response to a clean step exactly
		// symmetric around the step boundary.
		for m := 1; m <= s.radius; m++ {
			acc += s.weights[m-1] * (series[reflectIndex(i+m, n)] - series[reflectIndex(i-m, n)])
		}
		out[i] = acc
	}
	return out, nil
}

// Smooth returns the derivative normalized by its largest absolute value, so
// every sample lies in [-1, 1]. A flat signal returns an all-zero series
// together with ErrFlatSignal.
func (s *Smoother) Smooth(series []float64) ([]float64, error) {
	out, err := s.Derivative(series)
	if err != nil {
		return nil, err
	}

	peak := floats.Norm(out, math.Inf(1))
	if peak == 0 {
		return out, ErrFlatSignal
	}
	for i := range out {
		out[i] /= peak
	}
	return out, nil
}

// Window returns the Gaussian standard deviation in samples
func (s *Smoother) Window() int {
	return s.window
}

// Radius returns the kernel half-width in samples
func (s *Smoother) Radius() int {
	return s.radius
}

// Weights returns a copy of the one-sided derivative weights (for testing)
func (s *Smoother) Weights() []float64 {
	w := make([]float64, len(s.weights))
	copy(w, s.weights)
	return w
}

// reflectIndex maps i onto [0, n) using the pattern d c b a | a b c d | d c b a,
// repeated for offsets longer than the series.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
