// internal/dsp/locator_test.go
package dsp

import (
	"math"
	"reflect"
	"testing"
)

// createTestLocator creates a Locator for testing
func createTestLocator(t *testing.T, threshold float64) *Locator {
	t.Helper()
	l, err := NewLocator(threshold)
	if err != nil {
		t.Fatalf("Failed to create Locator: %v", err)
	}
	return l
}

func TestNewLocator_InvalidThreshold(t *testing.T) {
	testCases := []struct {
		name      string
		threshold float64
	}{
		{"zero", 0},
		{"negative", -0.1},
		{"too high", 1.1},
		{"way too high", 2.0},
		{"NaN", math.NaN()},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLocator(tc.threshold)
			if err != ErrInvalidThreshold {
				t.Errorf("expected ErrInvalidThreshold, got: %v", err)
			}
		})
	}
}

func TestNewLocator_ValidThreshold(t *testing.T) {
	for _, threshold := range []float64{0.001, 0.1, 0.5, 1.0} {
		l := createTestLocator(t, threshold)
		if l.Threshold() != threshold {
			t.Errorf("Threshold() = %v, want %v", l.Threshold(), threshold)
		}
	}
}

func TestLocator_Locate(t *testing.T) {
	testCases := []struct {
		name       string
		derivative []float64
		threshold  float64
		want       []int
	}{
		{
			name:       "single peak",
			derivative: []float64{0, 0, 0.2, 0.8, 1, 0.9, 0.3, 0, 0},
			threshold:  0.5,
			want:       []int{4},
		},
		{
			name:       "tie resolves to later sample",
			derivative: []float64{0, 0.7, 1, 1, 0.7, 0},
			threshold:  0.5,
			want:       []int{3},
		},
		{
			name:       "negative derivative uses magnitude",
			derivative: []float64{0, -0.2, -0.7, -1, -0.6, -0.1, 0},
			threshold:  0.5,
			want:       []int{3},
		},
		{
			// The slice runs from the up position to just before the down
			// position, so a one-sample interval resolves to the sample before it.
			name:       "one sample interval",
			derivative: []float64{0, 0.2, 1, 0.3, 0},
			threshold:  0.5,
			want:       []int{1},
		},
		{
			name:       "two peaks",
			derivative: []float64{0, 0.6, 1, 0.6, 0, 0, 0, -0.7, -0.9, -0.8, 0},
			threshold:  0.5,
			want:       []int{2, 8},
		},
		{
			name:       "below threshold",
			derivative: []float64{0, 0.2, 0.4, 0.2, 0},
			threshold:  0.5,
			want:       []int{},
		},
		{
			name:       "equal to threshold is not above",
			derivative: []float64{0, 0.5, 0.5, 0},
			threshold:  0.5,
			want:       []int{},
		},
		{
			name:       "trailing up without down is dropped",
			derivative: []float64{0, 0.6, 1, 0.6, 0, 0, 0.1, 0.8, 1},
			threshold:  0.5,
			want:       []int{2},
		},
		{
			// A leading down shifts the positional pairing so every
			// interval is paired with an earlier down and skipped.
			name:       "leading down shifts pairing",
			derivative: []float64{1, 0, 0, 0.8, 0.9, 0},
			threshold:  0.5,
			want:       []int{},
		},
		{
			name:       "empty",
			derivative: []float64{},
			threshold:  0.5,
			want:       []int{},
		},
		{
			name:       "flat",
			derivative: []float64{0, 0, 0, 0},
			threshold:  0.1,
			want:       []int{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l := createTestLocator(t, tc.threshold)
			got := l.Locate(tc.derivative)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Locate() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLocator_Intervals(t *testing.T) {
	l := createTestLocator(t, 0.5)

	got := l.Intervals([]float64{1, 0, 0, 0.8, 0.9, 0})
	want := []Interval{{Start: 2, End: 0}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Intervals() = %v, want %v", got, want)
	}

	got = l.Intervals([]float64{0, 0.6, 1, 0.6, 0, 0, 0.1, 0.8, 1})
	want = []Interval{{Start: 0, End: 3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Intervals() = %v, want %v", got, want)
	}
}

func TestLocator_Locate_Ascending(t *testing.T) {
	s := createTestSmoother(t, 2)
	l := createTestLocator(t, 0.3)

	series := generateStaircase(100, 20, 30, 25, 40, 35)
	derivative, err := s.Smooth(series)
	if err != nil {
		t.Fatalf("Smooth failed: %v", err)
	}

	indices := l.Locate(derivative)
	if len(indices) != 3 {
		t.Fatalf("Locate() found %d transitions (%v), want 3", len(indices), indices)
	}
	for i := 1; i < len(indices); i++ {
		if indices[i] <= indices[i-1] {
			t.Errorf("indices not strictly increasing: %v", indices)
		}
	}

	want := []int{30, 55, 95}
	if !reflect.DeepEqual(indices, want) {
		t.Errorf("Locate() = %v, want %v", indices, want)
	}
}

func TestLocator_Locate_DoesNotModifyInput(t *testing.T) {
	l := createTestLocator(t, 0.5)
	derivative := []float64{0, -0.7, -1, -0.7, 0}
	original := append([]float64(nil), derivative...)

	_ = l.Locate(derivative)

	if !reflect.DeepEqual(derivative, original) {
		t.Errorf("Locate modified its input: %v", derivative)
	}
}
