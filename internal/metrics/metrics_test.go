package metrics

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ColonelBlimp/stepfit/internal/dsp"
	"github.com/ColonelBlimp/stepfit/internal/recovery"
	"github.com/ColonelBlimp/stepfit/internal/track"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *StepMetrics {
	t.Helper()
	m, err := NewStepMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestStepMetrics_Counts(t *testing.T) {
	m := newTestMetrics(t)

	m.TrackAnalyzed(1, 3)
	m.TrackAnalyzed(2, 0)
	m.TrackSkipped(3, dsp.ErrEmptySeries)
	m.TrackSkipped(4, fmt.Errorf("%w: index out of range", recovery.ErrPanic))
	m.RunFinished(4, 250*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TracksAnalyzed))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.StepsDetected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TracksSkipped.WithLabelValues(ReasonEmpty)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TracksSkipped.WithLabelValues(ReasonPanic)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunDuration))
}

func TestSkipReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("series: %w", dsp.ErrEmptySeries), ReasonEmpty},
		{dsp.ErrNonFiniteSample, ReasonNonFinite},
		{fmt.Errorf("%w: 9", track.ErrUnknownTrack), ReasonUnknown},
		{recovery.ErrPanic, ReasonPanic},
		{errors.New("disk on fire"), ReasonOther},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, SkipReason(tt.err))
		})
	}
}

func TestNewStepMetrics_DuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewStepMetrics(registry)
	require.NoError(t, err)

	_, err = NewStepMetrics(registry)
	assert.Error(t, err)
}

func TestWriteTextfile(t *testing.T) {
	m := newTestMetrics(t)
	m.TrackAnalyzed(1, 2)

	path := filepath.Join(t.TempDir(), "stepfit.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "stepfit_tracks_analyzed_total 1")
	assert.Contains(t, string(data), "stepfit_steps_detected_total 2")
}
