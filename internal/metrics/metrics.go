// internal/metrics/metrics.go
// Package metrics exposes Prometheus metrics for step analysis runs.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/ColonelBlimp/stepfit/internal/dsp"
	"github.com/ColonelBlimp/stepfit/internal/recovery"
	"github.com/ColonelBlimp/stepfit/internal/track"
	"github.com/prometheus/client_golang/prometheus"
)

// Skip reasons used as the "reason" label of stepfit_tracks_skipped_total
const (
	ReasonEmpty     = "empty_series"
	ReasonNonFinite = "non_finite"
	ReasonUnknown   = "unknown_track"
	ReasonPanic     = "panic"
	ReasonOther     = "other"
)

// StepMetrics contains the Prometheus metrics of step analysis runs.
// It implements analysis.Observer.
type StepMetrics struct {
	TracksAnalyzed prometheus.Counter
	TracksSkipped  *prometheus.CounterVec
	StepsDetected  prometheus.Counter
	RunDuration    prometheus.Histogram
	registry       *prometheus.Registry
}

// NewStepMetrics creates the metrics and registers them with registry.
func NewStepMetrics(registry *prometheus.Registry) (*StepMetrics, error) {
	m := &StepMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register step metrics: %w", err)
	}
	return m, nil
}

func (m *StepMetrics) initMetrics() {
	m.TracksAnalyzed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stepfit_tracks_analyzed_total",
		Help: "Total number of tracks analyzed for steps",
	})

	m.TracksSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stepfit_tracks_skipped_total",
		Help: "Total number of tracks skipped, by reason",
	}, []string{"reason"})

	m.StepsDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stepfit_steps_detected_total",
		Help: "Total number of steps detected",
	})

	m.RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stepfit_run_duration_seconds",
		Help:    "Wall time of complete analysis runs in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})
}

// TrackAnalyzed counts an analyzed track and its steps.
func (m *StepMetrics) TrackAnalyzed(_ int, steps int) {
	m.TracksAnalyzed.Inc()
	m.StepsDetected.Add(float64(steps))
}

// TrackSkipped counts a skipped track under the reason derived from err.
func (m *StepMetrics) TrackSkipped(_ int, err error) {
	m.TracksSkipped.WithLabelValues(SkipReason(err)).Inc()
}

// RunFinished records the duration of a run.
func (m *StepMetrics) RunFinished(_ int, elapsed time.Duration) {
	m.RunDuration.Observe(elapsed.Seconds())
}

// WriteTextfile writes all metrics of the registry to path in the
// node-exporter textfile format.
func (m *StepMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// SkipReason maps a per-track error to a label value.
func SkipReason(err error) string {
	switch {
	case errors.Is(err, dsp.ErrEmptySeries):
		return ReasonEmpty
	case errors.Is(err, dsp.ErrNonFiniteSample):
		return ReasonNonFinite
	case errors.Is(err, track.ErrUnknownTrack):
		return ReasonUnknown
	case errors.Is(err, recovery.ErrPanic):
		return ReasonPanic
	default:
		return ReasonOther
	}
}

// Collect implements the prometheus.Collector interface.
func (m *StepMetrics) Collect(ch chan<- prometheus.Metric) {
	m.TracksAnalyzed.Collect(ch)
	m.TracksSkipped.Collect(ch)
	m.StepsDetected.Collect(ch)
	m.RunDuration.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *StepMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.TracksAnalyzed.Describe(ch)
	m.TracksSkipped.Describe(ch)
	m.StepsDetected.Describe(ch)
	m.RunDuration.Describe(ch)
}
