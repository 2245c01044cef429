// internal/analysis/aggregator.go
package analysis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/ColonelBlimp/stepfit/internal/recovery"
	"github.com/ColonelBlimp/stepfit/internal/steps"
	"github.com/ColonelBlimp/stepfit/internal/track"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SeriesSource provides the intensity series of a track. Implementations
// must be safe for concurrent reads.
type SeriesSource interface {
	Series(trackID int) ([]float64, error)
}

// ProgressCallback is called once for every finished track, analyzed or
// skipped, with the number finished so far. It is invoked from worker
// goroutines and must be fast and safe for concurrent use.
type ProgressCallback func(done, total int)

// Observer receives per-track and per-run outcomes (e.g. for metrics).
// Methods are called from worker goroutines.
type Observer interface {
	TrackAnalyzed(trackID, steps int)
	TrackSkipped(trackID int, err error)
	RunFinished(tracks int, elapsed time.Duration)
}

// Config holds the aggregator configuration.
type Config struct {
	Params
	// Workers is the number of tracks analyzed in parallel, 0 for one per CPU (from config: workers)
	Workers int
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger; the default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithObserver registers an observer for track and run outcomes.
func WithObserver(o Observer) Option {
	return func(a *Aggregator) {
		a.observer = o
	}
}

// Aggregator runs the step finder over a set of tracks.
type Aggregator struct {
	params  Params
	workers int
	finder  *steps.Finder

	logger   *slog.Logger
	observer Observer

	// Completed tracks of the current run
	completed atomic.Int64

	// Progress callback (atomic for thread safety)
	progressPtr atomic.Pointer[ProgressCallback]

	now   func() time.Time
	newID func() string
}

// New validates the configuration and creates an Aggregator.
// Parameter errors are reported here, before any track is touched.
func New(cfg Config, opts ...Option) (*Aggregator, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers < 0 {
		return nil, ErrInvalidWorkers
	}
	finder, err := steps.NewFinder(cfg.Window, cfg.Threshold)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}

	a := &Aggregator{
		params:  cfg.Params,
		workers: workers,
		finder:  finder,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// SetProgress sets the progress callback.
func (a *Aggregator) SetProgress(cb ProgressCallback) {
	if cb == nil {
		a.progressPtr.Store(nil)
	} else {
		a.progressPtr.Store(&cb)
	}
}

// Completed returns how many tracks of the current (or last) run have finished.
func (a *Aggregator) Completed() int {
	return int(a.completed.Load())
}

// Params returns the run parameters
func (a *Aggregator) Params() Params {
	return a.params
}

// Workers returns the effective worker count
func (a *Aggregator) Workers() int {
	return a.workers
}

type outcome struct {
	records []steps.Record
	summary Summary
	warning *Warning
}

// RunAll analyzes every track in ids and returns the run's bundle together
// with a warning for each skipped track. Rows are ordered as ids, whatever
// the completion order. ctx is checked before each track; on cancellation
// no bundle is returned.
func (a *Aggregator) RunAll(ctx context.Context, src SeriesSource, ids []int, filter track.Bounds) (*Bundle, []Warning, error) {
	a.completed.Store(0)
	start := a.now()
	total := len(ids)
	outcomes := make([]outcome, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = a.analyzeTrack(src, id)
			a.markDone(total)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("step analysis interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("step analysis interrupted: %w", err)
	}

	bundle := &Bundle{
		ID:        a.newID(),
		CreatedAt: start.UTC(),
		Params:    a.params,
		Filter:    filter.Clone(),
		Steps:     []steps.Record{},
		Summaries: make([]Summary, 0, total),
	}
	var warnings []Warning
	for _, o := range outcomes {
		if o.warning != nil {
			warnings = append(warnings, *o.warning)
			continue
		}
		bundle.Steps = append(bundle.Steps, o.records...)
		bundle.Summaries = append(bundle.Summaries, o.summary)
	}

	elapsed := a.now().Sub(start)
	if a.observer != nil {
		a.observer.RunFinished(total, elapsed)
	}
	a.logger.Info("step analysis finished",
		"window", a.params.Window,
		"threshold", a.params.Threshold,
		"tracks", len(bundle.Summaries),
		"steps", len(bundle.Steps),
		"skipped", len(warnings),
		"elapsed", elapsed)

	return bundle, warnings, nil
}

// analyzeTrack runs the finder on one track. Failures, including panics,
// become a warning.
func (a *Aggregator) analyzeTrack(src SeriesSource, id int) outcome {
	var out outcome
	err := recovery.Guard(func() error {
		series, err := src.Series(id)
		if err != nil {
			return err
		}
		res, err := a.finder.Analyze(series)
		if err != nil {
			return err
		}
		for j := range res.Records {
			res.Records[j].TrackID = id
		}
		out.records = res.Records
		out.summary = Summarize(id, series, res.Records)
		return nil
	})

	if err != nil {
		a.logger.Warn("skipping track", "track_id", id, "error", err)
		if a.observer != nil {
			a.observer.TrackSkipped(id, err)
		}
		return outcome{warning: &Warning{TrackID: id, Err: err}}
	}

	a.logger.Debug("track analyzed", "track_id", id, "steps", len(out.records))
	if a.observer != nil {
		a.observer.TrackAnalyzed(id, len(out.records))
	}
	return out
}

func (a *Aggregator) markDone(total int) {
	done := int(a.completed.Add(1))
	if cbPtr := a.progressPtr.Load(); cbPtr != nil {
		(*cbPtr)(done, total)
	}
}
