// internal/track/table.go
// Package track holds the linked particle positions produced by tracking,
// grouped per track, and the property filter used to select tracks.
package track

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrUnknownTrack indicates the track id is not present in the table
	ErrUnknownTrack = errors.New("unknown track id")
	// ErrMissingColumn indicates a required CSV column is absent
	ErrMissingColumn = errors.New("missing required column")
)

// RequiredColumns are the CSV columns the step analysis cannot do without.
var RequiredColumns = []string{"track_id", "frame", "intensity_mean"}

// Point is one detection of one particle in one frame.
type Point struct {
	TrackID       int     `csv:"track_id"`
	Frame         int     `csv:"frame"`
	Y             float64 `csv:"y"`
	X             float64 `csv:"x"`
	IntensityMean float64 `csv:"intensity_mean"`
	IntensityMax  float64 `csv:"intensity_max"`
	IntensityMin  float64 `csv:"intensity_min"`
	Area          float64 `csv:"area"`
	Label         int     `csv:"label"`
}

// ReadPoints decodes a tracking table from CSV. Columns other than the
// Point fields are ignored; the RequiredColumns must be present.
func ReadPoints(r io.Reader) ([]Point, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read tracks: %w", err)
	}

	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, fmt.Errorf("read tracks header: %w", err)
	}
	for _, col := range RequiredColumns {
		if !slices.Contains(header, col) {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, col)
		}
	}

	points := []Point{}
	if err := gocsv.UnmarshalBytes(data, &points); err != nil {
		return nil, fmt.Errorf("decode tracks: %w", err)
	}
	return points, nil
}

// Table indexes points by track, each track ordered by frame. A Table is
// not modified after NewTable and may be read from many goroutines.
type Table struct {
	tracks map[int][]Point
	ids    []int
}

// NewTable groups points by track id and sorts each track by frame.
func NewTable(points []Point) *Table {
	tracks := make(map[int][]Point)
	for _, p := range points {
		tracks[p.TrackID] = append(tracks[p.TrackID], p)
	}

	ids := make([]int, 0, len(tracks))
	for id, pts := range tracks {
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].Frame < pts[j].Frame })
		ids = append(ids, id)
	}
	sort.Ints(ids)

	return &Table{tracks: tracks, ids: ids}
}

// IDs returns the track ids in ascending order
func (t *Table) IDs() []int {
	return slices.Clone(t.ids)
}

// Len returns the number of tracks
func (t *Table) Len() int {
	return len(t.ids)
}

// Points returns a copy of the points of one track, ordered by frame.
func (t *Table) Points(id int) ([]Point, error) {
	pts, ok := t.tracks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTrack, id)
	}
	return slices.Clone(pts), nil
}

// Series returns the intensity_mean values of one track ordered by frame.
// The slice is a fresh copy owned by the caller.
func (t *Table) Series(id int) ([]float64, error) {
	pts, ok := t.tracks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTrack, id)
	}
	series := make([]float64, len(pts))
	for i, p := range pts {
		series[i] = p.IntensityMean
	}
	return series, nil
}

// Meta summarizes one track's intensity_mean trace.
type Meta struct {
	TrackID       int
	Length        int
	IntensityMax  float64
	IntensityMean float64
	IntensityMin  float64
}

// MetaProperties are the filterable columns of Meta.
var MetaProperties = []string{"length", "intensity_max", "intensity_mean", "intensity_min"}

// ID implements Row
func (m Meta) ID() int { return m.TrackID }

// Property implements Row
func (m Meta) Property(name string) (float64, bool) {
	switch name {
	case "length":
		return float64(m.Length), true
	case "intensity_max":
		return m.IntensityMax, true
	case "intensity_mean":
		return m.IntensityMean, true
	case "intensity_min":
		return m.IntensityMin, true
	}
	return 0, false
}

// Meta returns one summary per track in id order.
func (t *Table) Meta() []Meta {
	out := make([]Meta, 0, len(t.ids))
	for _, id := range t.ids {
		series, _ := t.Series(id)
		m := Meta{TrackID: id, Length: len(series)}
		if len(series) > 0 {
			m.IntensityMax = floats.Max(series)
			m.IntensityMean = stat.Mean(series, nil)
			m.IntensityMin = floats.Min(series)
		}
		out = append(out, m)
	}
	return out
}
