package cmd

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ColonelBlimp/stepfit/internal/export"
	"github.com/ColonelBlimp/stepfit/internal/store"
	"github.com/ColonelBlimp/stepfit/internal/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTracksCSV builds a table with one bleaching track (1), one flat
// track (2) and one three-frame track (3).
func testTracksCSV(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("track_id,frame,intensity_mean\n")
	for f := 0; f < 60; f++ {
		v := 100.0
		if f >= 30 {
			v = 40
		}
		fmt.Fprintf(&b, "1,%d,%g\n", f, v)
		fmt.Fprintf(&b, "2,%d,50\n", f)
	}
	for f := 0; f < 3; f++ {
		fmt.Fprintf(&b, "3,%d,5\n", f)
	}
	return b.String()
}

type workspace struct {
	dir    string
	tracks string
	store  string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := setupHome(t, "window: 2\nthreshold: 0.5\n")
	ws := workspace{
		dir:    dir,
		tracks: filepath.Join(dir, "tracks.csv"),
		store:  filepath.Join(dir, "results.db"),
	}
	require.NoError(t, os.WriteFile(ws.tracks, []byte(testTracksCSV(t)), 0644))
	return ws
}

func (ws workspace) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetViperForTest()
	resetFlags(rootCmd)
	return execute(t, append(args, "--store", ws.store)...)
}

func TestAnalyze_CommitsAndPersists(t *testing.T) {
	ws := newWorkspace(t)

	out, _, err := ws.run(t, "analyze", "--input", ws.tracks, "--filter", "length=10:")
	require.NoError(t, err)
	assert.Contains(t, out, "2_0.500_1: 2 tracks, 1 steps, 0 skipped")

	out, _, err = ws.run(t, "analyze", "--input", ws.tracks)
	require.NoError(t, err)
	assert.Contains(t, out, "2_0.500_2: 3 tracks, 1 steps, 0 skipped")

	out, _, err = ws.run(t, "analyze", "--input", ws.tracks, "-w", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "3_0.500_1:")

	db, err := store.OpenDB(ws.store)
	require.NoError(t, err)
	defer db.Close()
	results, err := store.Load(t.Context(), db)
	require.NoError(t, err)
	assert.Equal(t, []string{"2_0.500_1", "2_0.500_2", "3_0.500_1"}, results.Titles())

	first, err := results.Get("2_0.500_1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, first.Filter["length"].Min)
	assert.True(t, math.IsInf(first.Filter["length"].Max, 1))
	require.Len(t, first.Steps, 1)
	assert.Equal(t, 1, first.Steps[0].TrackID)
	assert.Equal(t, 30, first.Steps[0].StepIndex)
	assert.InDelta(t, -60, first.Steps[0].StepHeight, 1e-9)
}

func TestAnalyze_Exports(t *testing.T) {
	ws := newWorkspace(t)
	stepsPath := filepath.Join(ws.dir, "steps.csv")
	summaryPath := filepath.Join(ws.dir, "summary.csv")
	metricsPath := filepath.Join(ws.dir, "stepfit.prom")

	_, _, err := ws.run(t, "analyze", "--input", ws.tracks,
		"--export", stepsPath, "--summary-export", summaryPath, "--metrics-file", metricsPath)
	require.NoError(t, err)

	data, err := os.ReadFile(stepsPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), strings.Join(export.StepColumns, ",")))

	data, err = os.ReadFile(summaryPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), strings.Join(export.SummaryColumns, ",")))

	data, err = os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "stepfit_tracks_analyzed_total 3")
	assert.Contains(t, string(data), "stepfit_steps_detected_total 1")
}

func TestAnalyze_Errors(t *testing.T) {
	ws := newWorkspace(t)

	tests := []struct {
		name    string
		args    []string
		wantErr error
		wantMsg string
	}{
		{"missing input flag", []string{"analyze"}, nil, "input"},
		{"missing file", []string{"analyze", "--input", filepath.Join(ws.dir, "nope.csv")}, os.ErrNotExist, ""},
		{"bad filter", []string{"analyze", "--input", ws.tracks, "--filter", "length"}, track.ErrInvalidBound, ""},
		{"unknown filter property", []string{"analyze", "--input", ws.tracks, "--filter", "step_count=1:2"}, track.ErrUnknownProperty, ""},
		{"bad window", []string{"analyze", "--input", ws.tracks, "-w", "0"}, nil, "window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ws.run(t, tt.args...)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	ws := newWorkspace(t)

	out, _, err := ws.run(t, "preview", "--input", ws.tracks, "--track", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "track 1: 60 samples, 1 steps")
	assert.Contains(t, out, strings.Join(export.StepColumns, ","))
	assert.Contains(t, out, "derivative")

	out, _, err = ws.run(t, "preview", "--input", ws.tracks, "--track", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "not fitted")

	_, _, err = ws.run(t, "preview", "--input", ws.tracks, "--track", "99")
	assert.ErrorIs(t, err, track.ErrUnknownTrack)

	// preview never writes results
	_, err = os.Stat(ws.store)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
