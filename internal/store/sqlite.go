// internal/store/sqlite.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ColonelBlimp/stepfit/internal/analysis"
	"github.com/ColonelBlimp/stepfit/internal/steps"
	"github.com/ColonelBlimp/stepfit/internal/track"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS bundles (
	seq INTEGER PRIMARY KEY,
	title TEXT NOT NULL UNIQUE,
	bundle_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	window_size INTEGER NOT NULL,
	threshold REAL NOT NULL,
	filter TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS bundle_steps (
	title TEXT NOT NULL,
	row_num INTEGER NOT NULL,
	track_id INTEGER NOT NULL,
	step_index INTEGER NOT NULL,
	level_before REAL NOT NULL,
	level_after REAL NOT NULL,
	step_height REAL NOT NULL,
	dwell_before INTEGER NOT NULL,
	dwell_after INTEGER NOT NULL,
	measured_error REAL NOT NULL,
	PRIMARY KEY (title, row_num),
	FOREIGN KEY (title) REFERENCES bundles(title) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS bundle_summaries (
	title TEXT NOT NULL,
	row_num INTEGER NOT NULL,
	track_id INTEGER NOT NULL,
	step_count INTEGER NOT NULL,
	negative_steps INTEGER NOT NULL,
	positive_steps INTEGER NOT NULL,
	step_height REAL NOT NULL,
	max_intensity REAL NOT NULL,
	length INTEGER NOT NULL,
	PRIMARY KEY (title, row_num),
	FOREIGN KEY (title) REFERENCES bundles(title) ON DELETE CASCADE
);
`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// OpenDB opens (or creates) the result database at path and applies the schema.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open result database: %w", err)
	}
	// foreign_keys is per connection
	db.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create result schema: %w", err)
	}
	return db, nil
}

// Save replaces the database content with the bundles of s, in one transaction.
func Save(ctx context.Context, db *sql.DB, s *Store) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	if err := saveTx(ctx, tx, s); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save tx: %w", err)
	}
	return nil
}

func saveTx(ctx context.Context, tx *sql.Tx, s *Store) error {
	for _, table := range []string{"bundle_steps", "bundle_summaries", "bundles"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	insBundle, err := tx.PrepareContext(ctx, `INSERT INTO bundles
		(seq, title, bundle_id, created_at, window_size, threshold, filter)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare bundle insert: %w", err)
	}
	defer insBundle.Close()

	insStep, err := tx.PrepareContext(ctx, `INSERT INTO bundle_steps
		(title, row_num, track_id, step_index, level_before, level_after,
		 step_height, dwell_before, dwell_after, measured_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare step insert: %w", err)
	}
	defer insStep.Close()

	insSummary, err := tx.PrepareContext(ctx, `INSERT INTO bundle_summaries
		(title, row_num, track_id, step_count, negative_steps, positive_steps,
		 step_height, max_intensity, length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare summary insert: %w", err)
	}
	defer insSummary.Close()

	for seq, title := range s.Titles() {
		b, err := s.Get(title)
		if err != nil {
			return err
		}

		filter, err := json.Marshal(b.Filter)
		if err != nil {
			return fmt.Errorf("encode filter of %s: %w", title, err)
		}
		if _, err := insBundle.ExecContext(ctx, seq, title, b.ID,
			b.CreatedAt.UTC().Format(time.RFC3339Nano),
			b.Params.Window, b.Params.Threshold, string(filter)); err != nil {
			return fmt.Errorf("insert bundle %s: %w", title, err)
		}

		for i, r := range b.Steps {
			if _, err := insStep.ExecContext(ctx, title, i, r.TrackID, r.StepIndex,
				r.LevelBefore, r.LevelAfter, r.StepHeight,
				r.DwellBefore, r.DwellAfter, r.MeasuredError); err != nil {
				return fmt.Errorf("insert step %d of %s: %w", i, title, err)
			}
		}
		for i, r := range b.Summaries {
			if _, err := insSummary.ExecContext(ctx, title, i, r.TrackID, r.StepCount,
				r.NegativeSteps, r.PositiveSteps, r.StepHeight,
				r.MaxIntensity, r.Length); err != nil {
				return fmt.Errorf("insert summary %d of %s: %w", i, title, err)
			}
		}
	}
	return nil
}

// Load rebuilds a Store from the database, keeping the saved title order.
func Load(ctx context.Context, db *sql.DB) (*Store, error) {
	s := New()

	rows, err := db.QueryContext(ctx, `SELECT title, bundle_id, created_at,
		window_size, threshold, filter FROM bundles ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query bundles: %w", err)
	}
	var loaded []*analysis.Bundle
	for rows.Next() {
		var (
			b       analysis.Bundle
			created string
			filter  string
		)
		if err := rows.Scan(&b.Title, &b.ID, &created,
			&b.Params.Window, &b.Params.Threshold, &filter); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan bundle: %w", err)
		}
		if b.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("parse created_at of %s: %w", b.Title, err)
		}
		b.Filter = track.Bounds{}
		if err := json.Unmarshal([]byte(filter), &b.Filter); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("decode filter of %s: %w", b.Title, err)
		}
		b.Steps = []steps.Record{}
		b.Summaries = []analysis.Summary{}
		loaded = append(loaded, &b)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate bundles: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close bundle rows: %w", err)
	}

	for _, b := range loaded {
		if err := loadSteps(ctx, db, b); err != nil {
			return nil, err
		}
		if err := loadSummaries(ctx, db, b); err != nil {
			return nil, err
		}
		if err := s.Put(b.Title, b); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func loadSteps(ctx context.Context, db *sql.DB, b *analysis.Bundle) error {
	rows, err := db.QueryContext(ctx, `SELECT track_id, step_index, level_before,
		level_after, step_height, dwell_before, dwell_after, measured_error
		FROM bundle_steps WHERE title = ? ORDER BY row_num`, b.Title)
	if err != nil {
		return fmt.Errorf("query steps of %s: %w", b.Title, err)
	}
	defer rows.Close()

	for rows.Next() {
		var r steps.Record
		if err := rows.Scan(&r.TrackID, &r.StepIndex, &r.LevelBefore, &r.LevelAfter,
			&r.StepHeight, &r.DwellBefore, &r.DwellAfter, &r.MeasuredError); err != nil {
			return fmt.Errorf("scan step of %s: %w", b.Title, err)
		}
		b.Steps = append(b.Steps, r)
	}
	return rows.Err()
}

func loadSummaries(ctx context.Context, db *sql.DB, b *analysis.Bundle) error {
	rows, err := db.QueryContext(ctx, `SELECT track_id, step_count, negative_steps,
		positive_steps, step_height, max_intensity, length
		FROM bundle_summaries WHERE title = ? ORDER BY row_num`, b.Title)
	if err != nil {
		return fmt.Errorf("query summaries of %s: %w", b.Title, err)
	}
	defer rows.Close()

	for rows.Next() {
		var r analysis.Summary
		if err := rows.Scan(&r.TrackID, &r.StepCount, &r.NegativeSteps, &r.PositiveSteps,
			&r.StepHeight, &r.MaxIntensity, &r.Length); err != nil {
			return fmt.Errorf("scan summary of %s: %w", b.Title, err)
		}
		b.Summaries = append(b.Summaries, r)
	}
	return rows.Err()
}
