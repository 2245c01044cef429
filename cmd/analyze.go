// cmd/analyze.go
package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ColonelBlimp/stepfit/internal/analysis"
	"github.com/ColonelBlimp/stepfit/internal/export"
	"github.com/ColonelBlimp/stepfit/internal/metrics"
	"github.com/ColonelBlimp/stepfit/internal/recovery"
	"github.com/ColonelBlimp/stepfit/internal/store"
	"github.com/ColonelBlimp/stepfit/internal/track"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run step detection on all selected tracks",
	Long: `Runs step detection on every track of the input table that passes the
filters, commits the result under a new title and saves the result database.`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringP("input", "i", "", "tracking table (CSV)")
	analyzeCmd.Flags().StringArrayP("filter", "f", nil, "track filter name=min:max, repeatable (empty side is unbounded)")
	analyzeCmd.Flags().String("export", "", "also write the step table to this CSV file")
	analyzeCmd.Flags().String("summary-export", "", "also write the summary table to this CSV file")
	analyzeCmd.Flags().String("metrics-file", "", "write run metrics in Prometheus textfile format")
	_ = analyzeCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	settings, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	input, _ := cmd.Flags().GetString("input")
	filters, _ := cmd.Flags().GetStringArray("filter")
	stepsOut, _ := cmd.Flags().GetString("export")
	summaryOut, _ := cmd.Flags().GetString("summary-export")
	metricsOut, _ := cmd.Flags().GetString("metrics-file")

	table, err := readTable(input)
	if err != nil {
		return err
	}
	bounds, err := track.ParseBounds(filters)
	if err != nil {
		return err
	}
	ids, err := track.Select(table.Meta(), bounds)
	if err != nil {
		return err
	}
	logger.Info("tracks selected", "input", input, "tracks", table.Len(), "selected", len(ids))

	stepMetrics, err := metrics.NewStepMetrics(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	agg, err := analysis.New(settings.AggregatorConfig(),
		analysis.WithLogger(logger),
		analysis.WithObserver(stepMetrics))
	if err != nil {
		return err
	}
	agg.SetProgress(func(done, total int) {
		logger.Debug("progress", "done", done, "total", total)
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bundle, warnings, err := agg.RunAll(ctx, table, ids, bounds)
	if err != nil {
		return err
	}

	db, results, err := openResults(ctx, settings.StorePath)
	if err != nil {
		return err
	}
	defer db.Close()
	defer recovery.HandlePanicFunc(func() { _ = db.Close() })

	title, err := results.Commit(bundle)
	if err != nil {
		return err
	}
	if err := store.Save(ctx, db, results); err != nil {
		return fmt.Errorf("save results: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d tracks, %d steps, %d skipped\n",
		title, len(bundle.Summaries), bundle.StepCount(), len(warnings))
	for _, w := range warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", w)
	}

	if stepsOut != "" {
		if err := export.StepsFile(stepsOut, bundle); err != nil {
			return err
		}
	}
	if summaryOut != "" {
		if err := export.SummariesFile(summaryOut, bundle); err != nil {
			return err
		}
	}
	if metricsOut != "" {
		if err := stepMetrics.WriteTextfile(metricsOut); err != nil {
			return err
		}
	}
	return nil
}

func readTable(path string) (*track.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tracks: %w", err)
	}
	defer f.Close()

	points, err := track.ReadPoints(f)
	if err != nil {
		return nil, err
	}
	return track.NewTable(points), nil
}

// openResults opens the result database and loads every stored bundle.
func openResults(ctx context.Context, path string) (*sql.DB, *store.Store, error) {
	db, err := store.OpenDB(path)
	if err != nil {
		return nil, nil, err
	}
	results, err := store.Load(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("load results: %w", err)
	}
	return db, results, nil
}
