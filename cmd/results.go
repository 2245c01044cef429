// cmd/results.go
package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ColonelBlimp/stepfit/internal/analysis"
	"github.com/ColonelBlimp/stepfit/internal/export"
	"github.com/ColonelBlimp/stepfit/internal/report"
	"github.com/ColonelBlimp/stepfit/internal/track"
	"github.com/spf13/cobra"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect and export stored results",
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored results in the order they were committed",
	Args:  cobra.NoArgs,
	RunE:  runResultsList,
}

var resultsShowCmd = &cobra.Command{
	Use:   "show TITLE",
	Short: "Show the summary table and distributions of a result",
	Args:  cobra.ExactArgs(1),
	RunE:  runResultsShow,
}

var resultsExportCmd = &cobra.Command{
	Use:   "export TITLE",
	Short: "Write the step or summary table of a result to CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runResultsExport,
}

func init() {
	for _, c := range []*cobra.Command{resultsShowCmd, resultsExportCmd} {
		c.Flags().StringArrayP("filter", "f", nil, "summary filter name=min:max, repeatable (e.g. step_count=1:1)")
	}
	resultsExportCmd.Flags().StringP("out", "o", "", "output CSV file")
	resultsExportCmd.Flags().Bool("summary", false, "export the summary table instead of the step table")
	_ = resultsExportCmd.MarkFlagRequired("out")

	resultsCmd.AddCommand(resultsListCmd, resultsShowCmd, resultsExportCmd)
	rootCmd.AddCommand(resultsCmd)
}

func runResultsList(cmd *cobra.Command, _ []string) error {
	settings, _, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	db, results, err := openResults(cmd.Context(), settings.StorePath)
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	if results.Len() == 0 {
		fmt.Fprintln(out, "no results")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TITLE\tCREATED\tWINDOW\tTHRESHOLD\tTRACKS\tSTEPS\tFILTER")
	for _, title := range results.Titles() {
		b, err := results.Get(title)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.3f\t%d\t%d\t%s\n",
			title, b.CreatedAt.Local().Format(time.DateTime),
			b.Params.Window, b.Params.Threshold,
			len(b.Summaries), b.StepCount(), formatBounds(b.Filter))
	}
	return tw.Flush()
}

func runResultsShow(cmd *cobra.Command, args []string) error {
	settings, _, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	bundle, err := loadFilteredBundle(cmd, settings.StorePath, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (window %d, threshold %.3f, filter %s)\n\n",
		args[0], bundle.Params.Window, bundle.Params.Threshold, formatBounds(bundle.Filter))
	if err := export.WriteSummaries(out, bundle.Summaries); err != nil {
		return err
	}
	fmt.Fprintln(out)

	hists, err := report.Build(bundle, settings.HistogramBinSize)
	if err != nil {
		return err
	}
	return report.Write(out, hists)
}

func runResultsExport(cmd *cobra.Command, args []string) error {
	settings, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	bundle, err := loadFilteredBundle(cmd, settings.StorePath, args[0])
	if err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("out")
	summary, _ := cmd.Flags().GetBool("summary")
	if summary {
		err = export.SummariesFile(path, bundle)
	} else {
		err = export.StepsFile(path, bundle)
	}
	if err != nil {
		return err
	}
	logger.Info("result exported", "title", args[0], "path", path, "summary", summary)
	return nil
}

// loadFilteredBundle fetches a stored bundle and applies the --filter
// bounds to its summary rows.
func loadFilteredBundle(cmd *cobra.Command, storePath, title string) (*analysis.Bundle, error) {
	filters, _ := cmd.Flags().GetStringArray("filter")
	bounds, err := track.ParseBounds(filters)
	if err != nil {
		return nil, err
	}

	db, results, err := openResults(cmd.Context(), storePath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	bundle, err := results.Get(title)
	if err != nil {
		return nil, err
	}
	if len(bounds) == 0 {
		return bundle, nil
	}

	ids, err := track.Select(bundle.Summaries, bounds)
	if err != nil {
		return nil, err
	}
	return bundle.Subset(ids), nil
}

func formatBounds(b track.Bounds) string {
	names := b.Names()
	if len(names) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(names))
	for _, name := range names {
		r := b[name]
		parts = append(parts, fmt.Sprintf("%s=%g:%g", name, r.Min, r.Max))
	}
	return strings.Join(parts, ",")
}
