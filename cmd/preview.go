// cmd/preview.go
package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/ColonelBlimp/stepfit/internal/export"
	"github.com/ColonelBlimp/stepfit/internal/steps"
	"github.com/spf13/cobra"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the step fit of a single track",
	Long: `Runs step detection on one track with the current window and threshold
and prints its step table and fitted curve. Nothing is stored.`,
	Args: cobra.NoArgs,
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().StringP("input", "i", "", "tracking table (CSV)")
	previewCmd.Flags().IntP("track", "k", 0, "track id to preview")
	_ = previewCmd.MarkFlagRequired("input")
	_ = previewCmd.MarkFlagRequired("track")

	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, _ []string) error {
	settings, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	input, _ := cmd.Flags().GetString("input")
	trackID, _ := cmd.Flags().GetInt("track")

	table, err := readTable(input)
	if err != nil {
		return err
	}
	series, err := table.Series(trackID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	if len(series) < settings.PreviewMinLength {
		logger.Debug("track too short to fit", "track_id", trackID, "length", len(series))
		fmt.Fprintf(out, "track %d: %d samples, below preview_min_length %d; not fitted\n",
			trackID, len(series), settings.PreviewMinLength)
		fmt.Fprintln(tw, "index\tintensity")
		for i, v := range series {
			fmt.Fprintf(tw, "%d\t%g\n", i, v)
		}
		return tw.Flush()
	}

	res, err := steps.AnalyzeOne(series, settings.Window, settings.Threshold)
	if err != nil {
		return fmt.Errorf("track %d: %w", trackID, err)
	}
	for i := range res.Records {
		res.Records[i].TrackID = trackID
	}

	fmt.Fprintf(out, "track %d: %d samples, %d steps (window %d, threshold %.3f)\n",
		trackID, len(series), len(res.Records), settings.Window, settings.Threshold)
	if err := export.WriteSteps(out, res.Records); err != nil {
		return err
	}
	fmt.Fprintln(out)

	fmt.Fprintln(tw, "index\tintensity\tfit\tderivative")
	for i, v := range series {
		fmt.Fprintf(tw, "%d\t%g\t%.4g\t%.3f\n", i, v, res.Fit[i], res.Derivative[i])
	}
	return tw.Flush()
}
