// cmd/root.go
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ColonelBlimp/stepfit/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "stepfit",
	Short: "Photobleaching step detection for particle intensity tracks",
	Long: `Detects discrete intensity steps in single-particle tracks, fits piecewise
constant levels between them and keeps every analysis run as a titled result.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (override config file)
	rootCmd.PersistentFlags().IntP("window", "w", 20, "Gaussian smoothing window in samples")
	rootCmd.PersistentFlags().Float64P("threshold", "t", 0.5, "step detection threshold (0.0-1.0]")
	rootCmd.PersistentFlags().IntP("workers", "j", 0, "tracks analyzed in parallel (0 for one per CPU)")
	rootCmd.PersistentFlags().StringP("store", "s", "stepfit.db", "result database file")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")

	bindFlags()
}

// bindFlags binds the global flags to their viper keys
func bindFlags() {
	flags := rootCmd.PersistentFlags()
	_ = viper.BindPFlag("window", flags.Lookup("window"))
	_ = viper.BindPFlag("threshold", flags.Lookup("threshold"))
	_ = viper.BindPFlag("workers", flags.Lookup("workers"))
	_ = viper.BindPFlag("store_path", flags.Lookup("store"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
}

func initConfig() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	bindFlags()
}

// loadSettings returns the validated settings and a logger honoring --debug
func loadSettings(cmd *cobra.Command) (*config.Settings, *slog.Logger, error) {
	settings, err := config.Get()
	if err != nil {
		return nil, nil, err
	}
	return settings, newLogger(cmd.ErrOrStderr(), settings.Debug), nil
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
