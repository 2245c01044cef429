// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ColonelBlimp/stepfit/internal/analysis"
	"github.com/spf13/viper"
)

const (
	AppName       = "stepfit"
	ConfigType    = "yaml"
	DefaultConfig = `# Step Fit Configuration

# Step detection
window: 20              # Gaussian smoothing scale in samples (>= 1)
threshold: 0.5          # Detection sensitivity (0.0-1.0], fraction of the strongest transition

# Batch runs
workers: 0              # Tracks analyzed in parallel, 0 = one per CPU

# Results
store_path: "stepfit.db"  # SQLite file holding all committed results

# Preview and report
preview_min_length: 5   # Tracks shorter than this are previewed without fitting
histogram_bin_size: 5   # Bin width of result report histograms

# Output
debug: false            # Enable debug logging
`
)

// Settings holds all application configuration
type Settings struct {
	// Step detection
	Window    int     `mapstructure:"window"`
	Threshold float64 `mapstructure:"threshold"`

	// Batch runs
	Workers int `mapstructure:"workers"`

	// Results
	StorePath string `mapstructure:"store_path"`

	// Preview and report
	PreviewMinLength int     `mapstructure:"preview_min_length"`
	HistogramBinSize float64 `mapstructure:"histogram_bin_size"`

	// Output
	Debug bool `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/stepfit/
func Init() error {
	// Set defaults
	viper.SetDefault("window", 20)
	viper.SetDefault("threshold", 0.5)
	viper.SetDefault("workers", 0)
	viper.SetDefault("store_path", "stepfit.db")
	viper.SetDefault("preview_min_length", 5)
	viper.SetDefault("histogram_bin_size", 5)
	viper.SetDefault("debug", false)

	// STEPFIT_WINDOW etc.
	viper.SetEnvPrefix(AppName)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// Support both config.yaml and .config.yaml
	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	// Read config file - if not found, create default in XDG config dir
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			xdgConfigPath := filepath.Join(configDir, AppName)
			if err = ensureConfigExists(xdgConfigPath); err != nil {
				return err
			}
			if err = viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		} else {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error

	if err := s.Params().Validate(); err != nil {
		errs = append(errs, err)
	}
	if s.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be 0 or more, got %d", s.Workers))
	}
	if strings.TrimSpace(s.StorePath) == "" {
		errs = append(errs, errors.New("store_path must not be empty"))
	}
	if s.PreviewMinLength < 1 {
		errs = append(errs, fmt.Errorf("preview_min_length must be at least 1, got %d", s.PreviewMinLength))
	}
	if !(s.HistogramBinSize > 0) {
		errs = append(errs, fmt.Errorf("histogram_bin_size must be greater than 0, got %v", s.HistogramBinSize))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Params returns the step detection parameters
func (s *Settings) Params() analysis.Params {
	return analysis.Params{Window: s.Window, Threshold: s.Threshold}
}

// AggregatorConfig returns the batch run configuration
func (s *Settings) AggregatorConfig() analysis.Config {
	return analysis.Config{Params: s.Params(), Workers: s.Workers}
}
