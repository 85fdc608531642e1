// Package cmd provides the command-line interface for surfacepool with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports configuration through multiple sources with clear precedence:
//	1. Command-line flags (--config, --log-level) - highest priority
//	2. SURFACEPOOL_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (SURFACEPOOL_POOL_CAPACITY, etc.)
//	4. Configuration files (.surfacepool.yml) - lowest priority
//
// Environment Variables:
//
//	SURFACEPOOL_CONFIG_FILE: Path to custom configuration file
//	SURFACEPOOL_POOL_CAPACITY: Override pool capacity
//	SURFACEPOOL_POOL_PREFILL: Enable/disable eager pool construction
//	SURFACEPOOL_LOGGING_LEVEL: Override log level
package cmd

import (
	"fmt"
	"os"

	"github.com/conneroisu/surfacepool/internal/config"
	"github.com/conneroisu/surfacepool/internal/di"
	"github.com/conneroisu/surfacepool/internal/logging"
	"github.com/conneroisu/surfacepool/internal/pool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "surfacepool",
	Short: "Render-surface pooling and dependency-driven visibility",
	Long: `surfacepool manages a pool of reusable render surfaces and a visibility
engine whose flags gate one another through dependency rules. Every change is
broadcast to all registered consumers, and one failing consumer never stops
delivery to the rest.

Quick Start:
  surfacepool rules                       List the dependency rules
  surfacepool set motion:red=false        Toggle a flag and show the cascade
  surfacepool simulate --consumers 3      Run the end-to-end scenario
  surfacepool watch flags.yml             Drive flags from a YAML file
  surfacepool config show                 Print the effective configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .surfacepool.yml, can also use SURFACEPOOL_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig initializes the configuration system.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. SURFACEPOOL_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .surfacepool.yml in current directory
//
// Environment overrides with the SURFACEPOOL_ prefix apply on top of the file.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("SURFACEPOOL_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".surfacepool")
	}

	config.ConfigureEnv(viper.GetViper())

	// A missing or malformed file falls back to defaults.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig decodes the configuration gathered by initConfig.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. It writes to stderr so command output
// on stdout stays machine readable.
func newLogger(cfg *config.Config) logging.Logger {
	loggerConfig := cfg.Logging.LoggerConfig()
	loggerConfig.Output = os.Stderr
	return logging.NewLogger(loggerConfig)
}

// newContainer loads configuration and returns an initialized container that
// builds in-memory surfaces.
func newContainer(factory pool.Factory) (*di.Container, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	container := di.NewContainer(cfg, factory, newLogger(cfg))
	if err := container.Initialize(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize: %w", err)
	}

	return container, cfg, nil
}
