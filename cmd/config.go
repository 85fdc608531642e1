package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/conneroisu/surfacepool/internal/config"
	"github.com/conneroisu/surfacepool/internal/visibility"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect surfacepool configuration",
	Long: `Inspect surfacepool configuration files and settings.

Examples:
  surfacepool config show                       # Show the effective configuration
  surfacepool config show -o json               # Show it as JSON
  surfacepool config validate                   # Validate .surfacepool.yml
  surfacepool config validate --file pool.yml   # Validate a specific file`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the configuration after defaults, the configuration file and
SURFACEPOOL_* environment overrides have been applied.`,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file. Besides field checks this builds the
visibility engine from the configured rules, so a dependency cycle is reported
here rather than at startup.`,
	RunE: runConfigValidate,
}

var (
	configFormat string
	configFile   string
)

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configShowCmd.Flags().StringVarP(&configFormat, "output", "o", "yaml", "Output format (yaml|json)")
	configValidateCmd.Flags().StringVarP(&configFile, "file", "f", "", "Configuration file to validate (default: .surfacepool.yml)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if err := ValidateFormatWithSuggestion(configFormat, []string{"yaml", "json"}); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	return writeOutput(cmd.OutOrStdout(), configFormat, cfg, nil)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	targetFile := configFile
	if targetFile == "" {
		targetFile = ".surfacepool.yml"
	}

	if _, err := os.Stat(targetFile); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("configuration file %s does not exist", targetFile)
	}

	v := viper.New()
	v.SetConfigFile(targetFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	cfg, err := config.LoadFrom(v)
	if err != nil {
		return err
	}

	rules, err := cfg.Visibility.DependencyRules()
	if err != nil {
		return err
	}
	defaults, err := cfg.Visibility.InitialFlags()
	if err != nil {
		return err
	}
	engine, err := visibility.NewEngine(rules, visibility.WithDefaults(defaults))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s is valid\n", targetFile)
	fmt.Fprintf(tw, "pool capacity:\t%d\n", cfg.Pool.Capacity)
	fmt.Fprintf(tw, "rules:\t%d\n", len(engine.Rules()))
	fmt.Fprintf(tw, "defaults:\t%d\n", len(defaults))
	return tw.Flush()
}
