package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/conneroisu/surfacepool/internal/version"
	"github.com/spf13/cobra"
)

var versionShort bool

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for surfacepool including the semantic
version, git commit, build timestamp, Go version and target platform.

Examples:
  surfacepool version              # Show version details
  surfacepool version --short      # Show short version only
  surfacepool version -o json      # Output as JSON`,
	RunE: runVersionCommand,
}

var versionFlags *StandardFlags

func init() {
	rootCmd.AddCommand(versionCmd)
	versionFlags = AddStandardFlags(versionCmd, "output")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	if err := ValidateFormatWithSuggestion(versionFlags.OutputFormat, []string{"table", "json", "yaml"}); err != nil {
		return err
	}

	if versionShort {
		fmt.Fprintln(cmd.OutOrStdout(), version.GetShortVersion())
		return nil
	}

	info := version.GetBuildInfo()
	return writeOutput(cmd.OutOrStdout(), versionFlags.OutputFormat, info, func(tw *tabwriter.Writer) error {
		fmt.Fprintf(tw, "Version:\t%s\n", info.Version)
		if info.GitCommit != "unknown" {
			fmt.Fprintf(tw, "Commit:\t%s\n", info.GitCommit)
		}
		if !info.BuildTime.IsZero() {
			fmt.Fprintf(tw, "Built:\t%s\n", info.BuildTime.Format(time.RFC3339))
		}
		fmt.Fprintf(tw, "Go:\t%s\n", info.GoVersion)
		fmt.Fprintf(tw, "Platform:\t%s\n", info.Platform)
		if !info.Release {
			fmt.Fprintln(tw, "Build:\tdevelopment")
		}
		if info.Dirty {
			fmt.Fprintln(tw, "Dirty:\ttrue")
		}
		return nil
	})
}
