package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/conneroisu/surfacepool/internal/pool"
	"github.com/spf13/cobra"
)

var setCmd = &cobra.Command{
	Use:   "set [type:name=bool...]",
	Short: "Apply flag changes and show the resulting cascade",
	Long: `Apply base flag changes, in order, to a fresh engine with one attached
consumer, then print the visibility events each change produced and the
final base and effective value of every known element.

Examples:
  surfacepool set motion:red=false
  surfacepool set motion:red=false glyph:TKA=true motion:red=true
  surfacepool set -a glyph:Reversals=false -o json`,
	RunE: runSet,
}

var (
	setFlags   *StandardFlags
	setAssigns AssignmentsValue
)

func init() {
	rootCmd.AddCommand(setCmd)
	setFlags = AddStandardFlags(setCmd, "output")
	setCmd.Flags().VarP(&setAssigns, "assign", "a", "flag assignment type:name=bool (repeatable)")
}

type setReport struct {
	Steps []dispatchRecord `json:"steps" yaml:"steps"`
	Flags []flagRecord     `json:"flags" yaml:"flags"`
}

func runSet(cmd *cobra.Command, args []string) error {
	if err := ValidateFormatWithSuggestion(setFlags.OutputFormat, []string{"table", "json", "yaml"}); err != nil {
		return err
	}

	assignments := append([]ElementAssignment(nil), setAssigns.Assignments()...)
	defer setAssigns.Reset()
	for _, arg := range args {
		a, err := ParseElementAssignment(arg)
		if err != nil {
			return err
		}
		assignments = append(assignments, a)
	}
	if len(assignments) == 0 {
		return fmt.Errorf("no assignments given")
	}

	container, _, err := newContainer(newMemorySurface)
	if err != nil {
		return err
	}
	defer container.Shutdown(cmd.Context())

	attachment, err := attachViewConsumer(container, pool.CheckoutOptions{Owner: "cli"}, false)
	if err != nil {
		return err
	}
	defer container.Detach(attachment)

	report := setReport{}
	for _, a := range assignments {
		result := container.ApplyVisibilityChange(a.Element, a.Visible)
		report.Steps = append(report.Steps, newDispatchRecord(a.String(), result))
	}
	report.Flags = flagRecords(container.Engine())

	return writeOutput(cmd.OutOrStdout(), setFlags.OutputFormat, report, func(tw *tabwriter.Writer) error {
		writeDispatchTable(tw, report.Steps)
		fmt.Fprintln(tw)
		writeFlagTable(tw, report.Flags)
		return nil
	})
}
