package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:     "rules",
	Aliases: []string{"r"},
	Short:   "List the visibility dependency rules",
	Long: `List the dependency rules in effect. Each element is effectively visible
only when its own flag is set and every element it requires is effectively
visible.

Examples:
  surfacepool rules              # Table output
  surfacepool rules -o yaml      # Output as YAML`,
	RunE: runRules,
}

var rulesFlags *StandardFlags

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesFlags = AddStandardFlags(rulesCmd, "output")
}

type ruleRecord struct {
	Element    string   `json:"element" yaml:"element"`
	Requires   []string `json:"requires" yaml:"requires"`
	Dependents []string `json:"dependents,omitempty" yaml:"dependents,omitempty"`
}

func runRules(cmd *cobra.Command, args []string) error {
	if err := ValidateFormatWithSuggestion(rulesFlags.OutputFormat, []string{"table", "json", "yaml"}); err != nil {
		return err
	}

	container, _, err := newContainer(newMemorySurface)
	if err != nil {
		return err
	}
	defer container.Shutdown(cmd.Context())
	engine := container.Engine()

	rules := engine.Rules()
	records := make([]ruleRecord, len(rules))
	for i, rule := range rules {
		record := ruleRecord{Element: rule.Element.String()}
		for _, req := range rule.Requires {
			record.Requires = append(record.Requires, req.String())
		}
		for _, dep := range engine.Dependents(rule.Element) {
			record.Dependents = append(record.Dependents, dep.String())
		}
		records[i] = record
	}

	return writeOutput(cmd.OutOrStdout(), rulesFlags.OutputFormat, records, func(tw *tabwriter.Writer) error {
		fmt.Fprintln(tw, "ELEMENT\tREQUIRES")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\n", r.Element, strings.Join(r.Requires, ", "))
		}
		return nil
	})
}
