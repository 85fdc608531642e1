package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/conneroisu/surfacepool/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// StandardFlags provides consistent flag definitions across commands
type StandardFlags struct {
	// Output flags
	OutputFormat string `flag:"output,o" desc:"Output format (table|json|yaml)" default:"table"`

	// Simulation flags
	Consumers int `flag:"consumers,n" desc:"Number of consumers to attach" default:"3"`
	Fail      int `flag:"fail" desc:"1-based index of a consumer that fails every update (0 for none)" default:"0"`
	Capacity  int `flag:"capacity" desc:"Override the configured pool capacity (-1 keeps it)" default:"-1"`
}

// AddStandardFlags adds standard flags to a command
func AddStandardFlags(cmd *cobra.Command, flagTypes ...string) *StandardFlags {
	flags := &StandardFlags{}

	for _, flagType := range flagTypes {
		switch flagType {
		case "output":
			addOutputFlags(cmd, flags)
		case "simulate":
			addSimulateFlags(cmd, flags)
		}
	}

	return flags
}

func addOutputFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.OutputFormat, "output", "o", "table", "Output format (table|json|yaml)")
}

func addSimulateFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().IntVarP(&flags.Consumers, "consumers", "n", 3, "Number of consumers to attach")
	cmd.Flags().IntVar(&flags.Fail, "fail", 0, "1-based index of a consumer that fails every update (0 for none)")
	cmd.Flags().IntVar(&flags.Capacity, "capacity", -1, "Override the configured pool capacity (-1 keeps it)")
}

// ValidateFlags validates flag combinations and values
func (f *StandardFlags) ValidateFlags() error {
	if err := ValidateFormatWithSuggestion(f.OutputFormat, []string{"table", "json", "yaml"}); err != nil {
		return err
	}
	if f.Consumers < 0 {
		return fmt.Errorf("consumers must not be negative, got %d", f.Consumers)
	}
	if f.Fail < 0 || f.Fail > f.Consumers {
		return fmt.Errorf("fail must be between 0 and %d, got %d", f.Consumers, f.Fail)
	}
	return nil
}

// ValidateFormatWithSuggestion rejects an unknown output format and names the
// supported ones.
func ValidateFormatWithSuggestion(format string, valid []string) error {
	for _, v := range valid {
		if format == v {
			return nil
		}
	}
	return fmt.Errorf("invalid format '%s', supported formats: %s", format, strings.Join(valid, ", "))
}

// ElementAssignment is one "type:name=bool" flag write.
type ElementAssignment struct {
	Element types.ElementKey
	Visible bool
}

// ParseElementAssignment parses "type:name=bool".
func ParseElementAssignment(s string) (ElementAssignment, error) {
	element, value, ok := strings.Cut(s, "=")
	if !ok {
		return ElementAssignment{}, fmt.Errorf("assignment %q must be in type:name=bool form", s)
	}

	key, err := types.ParseElementKey(element)
	if err != nil {
		return ElementAssignment{}, err
	}

	visible, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return ElementAssignment{}, fmt.Errorf("assignment %q: value must be a boolean", s)
	}

	return ElementAssignment{Element: key, Visible: visible}, nil
}

// String returns the "type:name=bool" form.
func (a ElementAssignment) String() string {
	return fmt.Sprintf("%s=%t", a.Element, a.Visible)
}

// AssignmentsValue is a repeatable pflag.Value collecting assignments.
type AssignmentsValue struct {
	assignments []ElementAssignment
}

var _ pflag.Value = (*AssignmentsValue)(nil)

func (v *AssignmentsValue) String() string {
	parts := make([]string, len(v.assignments))
	for i, a := range v.assignments {
		parts[i] = a.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Set accepts one assignment or a comma-separated list.
func (v *AssignmentsValue) Set(s string) error {
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		a, err := ParseElementAssignment(part)
		if err != nil {
			return err
		}
		v.assignments = append(v.assignments, a)
	}
	return nil
}

func (v *AssignmentsValue) Type() string {
	return "assignments"
}

// Assignments returns the collected assignments in order.
func (v *AssignmentsValue) Assignments() []ElementAssignment {
	return v.assignments
}

// Reset drops every collected assignment.
func (v *AssignmentsValue) Reset() {
	v.assignments = nil
}
