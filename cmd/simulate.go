package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/conneroisu/surfacepool/internal/di"
	"github.com/conneroisu/surfacepool/internal/pool"
	"github.com/conneroisu/surfacepool/internal/types"
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:     "simulate",
	Aliases: []string{"sim"},
	Short:   "Attach consumers to pooled surfaces and run a visibility scenario",
	Long: `Attach a number of consumers to pooled in-memory surfaces, then run this
scenario and print every dispatch result:

  1. glyph:Reversals=false   an element no rule gates
  2. motion:red=false        hides red and the glyphs that require it
  3. glyph:TKA=true          base write, still gated by red
  4. motion:red=true         restores the gated glyphs

Consumers beyond the pool capacity receive overflow surfaces. With --fail N
the Nth consumer fails every update; the others still receive every change.

Examples:
  surfacepool simulate
  surfacepool simulate --consumers 6 --capacity 2
  surfacepool simulate --fail 2 -o json`,
	RunE: runSimulate,
}

var simulateFlags *StandardFlags

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateFlags = AddStandardFlags(simulateCmd, "output", "simulate")
}

var simulationSteps = []ElementAssignment{
	{Element: types.Key(types.ElementGlyph, "Reversals"), Visible: false},
	{Element: types.Key(types.ElementMotion, "red"), Visible: false},
	{Element: types.Key(types.ElementGlyph, "TKA"), Visible: true},
	{Element: types.Key(types.ElementMotion, "red"), Visible: true},
}

type consumerRecord struct {
	RegistrationID uint64 `json:"registration_id" yaml:"registration_id"`
	InstanceID     uint64 `json:"instance_id" yaml:"instance_id"`
	Overflow       bool   `json:"overflow" yaml:"overflow"`
	Failing        bool   `json:"failing" yaml:"failing"`
	Hidden         int    `json:"hidden" yaml:"hidden"`
}

type simulationReport struct {
	Consumers []consumerRecord    `json:"consumers" yaml:"consumers"`
	Steps     []dispatchRecord    `json:"steps" yaml:"steps"`
	Flags     []flagRecord        `json:"flags" yaml:"flags"`
	Pool      types.PoolStats     `json:"pool" yaml:"pool"`
	Registry  types.RegistryStats `json:"registry" yaml:"registry"`
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if err := simulateFlags.ValidateFlags(); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if simulateFlags.Capacity >= 0 {
		cfg.Pool.Capacity = simulateFlags.Capacity
	}

	container := di.NewContainer(cfg, newMemorySurface, newLogger(cfg))
	if err := container.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer container.Shutdown(cmd.Context())

	attachments := make([]*di.Attachment, 0, simulateFlags.Consumers)
	defer func() {
		for _, a := range attachments {
			_ = container.Detach(a)
		}
	}()

	for i := 1; i <= simulateFlags.Consumers; i++ {
		a, err := attachViewConsumer(container, pool.CheckoutOptions{
			Owner: fmt.Sprintf("consumer-%d", i),
		}, i == simulateFlags.Fail)
		if err != nil {
			return fmt.Errorf("failed to attach consumer %d: %w", i, err)
		}
		attachments = append(attachments, a)
	}

	report := simulationReport{}
	for _, step := range simulationSteps {
		result := container.ApplyVisibilityChange(step.Element, step.Visible)
		report.Steps = append(report.Steps, newDispatchRecord(step.String(), result))
	}

	for i, a := range attachments {
		consumer := a.Consumer.(*viewConsumer)
		report.Consumers = append(report.Consumers, consumerRecord{
			RegistrationID: uint64(a.RegistrationID),
			InstanceID:     a.Instance.ID(),
			Overflow:       a.Instance.Overflow(),
			Failing:        i+1 == simulateFlags.Fail,
			Hidden:         consumer.hidden(),
		})
	}
	report.Flags = flagRecords(container.Engine())
	report.Pool = container.Pool().Stats()
	report.Registry = container.Registry().Stats()

	return writeOutput(cmd.OutOrStdout(), simulateFlags.OutputFormat, report, func(tw *tabwriter.Writer) error {
		fmt.Fprintln(tw, "CONSUMER\tINSTANCE\tOVERFLOW\tFAILING\tHIDDEN")
		for _, c := range report.Consumers {
			fmt.Fprintf(tw, "#%d\t%d\t%t\t%t\t%d\n", c.RegistrationID, c.InstanceID, c.Overflow, c.Failing, c.Hidden)
		}
		fmt.Fprintln(tw)
		writeDispatchTable(tw, report.Steps)
		fmt.Fprintln(tw)
		writeFlagTable(tw, report.Flags)
		fmt.Fprintln(tw)
		fmt.Fprintf(tw, "POOL\tidle=%d checked_out=%d overflow=%d capacity=%d\n",
			report.Pool.Idle, report.Pool.CheckedOut, report.Pool.Overflow, report.Pool.Capacity)
		fmt.Fprintf(tw, "REGISTRY\tregistered=%d broadcasts=%d delivered=%d failed=%d\n",
			report.Registry.Registered, report.Registry.Broadcasts, report.Registry.Delivered, report.Registry.Failed)
		return nil
	})
}
