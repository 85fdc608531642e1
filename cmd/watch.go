package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conneroisu/surfacepool/internal/pool"
	"github.com/conneroisu/surfacepool/internal/types"
	"github.com/conneroisu/surfacepool/internal/watcher"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch <flags.yml>",
	Aliases: []string{"w"},
	Short:   "Drive visibility flags from a YAML file",
	Long: `Watch a YAML file mapping elements to base flags and apply every change
to a running engine with one attached consumer. An entry is applied whenever
it differs from the engine's base flag, and removing it restores the value the
element had before the file named it, such as a configured default.

Flag file format:
  "motion:red": false
  "glyph:Reversals": false

Examples:
  surfacepool watch flags.yml
  surfacepool watch flags.yml --debounce 500ms`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var watchDebounce time.Duration

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 200*time.Millisecond, "delay before a burst of file changes is applied")
}

func runWatch(cmd *cobra.Command, args []string) error {
	container, cfg, err := newContainer(newMemorySurface)
	if err != nil {
		return err
	}
	defer container.Shutdown(context.Background())

	attachment, err := attachViewConsumer(container, pool.CheckoutOptions{Owner: "watch"}, false)
	if err != nil {
		return err
	}
	defer container.Detach(attachment)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", args[0])

	flagSync := watcher.NewFlagSync(args[0], container, newLogger(cfg))
	return flagSync.Watch(ctx, watchDebounce, func(results []types.DispatchResult) {
		for _, result := range results {
			for _, event := range result.Events {
				fmt.Fprintf(out, "%s\n", event)
			}
			if result.HasFailures() {
				fmt.Fprintf(out, "  %d of %d deliveries failed\n", result.Failed, result.Attempted)
			}
		}
	})
}
