package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newDetectCmd creates the 'detect' subcommand, a one-shot run of every
// signal detector over the recent raw items.
func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Runs the signal detectors once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			n, err := appInstance.Detect(cmd.Context())
			if err != nil {
				return fmt.Errorf("detect signals: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), map[string]int{"signals": n})
		},
	}
}

// newCycleCmd creates the 'cycle' subcommand, a single candidate cycle.
func newCycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Runs one candidate cycle and prints its report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := appInstance.Cycle(cmd.Context())
			if err != nil {
				return fmt.Errorf("run cycle: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}
