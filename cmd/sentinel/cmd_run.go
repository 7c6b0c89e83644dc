package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"RefreshSentinel/internal/model"
	"RefreshSentinel/internal/scheduler"
)

var runSymbols []string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a single refresh run and wait for its outcomes",
	Long: `Execute one scheduler run against the configured registry, then wait
until the executor has reported an outcome for every admitted symbol.

Examples:
  sentinel run
  sentinel run --symbol INFY --symbol TCS`,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSliceVar(&runSymbols, "symbol", nil, "Restrict the run to these symbols (repeatable)")
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	// Close waits for the executor before storage goes away.
	defer a.Close()

	sum, err := a.runner.Run(ctx, scheduler.RunOptions{Symbols: runSymbols})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), sum.Line())
	if sum.Status == model.RunAborted {
		return fmt.Errorf("run %s aborted: %s", sum.RunID, sum.Reason)
	}
	return nil
}
