package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"RefreshSentinel/internal/boost"
	"RefreshSentinel/internal/model"
	"RefreshSentinel/internal/notifier"
	"RefreshSentinel/internal/registry"
)

var (
	boostKind   string
	boostWeight int
	boostTTL    int
	boostSource string

	seedFile     string
	seedPriority int
)

var boostCmd = &cobra.Command{
	Use:   "boost SYMBOL",
	Short: "Attach a temporary priority boost to a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runBoost,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create registry entries from a symbols file",
	Long: `Read one symbol per line (blank lines and # comments are ignored) and
create every symbol not yet in the registry. Existing symbols are untouched.`,
	RunE: runSeed,
}

var statusCmd = &cobra.Command{
	Use:   "status [SYMBOL]",
	Short: "Show the last run, or one symbol's registry state",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(boostCmd, seedCmd, statusCmd)

	boostCmd.Flags().StringVar(&boostKind, "kind", "manual", "Boost kind, e.g. user_interest or news")
	boostCmd.Flags().IntVar(&boostWeight, "weight", 1, fmt.Sprintf("Priority increment [1,%d]", boost.MaxWeight))
	boostCmd.Flags().IntVar(&boostTTL, "ttl", 24, fmt.Sprintf("Lifetime in hours [1,%d]", boost.MaxTTLHours))
	boostCmd.Flags().StringVar(&boostSource, "source", "cli", "Who asked for the boost")

	seedCmd.Flags().StringVar(&seedFile, "file", "", "Symbols file (defaults to registry.symbols_file)")
	seedCmd.Flags().IntVar(&seedPriority, "priority", 0, "Base priority for new symbols (defaults to scheduler.default_priority)")
}

func runBoost(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.boosts.Apply(ctx, model.BoostRequest{
		Symbol:   args[0],
		Kind:     boostKind,
		Weight:   boostWeight,
		TTLHours: boostTTL,
		Source:   boostSource,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s boosted to %s (effective %d) until %s\n",
		resp.Symbol, resp.EffectivePriorityLabel, resp.EffectivePriority, resp.ExpiresAt.Format(time.RFC3339))
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	path := seedFile
	if path == "" {
		path = a.cfg.Registry.SymbolsFile
	}
	if path == "" {
		return fmt.Errorf("no symbols file: pass --file or set registry.symbols_file")
	}
	priority := seedPriority
	if priority == 0 {
		priority = a.cfg.Scheduler.DefaultPriority
	}

	symbols, err := registry.LoadSymbolsFile(path)
	if err != nil {
		return err
	}
	n, err := registry.Seed(ctx, a.store, symbols, priority)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d of %d symbols from %s\n", n, len(symbols), path)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		e, err := a.store.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("%s: %w", model.NormalizeSymbol(args[0]), err)
		}
		now := time.Now()
		fmt.Fprintln(out, notifier.FormatSymbol(e.State, boost.EffectivePriority(e.State, now), boost.Label(e.State, now)))
		return nil
	}

	last, err := a.runner.LastRun()
	if err != nil {
		return err
	}
	if last == nil {
		fmt.Fprintln(out, "no run recorded yet")
	} else {
		fmt.Fprintln(out, last.Line())
	}

	entries, err := a.store.GetAll(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tPRIORITY\tSTATUS\tFAILURES\tLAST REFRESHED")
	for _, e := range entries {
		refreshed := "never"
		if e.State.LastRefreshed != nil {
			refreshed = e.State.LastRefreshed.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			e.State.Symbol, boost.Label(e.State, now), e.State.Status, e.State.FailureCount, refreshed)
	}
	return w.Flush()
}
