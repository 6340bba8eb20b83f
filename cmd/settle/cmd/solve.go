package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/susu3304/warikan/internal/settle"
)

func newSolveCmd(opts *globalOptions) *cobra.Command {
	var (
		strategy string
		verify   bool
	)

	cmd := &cobra.Command{
		Use:   "solve FILE",
		Short: "Print one settlement plan",
		Long: `Print one plan that settles every balance.

Strategies:
- first:   pair the first outstanding debt with the first outstanding credit
- largest: pair the largest debt with the largest credit

Example:
  settle solve trip.txt --strategy largest`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settle.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			batch, err := readBatch(cmd, args[0])
			if err != nil {
				return err
			}
			report, err := settle.Analyze(batch)
			if err != nil {
				return err
			}
			plan, err := settle.Settle(report.Balances, s)
			if err != nil {
				return err
			}
			slog.Debug("Solved", "strategy", s, "instructions", len(plan))
			if verify {
				if err := settle.Verify(plan, report.Balances); err != nil {
					return err
				}
				slog.Info("Plan verified", "instructions", len(plan), "bound", len(report.Balances)-1)
			}
			if err := opts.formatter().Plan(cmd.OutOrStdout(), plan); err != nil {
				return fmt.Errorf("failed to write plan: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "first", "pairing strategy: first or largest")
	cmd.Flags().BoolVar(&verify, "verify", false, "check the plan settles every balance")
	return cmd
}
