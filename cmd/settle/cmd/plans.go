package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/susu3304/warikan/internal/settle"
)

func newPlansCmd(opts *globalOptions) *cobra.Command {
	var (
		limit    int
		parallel bool
		workers  int
		distinct bool
		shortest bool
		maxNodes int
	)

	cmd := &cobra.Command{
		Use:   "plans FILE",
		Short: "List alternative settlement plans",
		Long: `List the plans found by trying every pairing of debts and credits.

The number of plans grows factorially with the number of participants;
--limit bounds the output and --max-nodes bounds the search. When the
search stops at --max-nodes the plans found so far are still listed.
--parallel searches each first pairing in its own goroutine and returns
the same plans in the same order.

Example:
  settle plans trip.txt --limit 10 --distinct
  settle plans trip.txt --parallel --workers 8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("limit must not be negative")
			}
			if maxNodes < 0 {
				return fmt.Errorf("max-nodes must not be negative")
			}
			batch, err := readBatch(cmd, args[0])
			if err != nil {
				return err
			}
			report, err := settle.Analyze(batch)
			if err != nil {
				return err
			}

			start := time.Now()
			var plans []settle.Plan
			if parallel {
				plans, err = settle.EnumerateParallel(cmd.Context(), report.Balances, settle.ParallelOptions{
					Workers:  workers,
					Limit:    limit,
					Distinct: distinct,
					MaxNodes: maxNodes,
				})
			} else {
				eopts := []settle.EnumOption{settle.MaxNodes(maxNodes)}
				if distinct {
					eopts = append(eopts, settle.Distinct())
				}
				var e *settle.Enumerator
				if e, err = settle.Enumerate(report.Balances, eopts...); err == nil {
					plans, err = e.Collect(limit)
				}
			}
			if errors.Is(err, settle.ErrSearchLimit) {
				slog.Warn("Plan search stopped at the node limit", "max_nodes", maxNodes, "plans", len(plans))
				err = nil
			}
			if err != nil {
				return err
			}
			slog.Debug("Enumerated plans", "count", len(plans), "parallel", parallel, "elapsed", time.Since(start))

			if shortest {
				settle.SortPlans(plans)
			}
			out := cmd.OutOrStdout()
			f := opts.formatter()
			for i, p := range plans {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "Plan %d (%d payments, %d splits):\n", i+1, len(p), p.Splits())
				if err := f.Plan(out, p); err != nil {
					return fmt.Errorf("failed to write plan: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of plans (0 for all)")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "search first pairings concurrently")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent branches with --parallel")
	cmd.Flags().BoolVar(&distinct, "distinct", false, "skip reorderings of plans already listed")
	cmd.Flags().IntVar(&maxNodes, "max-nodes", 5*settle.DefaultMaxNodes, "maximum search nodes visited (0 for no bound)")
	cmd.Flags().BoolVar(&shortest, "shortest", false, "sort by number of payments, then splits")
	return cmd
}
