package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/susu3304/warikan/internal/settle"
)

func newBalancesCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "balances FILE",
		Short: "Show totals, the fair share and every balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := readBatch(cmd, args[0])
			if err != nil {
				return err
			}
			report, err := settle.Analyze(batch)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			f := opts.formatter()
			if err := f.Report(out, report); err != nil {
				return err
			}
			fmt.Fprintln(out)
			return f.Balances(out, report.Balances)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the exact report as JSON")
	return cmd
}
