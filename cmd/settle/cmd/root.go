// Package cmd provides CLI commands for settle.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/susu3304/warikan/internal/parser"
	"github.com/susu3304/warikan/internal/render"
	"github.com/susu3304/warikan/internal/settle"
)

type globalOptions struct {
	debug  bool
	symbol string
	places int32
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "settle",
		Short: "Work out who pays whom after a shared trip",
		Long: `settle reads a batch of shared-expense records and prints the
payments that settle every balance.

Records are written one per line:
  Alice spent 500
  Dexter gave 2000 to Harry
  spent(alice, 500).
or as YAML (files ending in .yaml/.yml). Use "-" to read from stdin.

Example:
  settle solve trip.txt
  settle plans trip.txt --limit 5 --parallel
  settle balances trip.yaml`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Setup logging
			logLevel := slog.LevelInfo
			if opts.debug {
				logLevel = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: logLevel,
			}))
			slog.SetDefault(logger)

			return opts.loadDefaults(cmd)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&opts.symbol, "symbol", "", "currency symbol (default $CURRENCY_SYMBOL)")
	rootCmd.PersistentFlags().Int32Var(&opts.places, "places", 0, "decimal places shown (default $CURRENCY_PLACES)")

	rootCmd.AddCommand(newSolveCmd(opts))
	rootCmd.AddCommand(newPlansCmd(opts))
	rootCmd.AddCommand(newBalancesCmd(opts))
	return rootCmd
}

// Execute runs the CLI with os.Args.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// loadDefaults fills flags left unset from the environment (.env included).
func (o *globalOptions) loadDefaults(cmd *cobra.Command) error {
	_ = godotenv.Load()

	if !cmd.Flags().Changed("symbol") {
		o.symbol = os.Getenv("CURRENCY_SYMBOL")
	}
	if !cmd.Flags().Changed("places") {
		if v := os.Getenv("CURRENCY_PLACES"); v != "" {
			n, err := strconv.ParseInt(v, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid CURRENCY_PLACES: %q", v)
			}
			o.places = int32(n)
		}
	}
	if o.places < 0 || o.places > 8 {
		return fmt.Errorf("places must be between 0 and 8, got %d", o.places)
	}
	return nil
}

func (o *globalOptions) formatter() render.Formatter {
	return render.Formatter{Symbol: o.symbol, Places: o.places}
}

// readBatch loads records from a file, or stdin for "-".
func readBatch(cmd *cobra.Command, path string) ([]settle.Record, error) {
	var (
		batch []settle.Record
		err   error
	)
	if path == "-" {
		batch, err = parser.Parse(cmd.InOrStdin())
	} else {
		batch, err = parser.ParseFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	slog.Debug("Parsed batch", "path", path, "records", len(batch))
	return batch, nil
}
