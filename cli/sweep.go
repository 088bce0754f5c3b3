package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"Gin_postgres_redis_lending/app"

	"github.com/spf13/cobra"
)

type SweepOptions struct {
	*RootOptions
	AsOf string
}

func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one overdue sweep and print the report",
		Long: `Scan open withdrawals past their due date once: send overdue notices
and bill loans past the non-return grace period.

Example:
  lending sweep
  lending sweep --as-of 2026-07-01T00:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf := time.Now()
			if opts.AsOf != "" {
				t, err := time.Parse(time.RFC3339, opts.AsOf)
				if err != nil {
					return fmt.Errorf("--as-of must be RFC3339: %w", err)
				}
				asOf = t
			}
			ctx := cmd.Context()

			a, err := app.New(ctx, app.LoadConfig(), opts.logger(os.Stderr))
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Sweeper.RunOnce(ctx, asOf)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&opts.AsOf, "as-of", "", "evaluate lateness at this RFC3339 time (default now)")
	return cmd
}
