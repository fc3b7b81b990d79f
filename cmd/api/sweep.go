package main

import (
	"github.com/spf13/cobra"
)

func newSweepCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiry sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.migrate(cmd.Context()); err != nil {
				return err
			}
			res, err := a.sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			opts.logger.Info("sweep finished",
				"due", res.Due, "expired", res.Expired, "refunded", res.Refunded,
				"skipped", res.Skipped, "failed", res.Failed)
			return nil
		},
	}
}
