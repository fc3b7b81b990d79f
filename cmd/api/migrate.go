package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/campusquest/backend/internal/config"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Apply the store schema and the job queue tables to the PostgreSQL database in DATABASE_URL.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg.StoreDriver != config.DriverPostgres {
				return errors.New("migrate requires STORE_DRIVER=postgres")
			}
			a, err := newApp(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.migrate(cmd.Context())
		},
	}
}
