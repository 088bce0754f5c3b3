package cli

import (
	"fmt"
	"os"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/db"

	"github.com/spf13/cobra"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the lending schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := rootOpts.logger(os.Stderr)
			conn, err := db.Connect(app.LoadConfig().DSN)
			if err != nil {
				return err
			}
			if sqlDB, err := conn.DB(); err == nil {
				defer sqlDB.Close()
			}
			if err := db.Migrate(conn); err != nil {
				return err
			}
			log.Info("schema up to date")
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
