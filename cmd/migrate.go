package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trivago/geolocator/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending geo schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := migrate.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "migrate")
		}
		zap.L().Info("all geo migrations applied successfully")
		return nil
	},
}

func init() { rootCmd.AddCommand(migrateCmd) }
