package main

import (
	"github.com/spf13/cobra"

	"github.com/doujins-org/plankit/auth"
	"github.com/doujins-org/plankit/config"
	"github.com/doujins-org/plankit/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Applies the schema and refreshes the permissions of a database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		settings, dbcfg, pool, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		return newMigrator(settings).Apply(ctx, pool, database, dbcfg.Schema)
	},
}

func newMigrator(settings *config.Settings) *migrate.Migrator {
	m := migrate.New(logger)
	m.OnPostMigrate("remove permissions", auth.RemovePermissions)
	m.OnPostMigrate("create extra permissions", auth.CreateExtraPermissions(newMenu(settings), newDashboard(), auth.Apps...))
	return m
}
