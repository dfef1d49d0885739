package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jjenkins/billtracker/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create any missing database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := store.Migrate(context.Background(), db); err != nil {
			return err
		}
		slog.Info("schema is up to date", "driver", cfg.DBDriver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
