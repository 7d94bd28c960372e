package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/drone-fleet-maintenance/internal/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := database.Migrate(cmd.Context(), db, cfg.DBDriver)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) to %s\n", n, cfg.DBDriver)
			return nil
		},
	}
}
