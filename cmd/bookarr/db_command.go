package main

import (
	"github.com/spf13/cobra"

	"github.com/bookarr/bookarr/internal/database"
)

// RunDBCommand groups database maintenance subcommands. The teacher's
// own "db migrate" (an offline SQLite-to-Postgres copy) has no bookarr
// equivalent: this module is SQLite-only end to end, so the
// subcommands here are the maintenance operations that make sense for
// a single-file database instead - vacuum and a row-count summary.
func RunDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance operations",
	}
	cmd.AddCommand(runDBVacuumCommand())
	cmd.AddCommand(runDBStatsCommand())
	return cmd
}

func runDBVacuumCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "vacuum",
		Short: "Reclaim free space in the SQLite database file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pcfg, err := loadProcessConfig(cmd)
			if err != nil {
				return err
			}
			db, err := database.New(pcfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			if _, err := db.ExecContext(cmd.Context(), "VACUUM"); err != nil {
				return err
			}
			cmd.Println("vacuum complete")
			return nil
		},
	}
}

var statsTables = []string{"books", "requests", "import_sessions", "import_items", "config"}

func runDBStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print a row-count summary per table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pcfg, err := loadProcessConfig(cmd)
			if err != nil {
				return err
			}
			db, err := database.New(pcfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			for _, table := range statsTables {
				var count int
				if err := db.QueryRowContext(cmd.Context(), "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
					return err
				}
				cmd.Printf("%-20s %d\n", table, count)
			}
			return nil
		},
	}
}
