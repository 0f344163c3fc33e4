package cmd

import (
	"sigecof/internal/repository"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()
		return repository.MigrateDB(a.db, a.logger)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
