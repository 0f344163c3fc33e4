package cmd

import (
	"fmt"

	"sigecof/internal/service"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored sessions",
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired sessions from the session store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()

		store, err := a.sessionStore()
		if err != nil {
			return err
		}
		n, err := service.NewSessionManager(store, service.DefaultSessionPolicy(), a.logger).Prune(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to prune sessions: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired sessions\n", n)
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsPruneCmd)
	rootCmd.AddCommand(sessionsCmd)
}
