package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sigecof",
	Short: "SIGECOF authentication and session service",
	Long: `Authentication core for SIGECOF: cookie sessions backed by a server-side
store, bearer tokens, remember-me and the forced password change flow.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yml", "path to the YAML config file")
}
