package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// SetVersion records the build-time version string for the version command.
func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "repairagentctl",
	Short: "repairagentctl — operate the autonomous CI repair agent",
	Long: `repairagentctl starts the webhook listener that drives the CI repair
pipeline, and provides operational commands for inspecting and replaying
in-flight failures.

All state lives in the Postgres-backed durable store; this CLI never
keeps state of its own.`,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "repairagent.yaml", "path to the agent config file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
