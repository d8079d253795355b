// Package cli implements the huddlelight CLI commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/ajur/huddlelight/internal/config"
)

// Version is set at build time via -ldflags "-X .../internal/cli.Version=..."
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "huddlelight",
	Short: "Drive smart lights from meeting activity",
	Long: `Huddlelight watches for meeting activity (Slack huddles, Zoom calls and
remote webhook notifications) and drives networked smart lights through a
LAN bridge: red while a meeting is on, cool blue-white otherwise.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to config file (default ~/.config/huddlelight/config.yaml)")

	// Add subcommands (alphabetical)
	rootCmd.AddCommand(lightsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveConfigPath applies the default location when --config is not given.
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DefaultPath()
}
