package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "myos",
	Short: "Mount a project as an overlay filesystem",
	Long:  `MyOS overlays a project directory with template-backed embryo directories that materialize on first write.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (not read: settings always load from $XDG_CONFIG_HOME/myos/config.yaml or ~/.config/myos/config.yaml)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "enable debug logging")
}
