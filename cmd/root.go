package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "mod-update-notifier",
	Short: "Announces mod portal updates to chat communities",
	Long: `Polls the mod portal, detects new mods, new releases and changed
mod info, and posts a notification to every community that follows them.`,
	SilenceUsage: true,
}

// Execute runs the root command. Without arguments the daemon starts.
func Execute() {
	if len(os.Args) == 1 {
		rootCmd.SetArgs([]string{runCmd.Name()})
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "Directory holding the .env config file")
}
