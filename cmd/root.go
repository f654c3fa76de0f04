package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Weft - context logistics for coding agents",
	Long:  `Weft manages an agent's context window as versioned, referenceable objects that can be activated or collapsed to metadata.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "weft.yaml", "path to config file")
}

func Execute() error {
	return rootCmd.Execute()
}
