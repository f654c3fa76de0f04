package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adalundhe/weft/core/config"
)

var historyCmd = &cobra.Command{
	Use:   "history [object-id]",
	Short: "Print the version history of an object",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	backend, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	versions, err := backend.History(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	for _, v := range versions {
		content := "null"
		if v.Object.Content != nil {
			content = fmt.Sprintf("%d chars", len(*v.Object.Content))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "v%d  %s  object=%s  content=%s\n",
			v.Seq, v.TxTime.Format("2006-01-02 15:04:05"),
			v.Object.ObjectHash.Short(), content)
	}
	return nil
}
