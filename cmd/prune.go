package cmd

import (
	"modio-repo/logger"
	"modio-repo/pallet"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Deletes extracted pallet files no stored pallet refers to",
	Run: func(cmd *cobra.Command, args []string) {
		a := bootstrap(".", false)
		defer a.close()

		if _, err := pallet.Prune(cmd.Context(), a.store, a.cfg.PalletDir(), logger.Log); err != nil {
			logger.Log.Fatalw("Prune failed", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}
