package cmd

import (
	"context"
	"fmt"

	"modio-repo/logger"
	"modio-repo/pallet"
	"modio-repo/syncer"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirrors the mod.io catalog and extracts pallets of changed mods",
	Long: `Removes extracted pallet files nothing refers to anymore, then pages
through the mod.io catalog. Changed mods have their newest files resolved,
downloaded and searched for pallet descriptors.`,
	Run: func(cmd *cobra.Command, args []string) {
		onePage, _ := cmd.Flags().GetBool("one-page")
		useTUI, _ := cmd.Flags().GetBool("tui")

		a := bootstrap(".", true)
		defer a.close()

		if _, err := runSync(cmd.Context(), a, onePage, useTUI); err != nil {
			logger.Log.Fatalw("Sync failed", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	addSyncFlags(syncCmd)
}

func addSyncFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("one-page", false, "Stop after the first page of the catalog")
	cmd.Flags().Bool("tui", false, "Show live progress in the terminal")
}

func runSync(ctx context.Context, a *app, onePage, useTUI bool) (syncer.Result, error) {
	dir := a.cfg.PalletDir()
	if _, err := pallet.Prune(ctx, a.store, dir, logger.Log); err != nil {
		return syncer.Result{}, fmt.Errorf("prune pallets: %w", err)
	}

	extractor := pallet.NewExtractor(a.store, a.client, dir, a.cfg.DownloadTimeout, logger.Log)
	opts := syncer.OptionsFromConfig(a.cfg)
	opts.OnePage = onePage
	s := syncer.New(a.client, a.store, extractor, opts, logger.Log)

	if useTUI {
		return runSyncTUI(ctx, s)
	}
	return s.Run(ctx)
}
