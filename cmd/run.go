package cmd

import (
	"context"

	"modio-repo/logger"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runCmd represents the command that runs when no subcommand is specified
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Syncs the catalog, then builds the repositories",
	Long: `Runs sync followed by build. The repositories are rebuilt even when the
sync stops early, so whatever was stored so far is published.`,
	Run: func(cmd *cobra.Command, args []string) {
		onePage, _ := cmd.Flags().GetBool("one-page")
		useTUI, _ := cmd.Flags().GetBool("tui")

		a := bootstrap(".", true)
		defer a.close()

		res, syncErr := runSync(cmd.Context(), a, onePage, useTUI)
		if syncErr != nil {
			logger.Log.Errorw("Sync failed, building from what is stored", zap.Error(syncErr))
		}
		runID := res.RunID
		if runID == "" {
			runID = uuid.NewString()
		}

		// The sync may have been interrupted; the build still gets to finish.
		ctx := cmd.Context()
		if ctx.Err() != nil {
			ctx = context.WithoutCancel(ctx)
		}
		if _, err := runBuild(ctx, a, runID); err != nil {
			logger.Log.Fatalw("Build failed", zap.Error(err))
		}
		if syncErr != nil {
			a.close()
			logger.Log.Fatal("Finished with sync errors")
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	addSyncFlags(runCmd)

	// Set as default command to run when no subcommand is provided
	rootCmd.Run = runCmd.Run
	addSyncFlags(rootCmd)
}
