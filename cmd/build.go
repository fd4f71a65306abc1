package cmd

import (
	"context"

	"modio-repo/logger"
	"modio-repo/manifest"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Writes the repository files from the stored mods",
	Long: `Marks mods with pallet errors as malformed, then writes the standard and
explicit repositories, the malformed mod report and meta.json into STATIC_DIR.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := bootstrap(".", false)
		defer a.close()

		if _, err := runBuild(cmd.Context(), a, uuid.NewString()); err != nil {
			logger.Log.Fatalw("Build failed", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(ctx context.Context, a *app, runID string) (manifest.Meta, error) {
	builder := manifest.NewBuilder(a.cfg.ManifestBaseURL, platformPreference(a.cfg.PlatformPreference))
	return manifest.NewGenerator(a.store, builder, a.cfg.StaticDir, logger.Log).Generate(ctx, runID)
}
