package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "modio-repo",
	Short: "Mirrors BONELAB mods from mod.io into in-game mod repositories",
	Long: `Pages through the mod.io catalog, extracts the pallet descriptor of
every changed mod and publishes the results as repository files the
BONELAB mod browser can subscribe to.`,
}

// Execute runs the command line. Interrupts cancel the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
