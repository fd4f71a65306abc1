package cmd

import (
	"fmt"

	"modio-repo/db"
	"modio-repo/logger"
	"modio-repo/ui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows how many mods each repository holds",
	Run: func(cmd *cobra.Command, args []string) {
		a := bootstrap(".", false)
		defer a.close()

		counts, err := a.store.Counts(cmd.Context())
		if err != nil {
			logger.Log.Fatalw("Failed to count mods", zap.Error(err))
		}
		fmt.Println(renderStatus(counts))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func renderStatus(c db.Counts) string {
	row := func(label string, n int64) string {
		return fmt.Sprintf("%-10s %s", label, ui.Bold.Render(fmt.Sprint(n)))
	}
	malformed := row("malformed", c.Malformed)
	if c.Malformed > 0 {
		malformed = fmt.Sprintf("%-10s %s", "malformed", ui.Failure.Render(fmt.Sprint(c.Malformed)))
	}
	body := ui.Colorize("mod.io repository", ui.ModioBlue) + "\n\n" +
		row("standard", c.Standard) + "\n" +
		row("explicit", c.Explicit) + "\n" +
		malformed
	return ui.Box.Render(body)
}
