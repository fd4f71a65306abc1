package main

import (
	"os"

	"modio-repo/cmd"
	"modio-repo/logger"

	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
)

func main() {
	logger.InitLogger(os.Getenv("LOG_FILE")) // Initialize the logger first
	defer logger.Sync()                     // Ensure logs are flushed on exit

	undo := setMaxProcs()
	defer undo()
	cmd.Execute()
}

// setMaxProcs matches GOMAXPROCS to the container CPU quota.
func setMaxProcs() (undo func()) {
	undo, err := maxprocs.Set(maxprocs.Logger(logger.Log.Infof))
	if err != nil {
		logger.Log.Warnw("Failed to set GOMAXPROCS", zap.Error(err))
	}
	return undo
}
