package cmd

import (
	"modio-repo/config"
	"modio-repo/db"
	"modio-repo/logger"
	"modio-repo/modio"

	"go.uber.org/zap"
)

// app bundles what the commands share.
type app struct {
	cfg    config.Config
	store  *db.Store
	client *modio.Client // nil unless requested
}

// bootstrap handles shared initialization logic for commands. Commands that
// never talk to mod.io pass withClient=false and do not need an API key.
func bootstrap(path string, withClient bool) *app {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		logger.Log.Fatalw("Failed to load configuration", zap.Error(err))
	}
	if err := logger.UseFile(cfg.LogFile); err != nil {
		logger.Log.Warnw("Keeping the current log file", zap.Error(err))
	}

	store, err := db.InitDatabase(cfg.DatabasePath)
	if err != nil {
		logger.Log.Fatalw("Failed to open database", zap.String("path", cfg.DatabasePath), zap.Error(err))
	}
	logger.Log.Infow("Database initialized", zap.String("path", cfg.DatabasePath))

	a := &app{cfg: cfg, store: store}
	if withClient {
		if cfg.ModioAPIKey == "" {
			logger.Log.Fatal("Error: MODIO_API_KEY must be set.")
		}
		a.client, err = modio.NewClient(cfg)
		if err != nil {
			logger.Log.Fatalw("Failed to create mod.io client", zap.Error(err))
		}
	}
	return a
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logger.Log.Warnw("Failed to close database", zap.Error(err))
	}
}

// platformPreference converts configured platform names. Unknown names are
// rejected when the configuration loads.
func platformPreference(names []string) []db.Platform {
	out := make([]db.Platform, 0, len(names))
	for _, n := range names {
		out = append(out, db.Platform(n))
	}
	return out
}
