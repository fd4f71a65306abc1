package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultAPIURL          = "https://api.mod.io/v1"
	defaultDownloadURL     = "https://api.mod.io/mods/file/%d"
	defaultGameID          = 3809 // BONELAB
	defaultUserAgent       = "modio-repo/dev"
	defaultStaticDir       = "./static"
	defaultDatabasePath    = "db.sqlite3"
	defaultMaxParallel     = 8
	defaultDownloadTimeout = 5 * time.Minute
	defaultBackfill        = 0.05
	defaultPageSize        = 100
	defaultFileListLimit   = 10
	defaultManifestBaseURL = "https://blrepo.laund.moe"
	defaultListenAddr      = ":8080"
)

// DefaultPlatformPreference is the order in which platforms are consulted
// when picking the descriptor that describes a listing.
var DefaultPlatformPreference = []string{"pc", "oculus-quest"}

// Config holds all configuration for the application.
// Values are loaded by Viper from a config file and/or environment variables.
type Config struct {
	ModioAPIKey         string        `mapstructure:"MODIO_API_KEY"`
	ModioAccessToken    string        `mapstructure:"MODIO_ACCESS_TOKEN"`
	ModioAPIURL         string        `mapstructure:"MODIO_API_URL"`
	ModioDownloadURL    string        `mapstructure:"MODIO_DOWNLOAD_URL"`
	GameID              int64         `mapstructure:"MODIO_GAME_ID"`
	UserAgent           string        `mapstructure:"USERAGENT"`
	StaticDir           string        `mapstructure:"STATIC_DIR"`
	DatabasePath        string        `mapstructure:"DATABASE_PATH"`
	MaxParallel         int           `mapstructure:"MAX_PARALLEL"`
	DownloadTimeout     time.Duration `mapstructure:"DOWNLOAD_TIMEOUT"`
	BackfillProbability float64       `mapstructure:"BACKFILL_PROBABILITY"`
	PageSize            int           `mapstructure:"PAGE_SIZE"`
	FileListLimit       int           `mapstructure:"FILE_LIST_LIMIT"`
	ManifestBaseURL     string        `mapstructure:"MANIFEST_BASE_URL"`
	PlatformPreference  []string      `mapstructure:"-"` // Parsed from PLATFORM_PREFERENCE
	ListenAddr          string        `mapstructure:"LISTEN_ADDR"`
	LogFile             string        `mapstructure:"LOG_FILE"`
}

// PalletDir is where extracted descriptor files are written.
func (c Config) PalletDir() string {
	return filepath.Join(c.StaticDir, "pallets")
}

var envKeys = []string{
	"MODIO_API_KEY",
	"MODIO_ACCESS_TOKEN",
	"MODIO_API_URL",
	"MODIO_DOWNLOAD_URL",
	"MODIO_GAME_ID",
	"USERAGENT",
	"STATIC_DIR",
	"DATABASE_PATH",
	"MAX_PARALLEL",
	"DOWNLOAD_TIMEOUT",
	"BACKFILL_PROBABILITY",
	"PAGE_SIZE",
	"FILE_LIST_LIMIT",
	"MANIFEST_BASE_URL",
	"PLATFORM_PREFERENCE",
	"LISTEN_ADDR",
	"LOG_FILE",
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)   // Path to look for the config file in
	viper.SetConfigName(".env") // Name of config file (without extension)
	viper.SetConfigType("env")  // REQUIRED if the config file does not have the extension in the name

	vipErr := viper.ReadInConfig()
	if _, ok := vipErr.(viper.ConfigFileNotFoundError); ok {
		slog.Info("Config file (.env) not found, relying on environment variables.")
	} else if vipErr != nil {
		return Config{}, fmt.Errorf("fatal error config file: %w", vipErr)
	}

	viper.AutomaticEnv()
	for _, key := range envKeys {
		if err := viper.BindEnv(key); err != nil {
			slog.Warn("Unable to bind env var", "key", key, "error", err)
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct, %w", err)
	}
	config.PlatformPreference = parsePlatformPreference(viper.GetString("PLATFORM_PREFERENCE"))

	processConfigDefaults(&config)

	if err := validateAndEnsureDirectories(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}

// processConfigDefaults fills every unset field with its default.
func processConfigDefaults(config *Config) {
	if config.ModioAPIURL == "" {
		config.ModioAPIURL = defaultAPIURL
	}
	config.ModioAPIURL = strings.TrimRight(config.ModioAPIURL, "/")
	if config.ModioDownloadURL == "" {
		config.ModioDownloadURL = defaultDownloadURL
	}
	if config.GameID == 0 {
		config.GameID = defaultGameID
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
		slog.Warn("USERAGENT not set in config or environment, using default.")
	}
	if config.StaticDir == "" {
		config.StaticDir = defaultStaticDir
	}
	if config.DatabasePath == "" {
		config.DatabasePath = defaultDatabasePath
	}
	if config.MaxParallel <= 0 {
		config.MaxParallel = defaultMaxParallel
	}
	if config.DownloadTimeout <= 0 {
		config.DownloadTimeout = defaultDownloadTimeout
	}
	// Negative disables backfill; unset uses the default.
	if config.BackfillProbability == 0 && viper.GetString("BACKFILL_PROBABILITY") == "" {
		config.BackfillProbability = defaultBackfill
	}
	if config.PageSize <= 0 {
		config.PageSize = defaultPageSize
	}
	if config.FileListLimit <= 0 {
		config.FileListLimit = defaultFileListLimit
	}
	if config.ManifestBaseURL == "" {
		config.ManifestBaseURL = defaultManifestBaseURL
	}
	config.ManifestBaseURL = strings.TrimRight(config.ManifestBaseURL, "/")
	if len(config.PlatformPreference) == 0 {
		config.PlatformPreference = append([]string(nil), DefaultPlatformPreference...)
	}
	if config.ListenAddr == "" {
		config.ListenAddr = defaultListenAddr
	}
}

// validateAndEnsureDirectories checks required values and creates the
// output directories.
func validateAndEnsureDirectories(config *Config) error {
	if config.StaticDir == "" {
		return fmt.Errorf("STATIC_DIR is required")
	}
	if !strings.Contains(config.ModioDownloadURL, "%d") {
		return fmt.Errorf("MODIO_DOWNLOAD_URL must contain a %%d placeholder for the file id")
	}
	for _, p := range config.PlatformPreference {
		if p != "pc" && p != "oculus-quest" {
			return fmt.Errorf("unknown platform %q in PLATFORM_PREFERENCE", p)
		}
	}

	for _, dir := range []string{config.StaticDir, config.PalletDir()} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			slog.Info("Directory does not exist, creating it", "path", dir)
			if err := os.MkdirAll(dir, 0755); err != nil {
				slog.Error("Failed to create directory", "path", dir, "error", err)
				return err
			}
		} else if err != nil {
			slog.Error("Failed to check directory", "path", dir, "error", err)
			return err
		}
	}
	return nil
}

func parsePlatformPreference(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
