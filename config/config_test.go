package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestProcessConfigDefaults(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		viper.Reset()
		cfg := Config{}
		processConfigDefaults(&cfg)

		if cfg.GameID != 3809 {
			t.Errorf("Expected GameID to be 3809, got %d", cfg.GameID)
		}
		if cfg.MaxParallel != 8 {
			t.Errorf("Expected MaxParallel to be 8, got %d", cfg.MaxParallel)
		}
		if cfg.DownloadTimeout != 5*time.Minute {
			t.Errorf("Expected DownloadTimeout to be 5m, got %s", cfg.DownloadTimeout)
		}
		if cfg.BackfillProbability != 0.05 {
			t.Errorf("Expected BackfillProbability to be 0.05, got %v", cfg.BackfillProbability)
		}
		if cfg.UserAgent == "" {
			t.Error("Expected UserAgent to have a default value")
		}
		if len(cfg.PlatformPreference) != 2 || cfg.PlatformPreference[0] != "pc" {
			t.Errorf("Expected default platform preference, got %v", cfg.PlatformPreference)
		}
	})

	t.Run("respects existing values", func(t *testing.T) {
		viper.Reset()
		cfg := Config{
			GameID:             42,
			MaxParallel:        2,
			UserAgent:          "custom-agent",
			ModioAPIURL:        "http://localhost:9000/v1/",
			PlatformPreference: []string{"oculus-quest"},
		}
		processConfigDefaults(&cfg)

		if cfg.GameID != 42 {
			t.Errorf("Expected GameID to stay 42, got %d", cfg.GameID)
		}
		if cfg.MaxParallel != 2 {
			t.Errorf("Expected MaxParallel to stay 2, got %d", cfg.MaxParallel)
		}
		if cfg.UserAgent != "custom-agent" {
			t.Errorf("Expected UserAgent to stay custom-agent, got %s", cfg.UserAgent)
		}
		if cfg.ModioAPIURL != "http://localhost:9000/v1" {
			t.Errorf("Expected trailing slash to be trimmed, got %s", cfg.ModioAPIURL)
		}
		if len(cfg.PlatformPreference) != 1 || cfg.PlatformPreference[0] != "oculus-quest" {
			t.Errorf("Expected platform preference to stay, got %v", cfg.PlatformPreference)
		}
	})
}

func TestParsePlatformPreference(t *testing.T) {
	tests := []struct {
		raw      string
		expected int
	}{
		{"", 0},
		{"pc", 1},
		{"pc, oculus-quest", 2},
		{" , pc ,", 1},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := parsePlatformPreference(tt.raw)
			if len(got) != tt.expected {
				t.Errorf("parsePlatformPreference(%q) = %v, want %d entries", tt.raw, got, tt.expected)
			}
		})
	}
}

func TestValidateAndEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("missing static dir", func(t *testing.T) {
		cfg := Config{StaticDir: ""}
		if err := validateAndEnsureDirectories(&cfg); err == nil {
			t.Error("Expected error for missing StaticDir")
		}
	})

	t.Run("bad download template", func(t *testing.T) {
		cfg := Config{StaticDir: tmpDir, ModioDownloadURL: "https://example.com/file"}
		if err := validateAndEnsureDirectories(&cfg); err == nil {
			t.Error("Expected error for download URL without placeholder")
		}
	})

	t.Run("unknown platform", func(t *testing.T) {
		cfg := Config{StaticDir: tmpDir, ModioDownloadURL: defaultDownloadURL, PlatformPreference: []string{"switch"}}
		if err := validateAndEnsureDirectories(&cfg); err == nil {
			t.Error("Expected error for unknown platform")
		}
	})

	t.Run("creates directories", func(t *testing.T) {
		staticDir := filepath.Join(tmpDir, "static")
		cfg := Config{StaticDir: staticDir, ModioDownloadURL: defaultDownloadURL}
		if err := validateAndEnsureDirectories(&cfg); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		for _, path := range []string{staticDir, cfg.PalletDir()} {
			if _, err := os.Stat(path); os.IsNotExist(err) {
				t.Errorf("Directory %s was not created", path)
			}
		}
	})
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	for _, key := range []string{"LOG_FILE", "STATIC_DIR", "MODIO_API_KEY"} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	logFile := filepath.Join(dir, "from-env-file.log")
	env := "MODIO_API_KEY=secret\n" +
		"STATIC_DIR=" + filepath.Join(dir, "static") + "\n" +
		"LOG_FILE=" + logFile + "\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.LogFile != logFile {
		t.Errorf("LogFile = %q, want %q", cfg.LogFile, logFile)
	}
	if cfg.ModioAPIKey != "secret" {
		t.Errorf("ModioAPIKey = %q, want %q", cfg.ModioAPIKey, "secret")
	}
}
