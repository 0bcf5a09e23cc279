// Package config loads and persists application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Assets  AssetsConfig  `mapstructure:"assets"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds media server configuration
type ServerConfig struct {
	URL   string `mapstructure:"url"`   // Jellyfin server URL
	Token string `mapstructure:"token"` // Jellyfin API key
}

// AssetsConfig consolidates the retry, backoff, cache budget, and memory
// pressure knobs in one place.
type AssetsConfig struct {
	MaxRetries                int    `mapstructure:"max_retries"`
	BackoffMS                 int    `mapstructure:"backoff_ms"`
	Quality                   int    `mapstructure:"quality"`
	MemoryBudgetPercent       int    `mapstructure:"memory_budget_percent"`
	DiskBudgetBytes           int64  `mapstructure:"disk_budget_bytes"`
	LowMemoryThresholdMB      uint64 `mapstructure:"low_memory_threshold_mb"`
	CriticalMemoryThresholdMB uint64 `mapstructure:"critical_memory_threshold_mb"`
	SampleIntervalSec         int    `mapstructure:"sample_interval_sec"`
	CacheDir                  string `mapstructure:"cache_dir"`

	// Roles overrides the per-role candidate fallback chain. Each entry is
	// a list of "Kind@WxH" strings, e.g.
	//   poster: ["Primary@480x720", "Backdrop@1920x1080"]
	Roles map[string][]string `mapstructure:"roles"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:   "",
			Token: "",
		},
		Assets: AssetsConfig{
			MaxRetries:                3,
			BackoffMS:                 500,
			Quality:                   90,
			MemoryBudgetPercent:       25,
			DiskBudgetBytes:           200 << 20,
			LowMemoryThresholdMB:      100,
			CriticalMemoryThresholdMB: 50,
			SampleIntervalSec:         30,
			CacheDir:                  defaultCachePath(),
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "jellyview", "jellyview.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "jellyview", "jellyview.log")
	}
}

// defaultConfigPath returns the default config file path for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "jellyview")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "jellyview")
	}
}

// defaultCachePath returns the default cache directory path for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "jellyview", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "jellyview", "cache")
	}
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(defaultConfigPath())
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("JELLYVIEW")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the current configuration to file
func SaveConfig(cfg *Config) error {
	configPath := defaultConfigPath()

	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Set fields individually to ensure correct key names (snake_case)
	viper.Set("server.url", cfg.Server.URL)
	viper.Set("server.token", cfg.Server.Token)

	viper.Set("assets.max_retries", cfg.Assets.MaxRetries)
	viper.Set("assets.backoff_ms", cfg.Assets.BackoffMS)
	viper.Set("assets.quality", cfg.Assets.Quality)
	viper.Set("assets.memory_budget_percent", cfg.Assets.MemoryBudgetPercent)
	viper.Set("assets.disk_budget_bytes", cfg.Assets.DiskBudgetBytes)
	viper.Set("assets.low_memory_threshold_mb", cfg.Assets.LowMemoryThresholdMB)
	viper.Set("assets.critical_memory_threshold_mb", cfg.Assets.CriticalMemoryThresholdMB)
	viper.Set("assets.sample_interval_sec", cfg.Assets.SampleIntervalSec)
	viper.Set("assets.cache_dir", cfg.Assets.CacheDir)

	viper.Set("logging.file", cfg.Logging.File)
	viper.Set("logging.level", cfg.Logging.Level)

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveToken updates just the token in the configuration
func SaveToken(token string) error {
	viper.Set("server.token", token)

	configPath := defaultConfigPath()
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// IsConfigured returns true if the server URL and token are set
func (c *Config) IsConfigured() bool {
	return c.Server.URL != "" && c.Server.Token != ""
}
