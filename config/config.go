package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mod-update-notifier/logger"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds all configuration for the application.
// Values are loaded by Viper from a config file and/or environment variables.
type Config struct {
	DiscordToken    string `mapstructure:"DISCORD_TOKEN"`
	DiscordAPIURL   string `mapstructure:"DISCORD_API_URL"`
	PortalURL       string `mapstructure:"PORTAL_URL"`
	PortalAssetsURL string `mapstructure:"PORTAL_ASSETS_URL"`
	UserAgent       string `mapstructure:"USERAGENT"`
	DataDir         string `mapstructure:"DATA_DIR"`
	DatabasePath    string `mapstructure:"-"` // Not from env, derived
	LogFile         string `mapstructure:"LOG_FILE"`

	// Cycle timing
	PollInterval time.Duration `mapstructure:"POLL_INTERVAL"`
	FetchTimeout time.Duration `mapstructure:"FETCH_TIMEOUT"`
	CycleTimeout time.Duration `mapstructure:"CYCLE_TIMEOUT"`
	RunOnStart   bool          `mapstructure:"RUN_ON_START"`

	// Outbound delivery
	SendTimeout     time.Duration `mapstructure:"SEND_TIMEOUT"`
	SendConcurrency int           `mapstructure:"SEND_CONCURRENCY"`
	SendRate        float64       `mapstructure:"SEND_RATE"`   // messages per second, all targets
	SendBurst       int           `mapstructure:"SEND_BURST"`
	TargetRate      float64       `mapstructure:"TARGET_RATE"` // messages per second, one channel
	MaxRetries      int           `mapstructure:"MAX_RETRIES"`
	BackoffBase     time.Duration `mapstructure:"BACKOFF_BASE"`

	// Diff and formatting
	DiffWorkers        int  `mapstructure:"DIFF_WORKERS"`
	ChangelogLines     int  `mapstructure:"CHANGELOG_LINES"`
	ChangelogCacheSize int  `mapstructure:"CHANGELOG_CACHE_SIZE"`
	SuppressInitial    bool `mapstructure:"SUPPRESS_INITIAL"`

	// Optional outer surfaces; empty disables them
	NATSURL  string `mapstructure:"NATS_URL"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
}

// envKeys lists every key bound to an environment variable of the same name.
var envKeys = []string{
	"DISCORD_TOKEN", "DISCORD_API_URL", "PORTAL_URL", "PORTAL_ASSETS_URL", "USERAGENT",
	"DATA_DIR", "LOG_FILE", "POLL_INTERVAL", "FETCH_TIMEOUT", "CYCLE_TIMEOUT", "RUN_ON_START",
	"SEND_TIMEOUT", "SEND_CONCURRENCY", "SEND_RATE", "SEND_BURST", "TARGET_RATE",
	"MAX_RETRIES", "BACKOFF_BASE", "DIFF_WORKERS", "CHANGELOG_LINES", "CHANGELOG_CACHE_SIZE",
	"SUPPRESS_INITIAL", "NATS_URL", "HTTP_ADDR",
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)   // Path to look for the config file in
	viper.SetConfigName(".env") // Name of config file (without extension)
	viper.SetConfigType("env")  // REQUIRED if the config file does not have the extension in the name

	vipErr := viper.ReadInConfig()
	if _, ok := vipErr.(viper.ConfigFileNotFoundError); ok {
		logger.Log.Info("Config file (.env) not found, relying on environment variables.")
	} else if vipErr != nil {
		return Config{}, fmt.Errorf("fatal error config file: %w", vipErr)
	}

	// Viper will check for an environment variable matching the key name (e.g., POLL_INTERVAL)
	viper.AutomaticEnv()
	for _, key := range envKeys {
		if err := viper.BindEnv(key, key); err != nil {
			logger.Log.Warnw("Unable to bind env var", zap.String("key", key), zap.Error(err))
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct, %w", err)
	}

	processConfigDefaults(&config)

	if err := validateAndEnsureDirectories(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}

// processConfigDefaults fills every unset value. This is the only place
// defaults live; the rest of the program takes its numbers from Config.
func processConfigDefaults(config *Config) {
	if config.PortalURL == "" {
		config.PortalURL = "https://mods.factorio.com"
	}
	if config.PortalAssetsURL == "" {
		config.PortalAssetsURL = "https://assets-mod.factorio.com"
	}
	if config.DiscordAPIURL == "" {
		config.DiscordAPIURL = "https://discord.com/api/v10"
	}
	if config.UserAgent == "" {
		config.UserAgent = "mod-update-notifier/dev (unknown-user)"
		logger.Log.Warn("USERAGENT not set in config or environment, using default.")
	}
	if config.DataDir == "" {
		config.DataDir = "data"
	}
	if config.LogFile == "" {
		config.LogFile = "mod-update-notifier.log"
	}

	if config.PollInterval <= 0 {
		config.PollInterval = time.Minute
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 30 * time.Second
	}
	if config.CycleTimeout <= 0 {
		config.CycleTimeout = 10 * time.Minute
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 10 * time.Second
	}
	if config.SendConcurrency <= 0 {
		config.SendConcurrency = 4
	}
	if config.SendRate <= 0 {
		config.SendRate = 40 // Discord allows 50 req/s per bot; stay below it
	}
	if config.SendBurst <= 0 {
		config.SendBurst = 5
	}
	if config.TargetRate <= 0 {
		config.TargetRate = 1
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	} else if config.MaxRetries == 0 && !viper.IsSet("MAX_RETRIES") {
		config.MaxRetries = 3
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = 500 * time.Millisecond
	}
	if config.DiffWorkers <= 0 {
		config.DiffWorkers = 4
	}
	if config.ChangelogLines <= 0 {
		config.ChangelogLines = 15
	}
	if config.ChangelogCacheSize <= 0 {
		config.ChangelogCacheSize = 256
	}

	// Viper doesn't handle bool defaults from env well without explicit SetDefault
	if !viper.IsSet("SUPPRESS_INITIAL") {
		config.SuppressInitial = true
	}
	if !viper.IsSet("RUN_ON_START") {
		config.RunOnStart = true
	}
}

// validateAndEnsureDirectories checks required values and creates the data directory.
func validateAndEnsureDirectories(config *Config) error {
	if config.DataDir == "" {
		logger.Log.Error("DATA_DIR is not set")
		return fmt.Errorf("DATA_DIR is required")
	}
	if config.SendBurst < 1 {
		return fmt.Errorf("SEND_BURST must be at least 1, got %d", config.SendBurst)
	}
	if config.CycleTimeout > 0 && config.FetchTimeout > config.CycleTimeout {
		return fmt.Errorf("FETCH_TIMEOUT (%s) must not exceed CYCLE_TIMEOUT (%s)", config.FetchTimeout, config.CycleTimeout)
	}

	if _, err := os.Stat(config.DataDir); os.IsNotExist(err) {
		logger.Log.Infow("Data directory does not exist, creating it", zap.String("path", config.DataDir))
		if err := os.MkdirAll(config.DataDir, 0755); err != nil {
			logger.Log.Errorw("Failed to create data directory", zap.String("path", config.DataDir), zap.Error(err))
			return err
		}
	} else if err != nil {
		logger.Log.Errorw("Failed to check data directory", zap.String("path", config.DataDir), zap.Error(err))
		return err
	}

	// Derive DatabasePath (place it in the data dir for portability)
	config.DatabasePath = filepath.Join(config.DataDir, "mods.db")
	return nil
}
