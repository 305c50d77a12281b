package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Watch    WatchConfig    `mapstructure:"watch"`
	API      APIConfig      `mapstructure:"api"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// WatchConfig holds the wallet-watching behavior configuration. All of
// these are mutable at runtime through bot commands.
type WatchConfig struct {
	WalletAddress string        `mapstructure:"wallet_address"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	FetchLimit    int           `mapstructure:"fetch_limit"`
	// MinNotionalUSD suppresses notifications for trades below this total
	// dollar value. Zero disables the filter.
	MinNotionalUSD float64 `mapstructure:"min_notional_usd"`
	// StalenessWindow is the maximum age of a trade's timestamp for it to
	// still be eligible for notification.
	StalenessWindow time.Duration `mapstructure:"staleness_window"`
	// SummaryTime is the wall-clock "HH:MM" at which the daily summary is
	// pushed automatically.
	SummaryTime string `mapstructure:"summary_time"`
}

// APIConfig holds upstream Polymarket API configuration.
type APIConfig struct {
	DataAPIURL     string        `mapstructure:"data_api_url"`
	GammaAPIURL    string        `mapstructure:"gamma_api_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	// RatePerSec caps outbound requests per upstream host.
	RatePerSec float64 `mapstructure:"rate_per_sec"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds the trade journal configuration.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
	// MaxTrades caps the journal; oldest rows are rotated out.
	MaxTrades int `mapstructure:"max_trades"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("WALLETWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("watch.poll_interval", "15s")
	v.SetDefault("watch.fetch_limit", 20)
	v.SetDefault("watch.min_notional_usd", 0.0) // 0 = no filter
	v.SetDefault("watch.staleness_window", "24h")
	v.SetDefault("watch.summary_time", "21:00")

	v.SetDefault("api.data_api_url", "https://data-api.polymarket.com")
	v.SetDefault("api.gamma_api_url", "https://gamma-api.polymarket.com")
	v.SetDefault("api.timeout", "10s")
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.retry_delay_base", "1s")
	v.SetDefault("api.rate_per_sec", 10.0)

	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("storage.db_path", "")
	v.SetDefault("storage.max_trades", 1000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

var walletPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// summaryTimePattern matches a 24h "HH:MM" wall-clock time.
var summaryTimePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if !walletPattern.MatchString(c.Watch.WalletAddress) {
		return fmt.Errorf("watch.wallet_address must be a 0x-prefixed 40-hex-digit address")
	}
	if c.Watch.PollInterval < time.Second {
		return fmt.Errorf("watch.poll_interval must be at least 1 second")
	}
	if c.Watch.FetchLimit < 1 || c.Watch.FetchLimit > 500 {
		return fmt.Errorf("watch.fetch_limit must be between 1 and 500")
	}
	if c.Watch.MinNotionalUSD < 0 {
		return fmt.Errorf("watch.min_notional_usd must not be negative")
	}
	if c.Watch.StalenessWindow < time.Hour || c.Watch.StalenessWindow > 24*time.Hour {
		return fmt.Errorf("watch.staleness_window must be between 1h and 24h")
	}
	if !summaryTimePattern.MatchString(c.Watch.SummaryTime) {
		return fmt.Errorf("watch.summary_time must be HH:MM (24h clock)")
	}

	if c.API.DataAPIURL == "" {
		return fmt.Errorf("api.data_api_url is required")
	}
	if c.API.GammaAPIURL == "" {
		return fmt.Errorf("api.gamma_api_url is required")
	}
	if c.API.Timeout < time.Second {
		return fmt.Errorf("api.timeout must be at least 1 second")
	}
	if c.API.MaxRetries < 1 {
		return fmt.Errorf("api.max_retries must be at least 1")
	}
	if c.API.RatePerSec <= 0 {
		return fmt.Errorf("api.rate_per_sec must be positive")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Storage.MaxTrades < 1 {
		return fmt.Errorf("storage.max_trades must be at least 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
