// Package config provides configuration management for the scanner application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"rvol-scanner/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Scan     ScanConfig     `mapstructure:"scan"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Finnhub  FinnhubConfig  `mapstructure:"finnhub"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Server   ServerConfig   `mapstructure:"server"`
	Capital  CapitalConfig  `mapstructure:"capital"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ScanConfig holds default admission thresholds for the filter/score engine.
// Runtime overrides live in the store's app_settings table and are merged
// over these defaults when a batch is processed.
type ScanConfig struct {
	PriceMin     float64 `mapstructure:"price_min"`
	PriceMax     float64 `mapstructure:"price_max"`
	MinRvol      float64 `mapstructure:"min_rvol"`
	MinPctChange float64 `mapstructure:"min_pct_change"`
	VolumeCap    int64   `mapstructure:"volume_cap"`
	TopN         int     `mapstructure:"top_n"`
}

// WatchConfig holds watch-loop configuration.
type WatchConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	WatchlistCap  int           `mapstructure:"watchlist_cap"`
	QuotesPerMin  int           `mapstructure:"quotes_per_min"`
	TokenWaitTime time.Duration `mapstructure:"token_wait_time"`
}

// FinnhubConfig holds market-data provider credentials.
type FinnhubConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// CapitalConfig holds portfolio accounting configuration.
type CapitalConfig struct {
	Starting float64 `mapstructure:"starting"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/rvol-scanner"
	}
	return filepath.Join(home, ".config", "rvol-scanner")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	v.SetEnvPrefix("SCANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults + env apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scan.price_min", 5.0)
	v.SetDefault("scan.price_max", 20.0)
	v.SetDefault("scan.min_rvol", 5.0)
	v.SetDefault("scan.min_pct_change", 1.0)
	v.SetDefault("scan.volume_cap", int64(20_000_000))
	v.SetDefault("scan.top_n", 5)

	v.SetDefault("watch.interval", time.Minute)
	v.SetDefault("watch.watchlist_cap", 60)
	v.SetDefault("watch.quotes_per_min", 60)
	v.SetDefault("watch.token_wait_time", 500*time.Millisecond)

	v.SetDefault("finnhub.base_url", "https://finnhub.io/api/v1")
	v.SetDefault("finnhub.timeout", 8*time.Second)

	v.SetDefault("telegram.enabled", false)

	v.SetDefault("server.addr", ":8000")

	v.SetDefault("capital.starting", 0.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Scan.PriceMin > c.Scan.PriceMax {
		return fmt.Errorf("scan.price_min %.2f exceeds scan.price_max %.2f", c.Scan.PriceMin, c.Scan.PriceMax)
	}
	if c.Scan.TopN <= 0 {
		return fmt.Errorf("scan.top_n must be positive, got %d", c.Scan.TopN)
	}
	if c.Watch.Interval <= 0 {
		return fmt.Errorf("watch.interval must be positive, got %s", c.Watch.Interval)
	}
	if c.Watch.WatchlistCap <= 0 {
		return fmt.Errorf("watch.watchlist_cap must be positive, got %d", c.Watch.WatchlistCap)
	}
	if c.Watch.QuotesPerMin <= 0 {
		return fmt.Errorf("watch.quotes_per_min must be positive, got %d", c.Watch.QuotesPerMin)
	}
	return nil
}

// ScanSnapshot converts the configured defaults into a point-in-time scan
// config snapshot.
func (c *Config) ScanSnapshot() models.ScanConfig {
	return models.ScanConfig{
		PriceMin:     c.Scan.PriceMin,
		PriceMax:     c.Scan.PriceMax,
		MinRvol:      c.Scan.MinRvol,
		MinPctChange: c.Scan.MinPctChange,
		VolumeCap:    c.Scan.VolumeCap,
		TopN:         c.Scan.TopN,
	}
}

// DefaultDBPath returns the default SQLite database path.
func DefaultDBPath() string {
	return filepath.Join(DefaultConfigDir(), "scanner.db")
}
