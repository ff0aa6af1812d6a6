// Package config loads and validates run configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/serial-epub/internal/fetcher"
	"github.com/JakeFAU/serial-epub/internal/logging"
	"github.com/JakeFAU/serial-epub/internal/story"
)

// LogLevelEnv overrides logging.level.
const LogLevelEnv = "SERIAL_EPUB_LOG_LEVEL"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Run     RunConfig     `mapstructure:"run"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// RunConfig holds the per-invocation inputs, normally set by flags.
type RunConfig struct {
	URL         string `mapstructure:"url"`
	Out         string `mapstructure:"out"`
	Concurrent  int    `mapstructure:"concurrent"`
	MetricsFile string `mapstructure:"metrics_file"`
}

// FetchConfig configures the page and resource fetchers.
type FetchConfig struct {
	BaseURL             string        `mapstructure:"base_url"`
	UserAgent           string        `mapstructure:"user_agent"`
	Timeout             time.Duration `mapstructure:"timeout"`
	Headless            bool          `mapstructure:"headless"`
	HeadlessMaxParallel int           `mapstructure:"headless_max_parallel"`
	HeadlessNavTimeout  time.Duration `mapstructure:"headless_nav_timeout"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"url":          "run.url",
	"out":          "run.out",
	"concurrent":   "run.concurrent",
	"metrics-file": "run.metrics_file",
	"log-level":    "logging.level",
	"dev-logs":     "logging.development",
}

// Load builds a Config from defaults, an optional YAML file, the log-level
// environment variable, and flags, in increasing order of precedence.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := v.BindEnv("logging.level", LogLevelEnv); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}
	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read config: %w", story.ErrConfig, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: unmarshal config: %w", story.ErrConfig, err)
	}
	cfg.Run.URL = strings.TrimSpace(cfg.Run.URL)
	cfg.Run.Out = strings.TrimSpace(cfg.Run.Out)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("run.concurrent", 5)
	v.SetDefault("fetch.base_url", fetcher.DefaultBaseURL)
	v.SetDefault("fetch.user_agent", "serial-epub/1.0")
	v.SetDefault("fetch.timeout", "0s")
	v.SetDefault("fetch.headless", false)
	v.SetDefault("fetch.headless_max_parallel", 2)
	v.SetDefault("fetch.headless_nav_timeout", "45s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits. Every failure
// wraps story.ErrConfig.
func (c Config) Validate() error {
	if c.Run.URL == "" {
		return fmt.Errorf("%w: --url is required", story.ErrConfig)
	}
	if c.Run.Out == "" {
		return fmt.Errorf("%w: --out is required", story.ErrConfig)
	}
	if c.Run.Concurrent <= 0 {
		return fmt.Errorf("%w: --concurrent must be > 0, got %d", story.ErrConfig, c.Run.Concurrent)
	}
	if _, err := fetcher.NewOrigin(c.Fetch.BaseURL); err != nil {
		return fmt.Errorf("fetch.base_url: %w", err)
	}
	if c.Fetch.Timeout < 0 {
		return fmt.Errorf("%w: fetch.timeout must be >= 0", story.ErrConfig)
	}
	if c.Fetch.Headless && c.Fetch.HeadlessMaxParallel < 0 {
		return fmt.Errorf("%w: fetch.headless_max_parallel must be >= 0", story.ErrConfig)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %w", story.ErrConfig, err)
	}
	return nil
}

// LoggerConfig converts the logging section for logging.New.
func (c Config) LoggerConfig() logging.Config {
	return logging.Config{Level: c.Logging.Level, Development: c.Logging.Development}
}
