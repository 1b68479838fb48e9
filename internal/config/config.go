package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConnConfig `mapstructure:"server"`
	Watch     WatchConfig      `mapstructure:"watch"`
	Fragments FragmentsConfig  `mapstructure:"fragments"`
	Logging   LoggingConfig    `mapstructure:"logging"`
}

type ServerConnConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	ReviewRequest string `mapstructure:"review_request"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	RetryCount    int    `mapstructure:"retry_count"`
	RetryDelay    int    `mapstructure:"retry_delay_sec"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
}

type WatchConfig struct {
	DefaultPeriod time.Duration `mapstructure:"default_period"`
	Push          bool          `mapstructure:"push"`
	Compression   bool          `mapstructure:"compression"`
}

type FragmentsConfig struct {
	QueueName      string `mapstructure:"queue_name"`
	LinesOfContext []int  `mapstructure:"lines_of_context"`
	TemplateSerial string `mapstructure:"template_serial"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

// UpdatesPath is the poll endpoint for the configured review request.
func (c *Config) UpdatesPath() string {
	return fmt.Sprintf("/r/%s/_updates/", c.Server.ReviewRequest)
}

// FragmentsPath is the diff comment fragment base path for the configured
// review request.
func (c *Config) FragmentsPath() string {
	return fmt.Sprintf("/r/%s/_fragments/diff-comments/", c.Server.ReviewRequest)
}

// PushPath is the websocket endpoint for the configured review request.
func (c *Config) PushPath() string {
	return fmt.Sprintf("/r/%s/ws", c.Server.ReviewRequest)
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.timeout_sec", 30)
	v.SetDefault("server.retry_count", 3)
	v.SetDefault("server.retry_delay_sec", 1)
	v.SetDefault("server.rate_per_second", 5)
	v.SetDefault("watch.default_period", "5s")
	v.SetDefault("watch.push", false)
	v.SetDefault("watch.compression", true)
	v.SetDefault("fragments.queue_name", "diff_fragments")
	v.SetDefault("fragments.lines_of_context", []int{})
	v.SetDefault("fragments.template_serial", "")
	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("REVIEWSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested keys to env vars
	_ = v.BindEnv("server.review_request", "REVIEWSYNC_REVIEW_REQUEST")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("reviewsync")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if c.Server.BaseURL == "" {
		errs.add("server.base_url", "is required")
	}
	if c.Server.ReviewRequest == "" {
		errs.add("server.review_request", "is required (set REVIEWSYNC_REVIEW_REQUEST env var)")
	}
	if c.Server.RatePerSecond < 1 {
		errs.add("server.rate_per_second", "must be >= 1")
	}
	if c.Server.RetryCount < 0 {
		errs.add("server.retry_count", "must be >= 0")
	}
	if c.Watch.DefaultPeriod <= 0 {
		errs.add("watch.default_period", "must be positive")
	}
	validateLinesOfContext(errs, c.Fragments.LinesOfContext)

	if errs.HasErrors() {
		return errs
	}
	return nil
}
