package config

import (
	"fmt"
	"os"
	"time"
)

type ServerConfig struct {
	Port        string
	FixturePath string
	// FixtureWatch reloads the fixture whenever the file changes.
	FixtureWatch   bool
	ReloadDebounce time.Duration
	// WebSocket push configuration
	WSEnabled bool
	// Compression is "zstd" or "none".
	Compression    string
	MetricsEnabled bool
	TemplateSerial string
}

func LoadServerConfig() (*ServerConfig, error) {
	debounceStr := getEnvOrDefault("RELOAD_DEBOUNCE", "200ms")
	debounce, err := time.ParseDuration(debounceStr)
	if err != nil {
		debounce = 200 * time.Millisecond // Default on parse error
	}

	cfg := &ServerConfig{
		Port:           getEnvOrDefault("PORT", "8080"),
		FixturePath:    getEnvOrDefault("FIXTURE_PATH", "./configs/fixture.yaml"),
		FixtureWatch:   getEnvOrDefault("FIXTURE_WATCH", "true") == "true",
		ReloadDebounce: debounce,
		WSEnabled:      getEnvOrDefault("WS_ENABLED", "true") == "true",
		Compression:    getEnvOrDefault("COMPRESSION", "zstd"),
		MetricsEnabled: getEnvOrDefault("METRICS_ENABLED", "true") == "true",
		TemplateSerial: getEnvOrDefault("TEMPLATE_SERIAL", ""),
	}

	// Validate
	if cfg.Compression != "zstd" && cfg.Compression != "none" {
		return nil, fmt.Errorf("invalid COMPRESSION: %s (must be 'zstd' or 'none')", cfg.Compression)
	}
	if _, err := os.Stat(cfg.FixturePath); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", cfg.FixturePath, err)
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
