package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	var cfg AppConfig
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = time.Second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 10 * time.Second
	}
	if cfg.Retry.BackoffFactor == 0 {
		cfg.Retry.BackoffFactor = 2
	}

	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.RecoveryTimeout == 0 {
		cfg.Breaker.RecoveryTimeout = 60 * time.Second
	}

	if cfg.Processor.RedirectDelay == 0 {
		cfg.Processor.RedirectDelay = 1500 * time.Millisecond
	}
	if cfg.Processor.ConnectivityTimeout == 0 {
		cfg.Processor.ConnectivityTimeout = 2 * time.Second
	}
	if cfg.Processor.QueueCritical == 0 {
		cfg.Processor.QueueCritical = 10000
	}

	if cfg.Redis.AuditKey == "" {
		cfg.Redis.AuditKey = "faultline:audit"
	}
	if cfg.Redis.AuditMaxLen == 0 {
		cfg.Redis.AuditMaxLen = 1000
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = "faultline:notifications"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgx"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = 2
	}
}

func validate(cfg *AppConfig) error {
	switch {
	case cfg.Retry.MaxAttempts < 1:
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", cfg.Retry.MaxAttempts)
	case cfg.Retry.BackoffFactor < 1:
		return fmt.Errorf("retry.backoff_factor must be at least 1, got %g", cfg.Retry.BackoffFactor)
	case cfg.Retry.MaxDelay < cfg.Retry.BaseDelay:
		return fmt.Errorf("retry.max_delay (%s) is below retry.base_delay (%s)", cfg.Retry.MaxDelay, cfg.Retry.BaseDelay)
	case cfg.Breaker.FailureThreshold < 1:
		return fmt.Errorf("breaker.failure_threshold must be at least 1, got %d", cfg.Breaker.FailureThreshold)
	case cfg.Logging.Format != "text" && cfg.Logging.Format != "json":
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}
	return nil
}
