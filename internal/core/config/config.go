package config

import (
	"time"

	"github.com/vietddude/faultline/internal/breaker"
	redisclient "github.com/vietddude/faultline/internal/infra/redis"
	"github.com/vietddude/faultline/internal/infra/postgres"
	"github.com/vietddude/faultline/internal/processor"
	"github.com/vietddude/faultline/internal/retry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Retry     RetryConfig        `yaml:"retry"`
	Breaker   BreakerConfig      `yaml:"breaker"`
	Processor ProcessorConfig    `yaml:"processor"`
	Redis     redisclient.Config `yaml:"redis"`
	Database  postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RetryConfig holds the default retry policy.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

// BreakerConfig holds the default circuit breaker policy.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// ProcessorConfig holds error processor settings.
type ProcessorConfig struct {
	RedirectDelay time.Duration `yaml:"redirect_delay"`

	// ConnectivityURL is probed with HEAD; empty disables the offline probe.
	ConnectivityURL     string        `yaml:"connectivity_url"`
	ConnectivityTimeout time.Duration `yaml:"connectivity_timeout"`

	// QueueCritical is the queue depth above which health reports critical.
	QueueCritical int `yaml:"queue_critical"`
}

// RetryPolicy converts the retry section into a retry.Config.
func (c *AppConfig) RetryPolicy() retry.Config {
	return retry.Config{
		MaxAttempts:   c.Retry.MaxAttempts,
		BaseDelay:     c.Retry.BaseDelay,
		MaxDelay:      c.Retry.MaxDelay,
		BackoffFactor: c.Retry.BackoffFactor,
	}
}

// BreakerPolicy converts the breaker and retry sections into breaker.Options.
func (c *AppConfig) BreakerPolicy() breaker.Options {
	return breaker.Options{
		FailureThreshold: c.Breaker.FailureThreshold,
		RecoveryTimeout:  c.Breaker.RecoveryTimeout,
		Retry:            c.RetryPolicy(),
	}
}

// ProcessorSettings converts the processor section into a processor.Config.
func (c *AppConfig) ProcessorSettings() processor.Config {
	return processor.Config{RedirectDelay: c.Processor.RedirectDelay}
}
