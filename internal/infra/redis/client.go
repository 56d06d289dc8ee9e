package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis connection shared by the audit sink and the
// notification mirror.
type Client struct {
	rdb *redis.Client
	cfg Config
}

// Config holds Redis connection configuration.
type Config struct {
	URL         string `yaml:"url"`
	Password    string `yaml:"password"`
	AuditKey    string `yaml:"audit_key"`
	AuditMaxLen int64  `yaml:"audit_max_len"`
	Channel     string `yaml:"channel"`
}

func (c Config) withDefaults() Config {
	if c.AuditKey == "" {
		c.AuditKey = "faultline:audit"
	}
	if c.AuditMaxLen <= 0 {
		c.AuditMaxLen = 1000
	}
	if c.Channel == "" {
		c.Channel = "faultline:notifications"
	}
	return c
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb, cfg: cfg.withDefaults()}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
